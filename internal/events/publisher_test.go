package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vochat/internal/domain"
	"vochat/internal/observability/metrics"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func testEvent() domain.UsageEvent {
	return domain.UsageEvent{
		AccountID: "acct-1",
		EventType: domain.UsageEventRefineWords,
		Quantity:  7,
		CreatedAt: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
		Meta:      map[string]any{"session_id": "s-1"},
	}
}

func TestNewDisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg, metrics.NewMetrics(prometheus.NewRegistry()), zerolog.Nop())
			require.NotNil(t, p)
			assert.False(t, p.enabled)
			assert.Nil(t, p.writer)
			assert.Equal(t, DefaultTopic, p.topic)
			assert.NoError(t, p.PublishUsage(context.Background(), testEvent()))
			assert.NoError(t, p.Close())
		})
	}
}

func TestNewEnabledBuildsWriter(t *testing.T) {
	p := New(&Config{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "usage"}, metrics.NewMetrics(prometheus.NewRegistry()), zerolog.Nop())
	assert.True(t, p.enabled)
	assert.NotNil(t, p.writer)
	assert.Equal(t, "usage", p.topic)
	assert.NoError(t, p.Close())
}

func TestPublishUsageWritesKeyedMessage(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	w := &recordingWriter{}
	p := &Publisher{writer: w, topic: "usage", principal: "vochat", enabled: true, metrics: m, logger: zerolog.Nop()}

	require.NoError(t, p.PublishUsage(context.Background(), testEvent()))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "acct-1", string(w.msgs[0].Key))
	assert.JSONEq(t,
		`{"accountId":"acct-1","eventType":"refine_words","quantity":7,"createdAt":"2026-10-16T09:00:00Z","meta":{"session_id":"s-1"}}`,
		string(w.msgs[0].Value))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("usage")))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublishUsageReportsWriteErrors(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	boom := errors.New("broker down")
	p := &Publisher{writer: &recordingWriter{err: boom}, topic: "usage", enabled: true, metrics: m, logger: zerolog.Nop()}

	assert.ErrorIs(t, p.PublishUsage(context.Background(), testEvent()), boom)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("usage")))
}

func TestPublishUsageRejectsUnmarshalableMeta(t *testing.T) {
	p := New(nil, metrics.NewMetrics(prometheus.NewRegistry()), zerolog.Nop())
	ev := testEvent()
	ev.Meta = map[string]any{"bad": make(chan int)}
	assert.Error(t, p.PublishUsage(context.Background(), ev))
}
