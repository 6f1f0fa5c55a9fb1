// Package events fans usage events out to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"vochat/internal/domain"
	"vochat/internal/observability/metrics"
)

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers   []string `yaml:"brokers" env:"VOCHAT_KAFKA_BROKERS" envSeparator:","`
	Topic     string   `yaml:"topic" env:"VOCHAT_KAFKA_TOPIC"`
	Principal string   `yaml:"principal" env:"VOCHAT_KAFKA_PRINCIPAL"`
	Enabled   bool     `yaml:"enabled" env:"VOCHAT_KAFKA_ENABLED"`
}

// DefaultTopic receives refine_words usage events.
const DefaultTopic = "vochat.usage.refine_words"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes usage events to one topic, or only logs them when disabled.
type Publisher struct {
	writer    messageWriter
	topic     string
	principal string
	enabled   bool
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// New creates a publisher. A nil or disabled config yields log-only mode.
func New(cfg *Config, m *metrics.Metrics, logger zerolog.Logger) *Publisher {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	if cfg == nil {
		logger.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{topic: DefaultTopic, metrics: m, logger: logger}
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		logger.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{topic: topic, principal: cfg.Principal, metrics: m, logger: logger}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", topic).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writer:    writer,
		topic:     topic,
		principal: cfg.Principal,
		enabled:   true,
		metrics:   m,
		logger:    logger,
	}
}

// PublishUsage writes one usage event keyed by account, so an account's
// events stay ordered within a partition.
func (p *Publisher) PublishUsage(ctx context.Context, event domain.UsageEvent) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", p.topic).Msg("Failed to marshal usage event")
		return err
	}

	p.logger.Debug().
		Str("topic", p.topic).
		Str("key", event.AccountID).
		RawJSON("payload", payload).
		Msg("Publishing usage event")

	if !p.enabled || p.writer == nil {
		p.metrics.RecordKafkaPublish(p.topic, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(event.AccountID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(event.EventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().Err(err).Str("topic", p.topic).Str("key", event.AccountID).Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(p.topic, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(p.topic, nil, time.Since(start).Seconds())
	return nil
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
