// Package metrics provides Prometheus metrics for the refinement server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vochat"

// Refinement outcomes used as label values.
const (
	OutcomeRefined     = "refined"
	OutcomeCached      = "cached"
	OutcomeDuplicate   = "duplicate"
	OutcomeQuota       = "quota_exceeded"
	OutcomeUnavailable = "unavailable"
	OutcomeBadRequest  = "bad_request"
	OutcomeError       = "error"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Refinement metrics
	RefinementsTotal *prometheus.CounterVec
	RefinedWords     prometheus.Counter
	ModelLatency     prometheus.Histogram

	// Token metrics
	TokensIssued *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates and registers all metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RefinementsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refinements_total",
			Help:      "Refinement requests by outcome",
		}, []string{"outcome"}),
		RefinedWords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refined_words_total",
			Help:      "Words metered for newly stored refinements",
		}),
		ModelLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refine_model_latency_seconds",
			Help:      "Language model call latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		TokensIssued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_tokens_total",
			Help:      "Transcription token requests by outcome",
		}, []string{"outcome"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		KafkaPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic"}),
		KafkaPublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic"}),
		KafkaPublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordRefinement counts one refinement request outcome.
func (m *Metrics) RecordRefinement(outcome string, words int) {
	m.RefinementsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeRefined && words > 0 {
		m.RefinedWords.Add(float64(words))
	}
}

// RecordModelLatency records a language model round trip.
func (m *Metrics) RecordModelLatency(seconds float64) {
	m.ModelLatency.Observe(seconds)
}

// RecordToken counts one token request outcome.
func (m *Metrics) RecordToken(outcome string) {
	m.TokensIssued.WithLabelValues(outcome).Inc()
}

// RecordHTTP records a served request.
func (m *Metrics) RecordHTTP(route, status string, seconds float64) {
	m.HTTPRequests.WithLabelValues(route, status).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(seconds)
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}
