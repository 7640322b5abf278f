package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the completion service.
type Metrics struct {
	CompletionTotal      *prometheus.CounterVec
	CompletionDurationMs *prometheus.HistogramVec
	TokensTotal          *prometheus.CounterVec
	CostUSDTotal         *prometheus.CounterVec
	RetryTotal           *prometheus.CounterVec
	RateLimitHitTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on a caller-provided registry; used by tests.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CompletionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_completion_total",
			Help: "Total completion calls served.",
		}, []string{"org", "team", "provider", "model", "operation", "status"}),

		CompletionDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conduit_completion_duration_ms",
			Help:    "Completion call duration in milliseconds (including provider latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"provider", "model"}),

		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_tokens_total",
			Help: "Total tokens processed by direction.",
		}, []string{"org", "team", "model", "direction"}),

		CostUSDTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_cost_usd_total",
			Help: "Estimated total completion cost in USD.",
		}, []string{"org", "team", "provider", "model"}),

		RetryTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_retry_total",
			Help: "Total rate-limit retries against providers.",
		}, []string{"provider", "model"}),

		RateLimitHitTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conduit_rate_limit_hit_total",
			Help: "Total requests rejected by service-side limits.",
		}, []string{"dimension", "scope"}),
	}
}

// CompletionLabels holds the values recorded for one completion call.
type CompletionLabels struct {
	Org              string
	Team             string
	Provider         string
	Model            string
	Operation        string
	Status           string
	DurationMs       float64
	PromptTokens     int
	ResponseTokens   int
	CachedTokens     int
	CacheWriteTokens int
	CostUSD          float64
}

// RecordCompletion records metrics for one completed call.
func (m *Metrics) RecordCompletion(labels CompletionLabels) {
	m.CompletionTotal.WithLabelValues(
		labels.Org, labels.Team, labels.Provider, labels.Model,
		labels.Operation, labels.Status,
	).Inc()

	m.CompletionDurationMs.WithLabelValues(labels.Provider, labels.Model).Observe(labels.DurationMs)

	directions := []struct {
		name  string
		count int
	}{
		{"prompt", labels.PromptTokens},
		{"response", labels.ResponseTokens},
		{"cached", labels.CachedTokens},
		{"cache_write", labels.CacheWriteTokens},
	}
	for _, d := range directions {
		if d.count > 0 {
			m.TokensTotal.WithLabelValues(labels.Org, labels.Team, labels.Model, d.name).Add(float64(d.count))
		}
	}

	if labels.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(labels.Org, labels.Team, labels.Provider, labels.Model).Add(labels.CostUSD)
	}
}

// RecordRetry counts one provider rate-limit retry.
func (m *Metrics) RecordRetry(provider, model string) {
	m.RetryTotal.WithLabelValues(provider, model).Inc()
}

// RecordRateLimitHit counts one request rejected by a service-side limit.
func (m *Metrics) RecordRateLimitHit(dimension, scope string) {
	m.RateLimitHitTotal.WithLabelValues(dimension, scope).Inc()
}
