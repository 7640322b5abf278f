package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	if m.CompletionTotal == nil {
		t.Error("CompletionTotal should not be nil")
	}
	if m.CompletionDurationMs == nil {
		t.Error("CompletionDurationMs should not be nil")
	}
	if m.TokensTotal == nil {
		t.Error("TokensTotal should not be nil")
	}
	if m.CostUSDTotal == nil {
		t.Error("CostUSDTotal should not be nil")
	}
	if m.RetryTotal == nil {
		t.Error("RetryTotal should not be nil")
	}
	if m.RateLimitHitTotal == nil {
		t.Error("RateLimitHitTotal should not be nil")
	}
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("get metric: %v", err)
	}
	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return *metric.Counter.Value
}

func TestRecordCompletion(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordCompletion(CompletionLabels{
		Org:              "org-1",
		Team:             "team-1",
		Provider:         "openai",
		Model:            "gpt-4o",
		Operation:        "completion",
		Status:           "ok",
		DurationMs:       150,
		PromptTokens:     100,
		ResponseTokens:   50,
		CachedTokens:     30,
		CacheWriteTokens: 10,
		CostUSD:          0.005,
	})

	if got := counterValue(t, m.CompletionTotal, "org-1", "team-1", "openai", "gpt-4o", "completion", "ok"); got != 1 {
		t.Errorf("completion count = %v, want 1", got)
	}
	if got := counterValue(t, m.TokensTotal, "org-1", "team-1", "gpt-4o", "prompt"); got != 100 {
		t.Errorf("prompt tokens = %v, want 100", got)
	}
	if got := counterValue(t, m.TokensTotal, "org-1", "team-1", "gpt-4o", "cached"); got != 30 {
		t.Errorf("cached tokens = %v, want 30", got)
	}
	if got := counterValue(t, m.TokensTotal, "org-1", "team-1", "gpt-4o", "cache_write"); got != 10 {
		t.Errorf("cache write tokens = %v, want 10", got)
	}
	if got := counterValue(t, m.CostUSDTotal, "org-1", "team-1", "openai", "gpt-4o"); got != 0.005 {
		t.Errorf("cost = %v, want 0.005", got)
	}
}

func TestRecordRetry(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	m.RecordRetry("groq", "deepseek-r1-distill-llama-70b")
	m.RecordRetry("groq", "deepseek-r1-distill-llama-70b")

	if got := counterValue(t, m.RetryTotal, "groq", "deepseek-r1-distill-llama-70b"); got != 2 {
		t.Errorf("retry count = %v, want 2", got)
	}
}

func TestRecordRateLimitHit(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())
	m.RecordRateLimitHit("rpm", "org-1")

	if got := counterValue(t, m.RateLimitHitTotal, "rpm", "org-1"); got != 1 {
		t.Errorf("rate limit hits = %v, want 1", got)
	}
}
