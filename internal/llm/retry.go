package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/af-corp/conduit/internal/types"
)

// RetryPolicy governs re-attempts on rate-limited provider calls. Only
// errors classified by types.IsRateLimited are retried; balance and
// authentication failures always propagate on the first attempt.
type RetryPolicy struct {
	MaxAttempts int
	WaitMin     time.Duration
	WaitMax     time.Duration
	Logger      *slog.Logger

	// OnRetry fires once per re-attempt, before the backoff wait.
	OnRetry func(provider, model string)

	provider string
	model    string
}

// DefaultRetryPolicy mirrors the service defaults: five attempts,
// exponential backoff from one second capped at sixty.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		WaitMin:     time.Second,
		WaitMax:     60 * time.Second,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, the
// context is cancelled, or attempts run out. Waits are context-aware;
// exhaustion surfaces as a typed RetryExhaustedError wrapping the last
// provider error.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		last = op()
		if last == nil {
			return nil
		}
		if !types.IsRateLimited(last) {
			return last
		}
		if attempt == attempts {
			break
		}

		wait := p.backoff(attempt)
		if secs, ok := types.RetryAfterSeconds(last); ok {
			wait = time.Duration(secs) * time.Second
			if p.WaitMax > 0 && wait > p.WaitMax {
				wait = p.WaitMax
			}
		}
		if p.Logger != nil {
			p.Logger.Warn("rate limited, backing off",
				"attempt", attempt,
				"wait", wait.String(),
				"provider", p.provider,
				"model", p.model,
				"error", last)
		}
		if p.OnRetry != nil {
			p.OnRetry(p.provider, p.model)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &types.RetryExhaustedError{Attempts: attempts, Last: last}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	wait := p.WaitMin
	if wait <= 0 {
		wait = time.Second
	}
	for i := 1; i < attempt; i++ {
		wait *= 2
		if p.WaitMax > 0 && wait >= p.WaitMax {
			return p.WaitMax
		}
	}
	if p.WaitMax > 0 && wait > p.WaitMax {
		wait = p.WaitMax
	}
	return wait
}
