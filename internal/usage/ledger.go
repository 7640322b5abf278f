// Package usage keeps per-completion token and cost accounting.
package usage

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/af-corp/conduit/internal/pricing"
)

// CompletionUsage is one accounting entry. Several entries may share a
// CompletionID when a backend streams partial usage updates; the ledger
// sums them before reporting.
type CompletionUsage struct {
	CompletionID     string    `json:"completion_id"`
	PromptTokens     int       `json:"prompt_tokens"`
	ResponseTokens   int       `json:"response_tokens"`
	CachedTokens     int       `json:"cached_tokens"`
	CacheWriteTokens int       `json:"cache_write_tokens"`
	Cost             float64   `json:"cost"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// TotalTokens is prompt plus response tokens.
func (c CompletionUsage) TotalTokens() int {
	return c.PromptTokens + c.ResponseTokens
}

func (c CompletionUsage) String() string {
	prefix := ""
	if c.Cost > 0 {
		prefix = fmt.Sprintf("Cost: $%g | ", c.Cost)
	}
	return fmt.Sprintf("%sTokens: %d | Prompt: %d | Response: %d", prefix, c.TotalTokens(), c.PromptTokens, c.ResponseTokens)
}

// Ledger is an append-only, lazily aggregated usage record. It owns the
// pricing configuration for the model it accounts for. All methods are
// safe for concurrent use; completion calls sharing one orchestrator may
// race on recording.
type Ledger struct {
	mu         sync.Mutex
	entries    []CompletionUsage
	pricing    pricing.Config
	hasPricing bool
	aggregated bool

	// now is swappable for tests.
	now func() time.Time
}

// NewLedger builds a ledger without pricing; costs stay zero.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// NewLedgerWithPricing builds a ledger that prices completions with cfg.
func NewLedgerWithPricing(cfg pricing.Config) *Ledger {
	return &Ledger{pricing: cfg, hasPricing: true, now: time.Now}
}

// RecordCompletion appends a usage entry. An empty completionID reuses the
// most recent entry's id when one exists (partial updates for the same
// logical completion), otherwise a fresh id is minted. Negative counts are
// clamped to zero.
func (l *Ledger) RecordCompletion(promptTokens, responseTokens, cachedTokens, cacheWriteTokens int, completionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if completionID == "" {
		if n := len(l.entries); n > 0 {
			completionID = l.entries[n-1].CompletionID
		} else {
			completionID = xid.New().String()
		}
	}

	l.entries = append(l.entries, CompletionUsage{
		CompletionID:     completionID,
		PromptTokens:     max(promptTokens, 0),
		ResponseTokens:   max(responseTokens, 0),
		CachedTokens:     max(cachedTokens, 0),
		CacheWriteTokens: max(cacheWriteTokens, 0),
		RecordedAt:       l.now().UTC(),
	})
	l.aggregated = false
}

// Completions returns the aggregated entries. Entries sharing a completion
// id are summed into one (first-seen order, earliest timestamp) and the
// backing list is rewritten with the result, so repeat calls are cheap and
// idempotent. Cost is computed once per aggregated entry.
func (l *Ledger) Completions() []CompletionUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completionsLocked()
}

func (l *Ledger) completionsLocked() []CompletionUsage {
	if l.aggregated {
		return append([]CompletionUsage(nil), l.entries...)
	}

	order := make([]string, 0, len(l.entries))
	byID := make(map[string]*CompletionUsage, len(l.entries))
	for _, e := range l.entries {
		agg, ok := byID[e.CompletionID]
		if !ok {
			order = append(order, e.CompletionID)
			cp := e
			byID[e.CompletionID] = &cp
			continue
		}
		agg.PromptTokens += e.PromptTokens
		agg.ResponseTokens += e.ResponseTokens
		agg.CachedTokens += e.CachedTokens
		agg.CacheWriteTokens += e.CacheWriteTokens
		if e.RecordedAt.Before(agg.RecordedAt) {
			agg.RecordedAt = e.RecordedAt
		}
	}

	merged := make([]CompletionUsage, 0, len(order))
	for _, id := range order {
		agg := byID[id]
		if l.hasPricing {
			agg.Cost = l.pricing.Cost(agg.RecordedAt, agg.PromptTokens, agg.ResponseTokens, agg.CachedTokens, agg.CacheWriteTokens)
		}
		merged = append(merged, *agg)
	}

	l.entries = merged
	l.aggregated = true
	return append([]CompletionUsage(nil), merged...)
}

// LatestCompletion returns the most recent aggregated entry, or false when
// the ledger is empty.
func (l *Ledger) LatestCompletion() (CompletionUsage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	merged := l.completionsLocked()
	if len(merged) == 0 {
		return CompletionUsage{}, false
	}
	return merged[len(merged)-1], true
}

// TotalTokens sums tokens over aggregated completions.
func (l *Ledger) TotalTokens() int {
	total := 0
	for _, c := range l.Completions() {
		total += c.TotalTokens()
	}
	return total
}

// TotalCost sums cost over aggregated completions.
func (l *Ledger) TotalCost() float64 {
	total := 0.0
	for _, c := range l.Completions() {
		total += c.Cost
	}
	return total
}

func (l *Ledger) String() string {
	cost := l.TotalCost()
	prefix := ""
	if cost > 0 {
		prefix = fmt.Sprintf("Cost: $%g | ", cost)
	}
	return fmt.Sprintf("Total | %sTokens: %d", prefix, l.TotalTokens())
}
