// Package observability records one operation row per orchestrated
// completion for external analysis.
package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// OperationRecord captures everything known about one completion call,
// successful or not.
type OperationRecord struct {
	CompletionID     string
	SessionID        string
	WorkspaceID      string
	AgentID          string
	ActionID         string
	Provider         string
	Model            string
	Operation        string
	PromptTokens     int
	ResponseTokens   int
	CachedTokens     int
	CacheWriteTokens int
	Cost             float64
	LatencyMS        int64
	Success          bool
	ErrorMessage     string
	CreatedAt        time.Time
}

// StorageFunc persists one record. Implementations must not retain rec.
type StorageFunc func(ctx context.Context, rec OperationRecord) error

// Collector forwards operation records to a storage backend. Recording
// never fails the caller: storage errors are logged and dropped. A
// disabled collector discards records silently.
type Collector struct {
	mu       sync.Mutex
	storage  StorageFunc
	disabled bool
	logger   *slog.Logger
}

func NewCollector(storage StorageFunc, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{storage: storage, logger: logger}
}

// Disable turns recording off until Enable is called.
func (c *Collector) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = true
}

func (c *Collector) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = false
}

func (c *Collector) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disabled
}

// Record persists rec. Safe to call with a nil receiver so callers do not
// need a collector wired to function.
func (c *Collector) Record(ctx context.Context, rec OperationRecord) {
	if c == nil {
		return
	}
	c.mu.Lock()
	storage, disabled := c.storage, c.disabled
	c.mu.Unlock()

	if disabled || storage == nil {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := storage(ctx, rec); err != nil {
		c.logger.Error("operation record dropped",
			"completion_id", rec.CompletionID,
			"provider", rec.Provider,
			"error", err)
	}
}
