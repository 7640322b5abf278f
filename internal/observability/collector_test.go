package observability

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

func TestCollectorRecord(t *testing.T) {
	var stored []OperationRecord
	c := NewCollector(func(_ context.Context, rec OperationRecord) error {
		stored = append(stored, rec)
		return nil
	}, slog.Default())

	c.Record(context.Background(), OperationRecord{CompletionID: "c1", Provider: "openai"})
	if len(stored) != 1 {
		t.Fatalf("stored = %d records, want 1", len(stored))
	}
	if stored[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be stamped")
	}
}

func TestCollectorDisable(t *testing.T) {
	calls := 0
	c := NewCollector(func(context.Context, OperationRecord) error {
		calls++
		return nil
	}, nil)

	c.Disable()
	c.Record(context.Background(), OperationRecord{CompletionID: "c1"})
	if calls != 0 {
		t.Errorf("disabled collector stored %d records", calls)
	}

	c.Enable()
	c.Record(context.Background(), OperationRecord{CompletionID: "c2"})
	if calls != 1 {
		t.Errorf("re-enabled collector stored %d records, want 1", calls)
	}
}

func TestCollectorStorageErrorDoesNotPropagate(t *testing.T) {
	c := NewCollector(func(context.Context, OperationRecord) error {
		return errors.New("database down")
	}, slog.Default())

	// Must not panic or surface the error.
	c.Record(context.Background(), OperationRecord{CompletionID: "c1"})
}

func TestCollectorNilReceiver(t *testing.T) {
	var c *Collector
	c.Record(context.Background(), OperationRecord{CompletionID: "c1"})
}
