package llm

import (
	"strings"
	"testing"

	"github.com/af-corp/conduit/internal/types"
)

func textEvents(chunks ...string) []*types.StreamEvent {
	evs := make([]*types.StreamEvent, len(chunks))
	for i, c := range chunks {
		evs[i] = &types.StreamEvent{Kind: types.EventText, TextDelta: c}
	}
	return evs
}

func runAggregator(t *testing.T, suppress string, events []*types.StreamEvent) (*AggregateResult, []string) {
	t.Helper()
	var emitted []string
	agg := NewAggregator(suppress, func(chunk string) error {
		emitted = append(emitted, chunk)
		return nil
	})
	for _, ev := range events {
		if err := agg.Consume(ev); err != nil {
			t.Fatalf("Consume: %v", err)
		}
	}
	res, err := agg.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return res, emitted
}

func TestAggregatorPrefixSuppression(t *testing.T) {
	res, emitted := runAggregator(t, "ABC", textEvents("A", "B", "C", "D", "E"))
	if res.Text != "DE" {
		t.Errorf("text = %q, want %q", res.Text, "DE")
	}
	if got := strings.Join(emitted, ""); got != "DE" {
		t.Errorf("emitted = %q, want %q", got, "DE")
	}
}

func TestAggregatorPrefixOverrun(t *testing.T) {
	// A single delta crosses the echo boundary.
	res, _ := runAggregator(t, "ABC", textEvents("AB", "CDE"))
	if res.Text != "DE" {
		t.Errorf("text = %q, want %q", res.Text, "DE")
	}
}

func TestAggregatorDivergenceFlush(t *testing.T) {
	// The backend never echoes: buffered text is released, nothing lost.
	res, emitted := runAggregator(t, "ABC", textEvents("A", "X", "Y"))
	if res.Text != "AXY" {
		t.Errorf("text = %q, want %q", res.Text, "AXY")
	}
	if len(emitted) == 0 || emitted[0] != "AX" {
		t.Errorf("first emission = %v, want flush of %q", emitted, "AX")
	}
}

func TestAggregatorShortStreamFlushesOnFinish(t *testing.T) {
	// Stream ends while the buffer is still a proper prefix of the echo.
	res, _ := runAggregator(t, "ABCDEF", textEvents("AB", "C"))
	if res.Text != "ABC" {
		t.Errorf("text = %q, want %q", res.Text, "ABC")
	}
}

func TestAggregatorNoSuppression(t *testing.T) {
	res, emitted := runAggregator(t, "", textEvents("hel", "lo"))
	if res.Text != "hello" {
		t.Errorf("text = %q", res.Text)
	}
	if len(emitted) != 2 {
		t.Errorf("expected live forwarding of each delta, got %v", emitted)
	}
}

func TestAggregatorToolCalls(t *testing.T) {
	events := []*types.StreamEvent{
		{Kind: types.EventText, TextDelta: "Checking. "},
		{Kind: types.EventToolStart, ToolStart: &types.ToolStart{Index: 0, ID: "call_1", Name: "search", Arguments: `{"q":`}},
		{Kind: types.EventToolDelta, ToolDelta: &types.ToolDelta{Index: 0, ArgumentsDelta: `"go"}`}},
		{Kind: types.EventToolStart, ToolStart: &types.ToolStart{Index: 1, ID: "call_2", Name: "fetch"}},
		{Kind: types.EventToolDelta, ToolDelta: &types.ToolDelta{Index: 1, ArgumentsDelta: `{"url":"x"}`}},
		{Kind: types.EventText, TextDelta: "Done."},
	}
	res, _ := runAggregator(t, "", events)

	if res.Text != "Checking. Done." {
		t.Errorf("text = %q", res.Text)
	}
	if len(res.ToolCalls) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(res.ToolCalls))
	}
	first := res.ToolCalls[0]
	if first.ID != "call_1" || first.Name != "search" || first.Arguments != `{"q":"go"}` {
		t.Errorf("first tool call = %+v", first)
	}
	second := res.ToolCalls[1]
	if second.ID != "call_2" || second.Arguments != `{"url":"x"}` {
		t.Errorf("second tool call = %+v", second)
	}
}

func TestAggregatorToolDeltaUnknownIndex(t *testing.T) {
	agg := NewAggregator("", nil)
	err := agg.Consume(&types.StreamEvent{Kind: types.EventToolDelta, ToolDelta: &types.ToolDelta{Index: 3, ArgumentsDelta: "x"}})
	if err == nil {
		t.Fatal("expected error for delta without a started tool call")
	}
}

func TestAggregatorUsageCollection(t *testing.T) {
	events := []*types.StreamEvent{
		{Kind: types.EventText, TextDelta: "hi"},
		{Kind: types.EventUsage, Usage: &types.UsageReport{CompletionID: "c1", PromptTokens: 5}},
		{Kind: types.EventUsage, Usage: &types.UsageReport{ResponseTokens: 3}},
	}
	res, _ := runAggregator(t, "", events)
	if len(res.Usage) != 2 {
		t.Fatalf("usage reports = %d, want 2", len(res.Usage))
	}
	if res.Usage[0].CompletionID != "c1" || res.Usage[1].ResponseTokens != 3 {
		t.Errorf("usage = %+v", res.Usage)
	}
}

func TestAggregatorNilEventSkipped(t *testing.T) {
	agg := NewAggregator("", nil)
	if err := agg.Consume(nil); err != nil {
		t.Fatalf("nil event must be a no-op, got %v", err)
	}
}
