package types

// EventKind discriminates canonical stream events.
type EventKind string

const (
	EventText      EventKind = "text"
	EventToolStart EventKind = "tool_start"
	EventToolDelta EventKind = "tool_delta"
	EventUsage     EventKind = "usage"
)

// StreamEvent is the normalized representation of one raw stream element.
// Adapters produce these so the aggregator never sees vendor formats.
// Exactly one payload field is populated, matching Kind.
type StreamEvent struct {
	Kind EventKind

	TextDelta string
	ToolStart *ToolStart
	ToolDelta *ToolDelta
	Usage     *UsageReport
}

// ToolStart announces a tool invocation. Index is the provider's content
// block position, used to correlate later argument deltas that only carry
// an index. Arguments holds any argument fragment bundled into the
// opening element.
type ToolStart struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// ToolDelta carries one streamed fragment of a tool call's JSON arguments.
type ToolDelta struct {
	Index          int
	ArgumentsDelta string
}

// ToolCall is a finalized tool invocation record.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// UsageReport is one (possibly partial) token accounting report surfaced
// by a backend. Several reports may share a CompletionID; the ledger
// aggregates them.
type UsageReport struct {
	CompletionID     string
	PromptTokens     int
	ResponseTokens   int
	CachedTokens     int
	CacheWriteTokens int
}

// Completion is the parsed result of a non-streaming provider response.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Usage     *UsageReport
}
