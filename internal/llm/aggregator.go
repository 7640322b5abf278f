// Package llm orchestrates completion calls: stream aggregation, retry,
// reasoner chaining and accounting.
package llm

import (
	"fmt"
	"strings"

	"github.com/af-corp/conduit/internal/types"
)

// Aggregator folds a sequence of canonical stream events into one
// completion result, forwarding visible text to an emit callback as it
// arrives.
//
// When a suppress prefix is set (backends that echo a primed assistant
// prefix), leading text is withheld while it is still a prefix of the
// expected echo. The withheld buffer is dropped once the echo is fully
// consumed and everything after streams live. If the stream diverges from
// the expected echo the whole buffer is flushed, since the echo is then
// not happening.
//
// Tool calls are tracked per id: an opening event registers the call and
// maps the provider's block index to it, argument deltas append by index,
// and Finish closes all open calls in start order.
type Aggregator struct {
	suppress string
	buf      string
	passthru bool

	emit func(string) error
	text strings.Builder

	toolOrder []string
	tools     map[string]*toolState
	byIndex   map[int]string

	usage []types.UsageReport
}

type toolState struct {
	name string
	args strings.Builder
}

// AggregateResult is the folded outcome of one stream.
type AggregateResult struct {
	Text      string
	ToolCalls []types.ToolCall
	Usage     []types.UsageReport
}

// NewAggregator builds an aggregator. suppressPrefix may be empty (no
// suppression); emit may be nil (no live forwarding).
func NewAggregator(suppressPrefix string, emit func(string) error) *Aggregator {
	return &Aggregator{
		suppress: suppressPrefix,
		passthru: suppressPrefix == "",
		emit:     emit,
		tools:    make(map[string]*toolState),
		byIndex:  make(map[int]string),
	}
}

// Consume folds one event. A nil event is a skip marker and is ignored.
func (a *Aggregator) Consume(ev *types.StreamEvent) error {
	if ev == nil {
		return nil
	}
	switch ev.Kind {
	case types.EventText:
		return a.consumeText(ev.TextDelta)
	case types.EventToolStart:
		return a.consumeToolStart(ev.ToolStart)
	case types.EventToolDelta:
		return a.consumeToolDelta(ev.ToolDelta)
	case types.EventUsage:
		if ev.Usage != nil {
			a.usage = append(a.usage, *ev.Usage)
		}
		return nil
	default:
		return fmt.Errorf("unknown stream event kind %q", ev.Kind)
	}
}

func (a *Aggregator) consumeText(delta string) error {
	if delta == "" {
		return nil
	}
	if a.passthru {
		return a.forward(delta)
	}

	a.buf += delta
	switch {
	case a.buf == a.suppress:
		// Echo fully consumed; drop it.
		a.buf = ""
		a.passthru = true
	case strings.HasPrefix(a.suppress, a.buf):
		// Still inside the expected echo, keep holding.
	case strings.HasPrefix(a.buf, a.suppress):
		// Delta overran the echo boundary: drop the echo, release the rest.
		rest := a.buf[len(a.suppress):]
		a.buf = ""
		a.passthru = true
		return a.forward(rest)
	default:
		// Divergence: the backend is not echoing after all.
		flushed := a.buf
		a.buf = ""
		a.passthru = true
		return a.forward(flushed)
	}
	return nil
}

func (a *Aggregator) consumeToolStart(start *types.ToolStart) error {
	if start == nil {
		return nil
	}
	id := start.ID
	if id == "" {
		// Some backends omit ids on tool deltas entirely; synthesize a
		// stable key from the block index.
		id = fmt.Sprintf("tool-%d", start.Index)
	}
	if _, exists := a.tools[id]; exists {
		return fmt.Errorf("duplicate tool call id %q", id)
	}
	st := &toolState{name: start.Name}
	st.args.WriteString(start.Arguments)
	a.tools[id] = st
	a.toolOrder = append(a.toolOrder, id)
	a.byIndex[start.Index] = id
	return nil
}

func (a *Aggregator) consumeToolDelta(delta *types.ToolDelta) error {
	if delta == nil {
		return nil
	}
	id, ok := a.byIndex[delta.Index]
	if !ok {
		return fmt.Errorf("tool delta for unknown block index %d", delta.Index)
	}
	a.tools[id].args.WriteString(delta.ArgumentsDelta)
	return nil
}

func (a *Aggregator) forward(s string) error {
	a.text.WriteString(s)
	if a.emit != nil {
		return a.emit(s)
	}
	return nil
}

// Finish flushes any text still withheld (the stream ended before the
// echo completed) and returns the folded result.
func (a *Aggregator) Finish() (*AggregateResult, error) {
	if !a.passthru && a.buf != "" {
		flushed := a.buf
		a.buf = ""
		a.passthru = true
		if err := a.forward(flushed); err != nil {
			return nil, err
		}
	}

	res := &AggregateResult{Text: a.text.String(), Usage: a.usage}
	for _, id := range a.toolOrder {
		st := a.tools[id]
		res.ToolCalls = append(res.ToolCalls, types.ToolCall{
			ID:        id,
			Name:      st.name,
			Arguments: st.args.String(),
		})
	}
	return res, nil
}
