package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/af-corp/conduit/internal/llm"
	"github.com/af-corp/conduit/internal/usage"
)

// streamEvent is one SSE payload on the outgoing stream: text chunks
// while the completion runs, then exactly one terminal event carrying
// either the final usage or an error.
type streamEvent struct {
	Text  string                 `json:"text,omitempty"`
	Done  bool                   `json:"done,omitempty"`
	Usage *usage.CompletionUsage `json:"usage,omitempty"`
	Error *streamError           `json:"error,omitempty"`
}

type streamError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// streamCompletion runs the call and relays text chunks as SSE events.
// Headers are written before the first chunk, so failures after that
// point surface as an error event rather than a status code.
func (h *Handler) streamCompletion(w http.ResponseWriter, r *http.Request, orch *llm.Orchestrator, req llm.Request) (*llm.Result, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	write := func(ev streamEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	result, err := orch.CompleteStream(r.Context(), req, func(chunk string) error {
		return write(streamEvent{Text: chunk})
	})
	if err != nil {
		write(streamEvent{Done: true, Error: &streamError{Message: err.Error(), Type: "completion_error"}})
		return nil, err
	}

	u := result.Usage
	if err := write(streamEvent{Done: true, Usage: &u}); err != nil {
		return result, err
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
	return result, nil
}
