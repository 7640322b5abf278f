package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/types"
)

func anthropicTestAdapter(t *testing.T, baseURL string) *AnthropicAdapter {
	t.Helper()
	cfg := config.ProviderConfig{
		Provider:    config.ProviderAnthropic,
		APIKey:      "sk-ant-test",
		Model:       "claude-sonnet-4",
		BaseURL:     baseURL,
		Temperature: 0.5,
		MaxTokens:   2048,
	}
	adapter, err := New(cfg, http.DefaultClient)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return adapter.(*AnthropicAdapter)
}

func TestAnthropicPrepare(t *testing.T) {
	a := anthropicTestAdapter(t, "https://example.invalid/v1")

	req, err := a.Prepare(context.Background(), &Params{
		Messages: []types.Message{
			types.SystemMessage("be terse"),
			types.UserMessage("hello"),
		},
		Stream: true,
		Stop:   "</think>",
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if got := req.Header.Get("x-api-key"); got != "sk-ant-test" {
		t.Errorf("x-api-key = %q", got)
	}
	if got := req.Header.Get("anthropic-version"); got != anthropicAPIVersion {
		t.Errorf("anthropic-version = %q", got)
	}

	body, _ := io.ReadAll(req.Body)
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("body not json: %v", err)
	}
	// System prompts move to the top-level field, not the message list.
	if parsed["system"] != "be terse" {
		t.Errorf("system = %v", parsed["system"])
	}
	msgs := parsed["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after system extraction, got %d", len(msgs))
	}
	stops := parsed["stop_sequences"].([]any)
	if len(stops) != 1 || stops[0] != "</think>" {
		t.Errorf("stop_sequences = %v", stops)
	}
}

func TestAnthropicNormalize(t *testing.T) {
	a := anthropicTestAdapter(t, "")

	tests := []struct {
		name  string
		chunk string
		check func(t *testing.T, ev *types.StreamEvent)
	}{
		{
			name: "message_start usage",
			chunk: `{"type":"message_start","message":{"id":"msg_1",
				"usage":{"input_tokens":25,"output_tokens":1,"cache_read_input_tokens":10,"cache_creation_input_tokens":5}}}`,
			check: func(t *testing.T, ev *types.StreamEvent) {
				if ev == nil || ev.Kind != types.EventUsage {
					t.Fatalf("got %+v", ev)
				}
				u := ev.Usage
				if u.CompletionID != "msg_1" || u.PromptTokens != 25 || u.CachedTokens != 10 || u.CacheWriteTokens != 5 {
					t.Errorf("usage = %+v", u)
				}
			},
		},
		{
			name:  "text delta",
			chunk: `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`,
			check: func(t *testing.T, ev *types.StreamEvent) {
				if ev == nil || ev.Kind != types.EventText || ev.TextDelta != "Hi" {
					t.Errorf("got %+v", ev)
				}
			},
		},
		{
			name:  "tool start",
			chunk: `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"search"}}`,
			check: func(t *testing.T, ev *types.StreamEvent) {
				if ev == nil || ev.Kind != types.EventToolStart {
					t.Fatalf("got %+v", ev)
				}
				if ev.ToolStart.Index != 1 || ev.ToolStart.ID != "toolu_1" || ev.ToolStart.Name != "search" {
					t.Errorf("tool start = %+v", ev.ToolStart)
				}
			},
		},
		{
			name:  "tool argument delta",
			chunk: `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"q\""}}`,
			check: func(t *testing.T, ev *types.StreamEvent) {
				if ev == nil || ev.Kind != types.EventToolDelta {
					t.Fatalf("got %+v", ev)
				}
				if ev.ToolDelta.Index != 1 || ev.ToolDelta.ArgumentsDelta != `{"q"` {
					t.Errorf("tool delta = %+v", ev.ToolDelta)
				}
			},
		},
		{
			name:  "message_delta usage has no id",
			chunk: `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":42}}`,
			check: func(t *testing.T, ev *types.StreamEvent) {
				if ev == nil || ev.Kind != types.EventUsage {
					t.Fatalf("got %+v", ev)
				}
				if ev.Usage.CompletionID != "" || ev.Usage.ResponseTokens != 42 {
					t.Errorf("usage = %+v", ev.Usage)
				}
			},
		},
		{
			name:  "ping skipped",
			chunk: `{"type":"ping"}`,
			check: func(t *testing.T, ev *types.StreamEvent) {
				if ev != nil {
					t.Errorf("expected nil, got %+v", ev)
				}
			},
		},
		{
			name:  "content_block_stop skipped",
			chunk: `{"type":"content_block_stop","index":0}`,
			check: func(t *testing.T, ev *types.StreamEvent) {
				if ev != nil {
					t.Errorf("expected nil, got %+v", ev)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := a.Normalize([]byte(tt.chunk))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			tt.check(t, ev)
		})
	}
}

func TestAnthropicParseResponse_ToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_2",
			"model": "claude-sonnet-4",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "toolu_9", "name": "weather", "input": {"city": "Lisbon"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 30, "output_tokens": 12, "cache_read_input_tokens": 8}
		}`))
	}))
	defer server.Close()

	a := anthropicTestAdapter(t, server.URL)
	req, _ := a.Prepare(context.Background(), &Params{Messages: []types.Message{types.UserMessage("weather?")}})
	resp, err := a.Invoke(req)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	completion, err := a.ParseResponse(resp)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if completion.Text != "Let me check." {
		t.Errorf("text = %q", completion.Text)
	}
	if len(completion.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(completion.ToolCalls))
	}
	tc := completion.ToolCalls[0]
	if tc.ID != "toolu_9" || tc.Name != "weather" {
		t.Errorf("tool call = %+v", tc)
	}
	var args map[string]string
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		t.Fatalf("tool arguments not json: %v", err)
	}
	if args["city"] != "Lisbon" {
		t.Errorf("args = %v", args)
	}
	if completion.Usage.PromptTokens != 30 || completion.Usage.CachedTokens != 8 {
		t.Errorf("usage = %+v", completion.Usage)
	}
}

func TestAnthropicCountTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/count_tokens" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"input_tokens": 17}`))
	}))
	defer server.Close()

	a := anthropicTestAdapter(t, server.URL)
	n, err := a.CountTokens(context.Background(), "how many tokens is this")
	if err != nil {
		t.Fatalf("CountTokens: %v", err)
	}
	if n != 17 {
		t.Errorf("tokens = %d, want 17", n)
	}
}

func TestAnthropicInvoke_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	a := anthropicTestAdapter(t, server.URL)
	req, _ := a.Prepare(context.Background(), &Params{Messages: []types.Message{types.UserMessage("hi")}})
	_, err := a.Invoke(req)
	if err == nil {
		t.Fatal("expected error")
	}
	if types.IsRateLimited(err) {
		t.Errorf("auth failure must not classify as rate limited: %v", err)
	}
}
