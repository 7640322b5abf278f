package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/types"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
)

func init() {
	Register(config.ProviderAnthropic, func(cfg config.ProviderConfig, client *http.Client) (Adapter, error) {
		return newAnthropicAdapter(cfg, client), nil
	})
}

// AnthropicAdapter speaks the Messages API. Usage arrives split across
// message_start (prompt + cache tokens, keyed by the message id) and
// message_delta (final output tally, no id); the ledger folds the two
// reports together.
type AnthropicAdapter struct {
	cfg     config.ProviderConfig
	client  *http.Client
	baseURL string
}

func newAnthropicAdapter(cfg config.ProviderConfig, client *http.Client) *AnthropicAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicAdapter{cfg: cfg, client: client, baseURL: baseURL}
}

func (a *AnthropicAdapter) Name() string       { return config.ProviderAnthropic }
func (a *AnthropicAdapter) Model() string      { return a.cfg.Model }
func (a *AnthropicAdapter) EchoesPrefix() bool { return false }

func (a *AnthropicAdapter) Prepare(ctx context.Context, params *Params) (*http.Request, error) {
	var system string
	var messages []anthropicMessage
	for _, m := range params.Messages {
		if m.Role == types.RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		messages = append(messages, anthropicMessage{
			Role:    string(m.Role),
			Content: toAnthropicContent(m),
		})
	}

	body := anthropicRequestBody{
		Model:       a.cfg.Model,
		Messages:    messages,
		System:      system,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		Stream:      params.Stream,
	}
	if params.Stop != "" {
		body.StopSequences = []string{params.Stop}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	return req, nil
}

func (a *AnthropicAdapter) Invoke(req *http.Request) (*http.Response, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, mapProviderError(config.ProviderAnthropic, a.cfg.Model, resp.StatusCode, resp.Header, body)
	}
	return resp, nil
}

func (a *AnthropicAdapter) ParseResponse(resp *http.Response) (*types.Completion, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read anthropic response: %w", err)
	}

	var parsed anthropicResponseBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal anthropic response: %w", err)
	}

	completion := &types.Completion{}
	for _, block := range parsed.Content {
		switch block.Type {
		case "text":
			completion.Text += block.Text
		case "tool_use":
			args, err := json.Marshal(block.Input)
			if err != nil {
				return nil, fmt.Errorf("marshal tool input: %w", err)
			}
			completion.ToolCalls = append(completion.ToolCalls, types.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(args),
			})
		}
	}
	completion.Usage = &types.UsageReport{
		CompletionID:     parsed.ID,
		PromptTokens:     parsed.Usage.InputTokens,
		ResponseTokens:   parsed.Usage.OutputTokens,
		CachedTokens:     parsed.Usage.CacheReadInputTokens,
		CacheWriteTokens: parsed.Usage.CacheCreationInputTokens,
	}
	return completion, nil
}

// Normalize converts one Messages-API SSE payload. Events: message_start
// carries the prompt-side usage, content_block_delta carries text or
// tool-argument fragments, content_block_start opens a tool call,
// message_delta carries the final output token tally. Everything else
// (ping, content_block_stop, message_stop) is skipped.
func (a *AnthropicAdapter) Normalize(chunk []byte) (*types.StreamEvent, error) {
	var event anthropicStreamEvent
	if err := json.Unmarshal(chunk, &event); err != nil {
		return nil, fmt.Errorf("unmarshal anthropic stream event: %w", err)
	}

	switch event.Type {
	case "message_start":
		return &types.StreamEvent{Kind: types.EventUsage, Usage: &types.UsageReport{
			CompletionID:     event.Message.ID,
			PromptTokens:     event.Message.Usage.InputTokens,
			ResponseTokens:   event.Message.Usage.OutputTokens,
			CachedTokens:     event.Message.Usage.CacheReadInputTokens,
			CacheWriteTokens: event.Message.Usage.CacheCreationInputTokens,
		}}, nil

	case "content_block_start":
		if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
			return &types.StreamEvent{Kind: types.EventToolStart, ToolStart: &types.ToolStart{
				Index: event.Index,
				ID:    event.ContentBlock.ID,
				Name:  event.ContentBlock.Name,
			}}, nil
		}
		// Text block opener carries no text.
		return nil, nil

	case "content_block_delta":
		switch event.Delta.Type {
		case "text_delta":
			return &types.StreamEvent{Kind: types.EventText, TextDelta: event.Delta.Text}, nil
		case "input_json_delta":
			return &types.StreamEvent{Kind: types.EventToolDelta, ToolDelta: &types.ToolDelta{
				Index:          event.Index,
				ArgumentsDelta: event.Delta.PartialJSON,
			}}, nil
		}
		return nil, nil

	case "message_delta":
		// Final output tally; no message id on this event, the ledger
		// attributes it to the most recent completion.
		return &types.StreamEvent{Kind: types.EventUsage, Usage: &types.UsageReport{
			ResponseTokens: event.Usage.OutputTokens,
		}}, nil

	default:
		return nil, nil
	}
}

// CountTokens uses the backend's remote counting endpoint; the Messages
// API has no local tokenizer.
func (a *AnthropicAdapter) CountTokens(ctx context.Context, text string) (int, error) {
	body := anthropicCountRequest{
		Model: a.cfg.Model,
		Messages: []anthropicMessage{
			{Role: "user", Content: text},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal count request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages/count_tokens", bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("create count request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.cfg.APIKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("anthropic count tokens: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read count response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, mapProviderError(config.ProviderAnthropic, a.cfg.Model, resp.StatusCode, resp.Header, respBody)
	}

	var parsed struct {
		InputTokens int `json:"input_tokens"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return 0, fmt.Errorf("unmarshal count response: %w", err)
	}
	return parsed.InputTokens, nil
}

// Verify probes credentials via the counting endpoint, which is free.
func (a *AnthropicAdapter) Verify(ctx context.Context) error {
	_, err := a.CountTokens(ctx, "ping")
	return err
}

// Messages API wire types.

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicContentPart struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func toAnthropicContent(m types.Message) any {
	if len(m.Images) == 0 {
		return m.Content
	}
	parts := []anthropicContentPart{{Type: "text", Text: m.Content}}
	for _, img := range m.Images {
		parts = append(parts, anthropicContentPart{
			Type: "image",
			Source: &anthropicImageSource{
				Type:      "base64",
				MediaType: "image/jpeg",
				Data:      img,
			},
		})
	}
	return parts
}

type anthropicRequestBody struct {
	Model         string             `json:"model"`
	Messages      []anthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float64            `json:"temperature"`
	Stream        bool               `json:"stream,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicCountRequest struct {
	Model    string             `json:"model"`
	Messages []anthropicMessage `json:"messages"`
}

type anthropicUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

type anthropicResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type  string         `json:"type"`
		Text  string         `json:"text,omitempty"`
		ID    string         `json:"id,omitempty"`
		Name  string         `json:"name,omitempty"`
		Input map[string]any `json:"input,omitempty"`
	} `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message struct {
		ID    string         `json:"id"`
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage anthropicUsage `json:"usage"`
}
