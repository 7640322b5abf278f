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

// Default endpoints for the chat-completions-compatible providers.
var openAICompatibleBaseURLs = map[string]string{
	config.ProviderOpenAI:     "https://api.openai.com/v1",
	config.ProviderGroq:       "https://api.groq.com/openai/v1",
	config.ProviderNvidia:     "https://integrate.api.nvidia.com/v1",
	config.ProviderOpenRouter: "https://openrouter.ai/api/v1",
	config.ProviderDeepSeek:   "https://api.deepseek.com/v1",
	config.ProviderGemini:     "https://generativelanguage.googleapis.com/v1beta/openai",
}

func init() {
	for name := range openAICompatibleBaseURLs {
		provider := name
		Register(provider, func(cfg config.ProviderConfig, client *http.Client) (Adapter, error) {
			return newOpenAIAdapter(provider, cfg, client), nil
		})
	}
}

// OpenAIAdapter speaks the chat-completions wire format shared by OpenAI
// and the compatible backends (groq, nvidia, openrouter, deepseek, and
// gemini's compatibility endpoint).
type OpenAIAdapter struct {
	provider string
	cfg      config.ProviderConfig
	client   *http.Client
	baseURL  string
}

func newOpenAIAdapter(provider string, cfg config.ProviderConfig, client *http.Client) *OpenAIAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAICompatibleBaseURLs[provider]
	}
	return &OpenAIAdapter{provider: provider, cfg: cfg, client: client, baseURL: baseURL}
}

func (a *OpenAIAdapter) Name() string       { return a.provider }
func (a *OpenAIAdapter) Model() string      { return a.cfg.Model }
func (a *OpenAIAdapter) EchoesPrefix() bool { return false }

func (a *OpenAIAdapter) Prepare(ctx context.Context, params *Params) (*http.Request, error) {
	body := chatRequestBody{
		Model:       a.cfg.Model,
		Messages:    toChatMessages(params.Messages, false),
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
		Stream:      params.Stream,
	}
	if params.Stream {
		body.StreamOptions = &chatStreamOptions{IncludeUsage: true}
	}
	if params.Stop != "" {
		body.Stop = []string{params.Stop}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", a.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	return req, nil
}

func (a *OpenAIAdapter) Invoke(req *http.Request) (*http.Response, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", a.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, mapProviderError(a.provider, a.cfg.Model, resp.StatusCode, resp.Header, body)
	}
	return resp, nil
}

func (a *OpenAIAdapter) ParseResponse(resp *http.Response) (*types.Completion, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", a.provider, err)
	}

	var parsed chatResponseBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal %s response: %w", a.provider, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", a.provider)
	}

	completion := &types.Completion{Text: parsed.Choices[0].Message.Content}
	for _, tc := range parsed.Choices[0].Message.ToolCalls {
		completion.ToolCalls = append(completion.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if parsed.Usage != nil {
		completion.Usage = parsed.Usage.toReport(parsed.ID)
	}
	return completion, nil
}

// Normalize converts one chat-completions SSE payload to a canonical
// event. Chunks carrying neither content, tool calls nor usage map to
// nil (role-only openers, keep-alives).
func (a *OpenAIAdapter) Normalize(chunk []byte) (*types.StreamEvent, error) {
	var event chatStreamChunk
	if err := json.Unmarshal(chunk, &event); err != nil {
		return nil, fmt.Errorf("unmarshal %s stream chunk: %w", a.provider, err)
	}

	// The usage-only tail chunk has an empty choices list.
	if len(event.Choices) == 0 {
		if event.Usage != nil {
			return &types.StreamEvent{Kind: types.EventUsage, Usage: event.Usage.toReport(event.ID)}, nil
		}
		return nil, nil
	}

	delta := event.Choices[0].Delta
	if len(delta.ToolCalls) > 0 {
		tc := delta.ToolCalls[0]
		if tc.ID != "" || tc.Function.Name != "" {
			return &types.StreamEvent{Kind: types.EventToolStart, ToolStart: &types.ToolStart{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}}, nil
		}
		return &types.StreamEvent{Kind: types.EventToolDelta, ToolDelta: &types.ToolDelta{
			Index:          tc.Index,
			ArgumentsDelta: tc.Function.Arguments,
		}}, nil
	}

	if delta.Content != "" {
		return &types.StreamEvent{Kind: types.EventText, TextDelta: delta.Content}, nil
	}
	if event.Usage != nil {
		return &types.StreamEvent{Kind: types.EventUsage, Usage: event.Usage.toReport(event.ID)}, nil
	}
	return nil, nil
}

func (a *OpenAIAdapter) CountTokens(_ context.Context, text string) (int, error) {
	return EstimateTokens(a.cfg.Model, text), nil
}

// Verify lists models as a cheap credential probe.
func (a *OpenAIAdapter) Verify(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s verify: %w", a.provider, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return mapProviderError(a.provider, a.cfg.Model, resp.StatusCode, resp.Header, body)
	}
	return nil
}

// Chat-completions wire types, shared with the mistral adapter.

type chatRequestBody struct {
	Model         string             `json:"model"`
	Messages      []chatMessage      `json:"messages"`
	Temperature   float64            `json:"temperature"`
	MaxTokens     int                `json:"max_tokens,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	StreamOptions *chatStreamOptions `json:"stream_options,omitempty"`
	Stop          []string           `json:"stop,omitempty"`
}

type chatStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
	Prefix  bool   `json:"prefix,omitempty"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

// toChatMessages builds the wire messages. The prefix flag is only
// marshaled when the caller opts in (mistral); compatible backends that
// do not know the field would reject it.
func toChatMessages(messages []types.Message, includePrefix bool) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		cm := chatMessage{Role: string(m.Role)}
		if len(m.Images) == 0 {
			cm.Content = m.Content
		} else {
			parts := []chatContentPart{{Type: "text", Text: m.Content}}
			for _, img := range m.Images {
				parts = append(parts, chatContentPart{
					Type:     "image_url",
					ImageURL: &chatImageURL{URL: "data:image/jpeg;base64," + img},
				})
			}
			cm.Content = parts
		}
		if includePrefix && m.Prefix {
			cm.Prefix = true
		}
		out = append(out, cm)
	}
	return out
}

type chatResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string         `json:"role"`
			Content   string         `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

type chatToolCall struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type chatStreamChunk struct {
	ID      string `json:"id"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string         `json:"role,omitempty"`
			Content   string         `json:"content,omitempty"`
			ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

type chatUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
}

func (u *chatUsage) toReport(completionID string) *types.UsageReport {
	report := &types.UsageReport{
		CompletionID:   completionID,
		PromptTokens:   u.PromptTokens,
		ResponseTokens: u.CompletionTokens,
	}
	if u.PromptTokensDetails != nil {
		report.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	return report
}
