package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/af-corp/conduit/internal/config"
)

const mistralBaseURL = "https://api.mistral.ai/v1"

func init() {
	Register(config.ProviderMistral, func(cfg config.ProviderConfig, client *http.Client) (Adapter, error) {
		return newMistralAdapter(cfg, client), nil
	})
}

// MistralAdapter reuses the chat-completions wire format but supports
// assistant prefix priming: a trailing assistant message marked
// "prefix": true is echoed through the stream before new tokens, so the
// aggregator must suppress it.
type MistralAdapter struct {
	OpenAIAdapter
}

func newMistralAdapter(cfg config.ProviderConfig, client *http.Client) *MistralAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = mistralBaseURL
	}
	return &MistralAdapter{OpenAIAdapter{
		provider: config.ProviderMistral,
		cfg:      cfg,
		client:   client,
		baseURL:  baseURL,
	}}
}

func (a *MistralAdapter) EchoesPrefix() bool { return true }

func (a *MistralAdapter) Prepare(ctx context.Context, params *Params) (*http.Request, error) {
	body := chatRequestBody{
		Model:       a.cfg.Model,
		Messages:    toChatMessages(params.Messages, true),
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
		Stream:      params.Stream,
	}
	if params.Stop != "" {
		body.Stop = []string{params.Stop}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal mistral request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	return req, nil
}
