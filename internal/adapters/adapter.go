// Package adapters hides vendor-specific request, stream and token
// accounting shapes behind one capability contract.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/types"
)

// Params is the provider-agnostic completion request an adapter turns
// into a native HTTP request. Stop carries an optional stop sequence
// (used to terminate reasoner output at the closing think marker).
type Params struct {
	Messages []types.Message
	Stream   bool
	Stop     string
}

// Adapter is the uniform capability set every backend integration
// exposes: build a native request, invoke it, normalize one raw stream
// element, and count tokens.
type Adapter interface {
	Name() string
	Model() string

	// EchoesPrefix reports whether the backend replays a primed
	// assistant prefix through its stream before new tokens.
	EchoesPrefix() bool

	Prepare(ctx context.Context, params *Params) (*http.Request, error)
	Invoke(req *http.Request) (*http.Response, error)
	ParseResponse(resp *http.Response) (*types.Completion, error)

	// Normalize converts one raw stream payload into a canonical event.
	// It returns (nil, nil) for elements that are not terminal-user
	// visible, e.g. an opening content-block marker without text.
	Normalize(chunk []byte) (*types.StreamEvent, error)

	CountTokens(ctx context.Context, text string) (int, error)

	// Verify probes the backend with the configured credentials.
	Verify(ctx context.Context) error
}

// Factory builds an adapter from a validated provider config.
type Factory func(cfg config.ProviderConfig, client *http.Client) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register installs a factory under a provider name. Later registrations
// replace earlier ones.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New constructs the adapter for cfg.Provider. Construction fails with an
// AuthenticationError when no credentials are configured.
func New(cfg config.ProviderConfig, client *http.Client) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q (known: %s)", cfg.Provider, strings.Join(Registered(), ", "))
	}
	if cfg.APIKey == "" {
		return nil, &types.AuthenticationError{
			Provider:   cfg.Provider,
			Message:    "no API key configured",
			StatusCode: http.StatusUnauthorized,
		}
	}
	if client == nil {
		client = http.DefaultClient
	}
	return factory(cfg, client)
}

// Registered lists the known provider names, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// mapProviderError classifies a non-2xx provider response into the error
// taxonomy.
func mapProviderError(provider, model string, statusCode int, headers http.Header, body []byte) error {
	message := string(body)
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	lower := strings.ToLower(message)
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &types.AuthenticationError{Provider: provider, Message: message, StatusCode: statusCode}
	case statusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if v := headers.Get("Retry-After"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				retryAfter = n
			}
		}
		return &types.RateLimitError{Provider: provider, Message: message, StatusCode: statusCode, RetryAfter: retryAfter}
	case statusCode == http.StatusBadRequest && (strings.Contains(lower, "credit") || strings.Contains(lower, "balance")):
		return &types.BalanceError{Provider: provider, Message: message, StatusCode: statusCode}
	case statusCode == http.StatusNotFound || (statusCode == http.StatusBadRequest && strings.Contains(lower, "model")):
		return &types.ModelError{Provider: provider, Model: model, Message: message}
	default:
		return fmt.Errorf("%s returned status %d: %s", provider, statusCode, message)
	}
}
