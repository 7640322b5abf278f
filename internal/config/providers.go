package config

import (
	"fmt"
	"slices"
)

// Provider identifiers accepted by the adapter registry.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderMistral    = "mistral"
	ProviderGroq       = "groq"
	ProviderGemini     = "gemini"
	ProviderNvidia     = "nvidia"
	ProviderOpenRouter = "openrouter"
	ProviderDeepSeek   = "deepseek"
)

var knownProviders = []string{
	ProviderOpenAI, ProviderAnthropic, ProviderMistral, ProviderGroq,
	ProviderGemini, ProviderNvidia, ProviderOpenRouter, ProviderDeepSeek,
}

// Only these provider/model pairs may serve as a reasoner.
var (
	reasonerProviders = []string{ProviderGroq, ProviderOpenRouter, ProviderNvidia}
	reasonerModels    = []string{
		"deepseek-r1-distill-llama-70b",
		"deepseek-ai/deepseek-r1",
		"deepseek/deepseek-r1:free",
	}
)

// DefaultMaxTokens bounds completion output when unset.
const DefaultMaxTokens = 124000

// ProviderConfig describes one orchestrator's backend. It is an immutable
// value: derive changed copies with WithModel and friends rather than
// mutating in place.
type ProviderConfig struct {
	Provider    string          `yaml:"provider"`
	APIKey      string          `yaml:"api_key"`
	Model       string          `yaml:"model"`
	BaseURL     string          `yaml:"base_url,omitempty"`
	Temperature float64         `yaml:"temperature"`
	MaxTokens   int             `yaml:"max_tokens"`
	Reasoner    *ProviderConfig `yaml:"reasoner,omitempty"`
}

// NewProviderConfig validates and normalizes a provider config. Invalid
// temperature or reasoner combinations are rejected here, not at call
// time.
func NewProviderConfig(cfg ProviderConfig) (ProviderConfig, error) {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if err := cfg.Validate(); err != nil {
		return ProviderConfig{}, err
	}
	return cfg, nil
}

// Validate enforces the construction invariants.
func (c ProviderConfig) Validate() error {
	if !slices.Contains(knownProviders, c.Provider) {
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature %g outside [0, 1]", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d", c.MaxTokens)
	}
	if c.Reasoner != nil {
		if err := c.Reasoner.validateAsReasoner(); err != nil {
			return err
		}
	}
	return nil
}

func (c *ProviderConfig) validateAsReasoner() error {
	if !slices.Contains(reasonerProviders, c.Provider) {
		return fmt.Errorf("provider %q cannot serve as a reasoner (allowed: %v)", c.Provider, reasonerProviders)
	}
	if !slices.Contains(reasonerModels, c.Model) {
		return fmt.Errorf("model %q cannot serve as a reasoner (allowed: %v)", c.Model, reasonerModels)
	}
	// Reasoner nesting stops at depth one.
	if c.Reasoner != nil {
		return fmt.Errorf("a reasoner config may not itself have a reasoner")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("reasoner temperature %g outside [0, 1]", c.Temperature)
	}
	return nil
}

// WithModel returns a copy targeting a different model.
func (c ProviderConfig) WithModel(model string) ProviderConfig {
	c.Model = model
	return c
}

// WithTemperature returns a copy with a different temperature. The copy
// still needs Validate before use.
func (c ProviderConfig) WithTemperature(t float64) ProviderConfig {
	c.Temperature = t
	return c
}

// OrchestratorsConfig is the providers.yaml document: named orchestrator
// configurations.
type OrchestratorsConfig struct {
	Orchestrators map[string]ProviderConfig `yaml:"orchestrators"`
	Default       string                    `yaml:"default"`
}

// Validate checks every named config and the default reference.
func (o *OrchestratorsConfig) Validate() error {
	for name, cfg := range o.Orchestrators {
		normalized, err := NewProviderConfig(cfg)
		if err != nil {
			return fmt.Errorf("orchestrator %q: %w", name, err)
		}
		o.Orchestrators[name] = normalized
	}
	if o.Default != "" {
		if _, ok := o.Orchestrators[o.Default]; !ok {
			return fmt.Errorf("default orchestrator %q is not defined", o.Default)
		}
	}
	return nil
}
