package pricing

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// defaultTable maps "{provider}-{model}" to pricing rules. Rates are USD
// per 1M tokens, sourced from the published vendor price lists.
var defaultTable = map[string]Config{
	// https://www.anthropic.com/pricing#anthropic-api
	"anthropic-claude-3-7-sonnet-latest": {Rates: Rates{Input: 3, Output: 15, Cached: 0.30, CacheWrite: 3.75}},
	"anthropic-claude-3-5-sonnet-latest": {Rates: Rates{Input: 3, Output: 15, Cached: 0.30, CacheWrite: 3.75}},
	"anthropic-claude-3-5-haiku-latest":  {Rates: Rates{Input: 0.8, Output: 4, Cached: 0.08, CacheWrite: 1}},

	// https://openai.com/api/pricing/
	"openai-gpt-4o":      {Rates: Rates{Input: 2.5, Output: 10, Cached: 1.25}},
	"openai-gpt-4o-mini": {Rates: Rates{Input: 0.15, Output: 0.6, Cached: 0.075}},
	"openai-gpt-4.5":     {Rates: Rates{Input: 75, Output: 150, Cached: 37.5}},
	"openai-o1":          {Rates: Rates{Input: 15, Output: 60, Cached: 7.5}},
	"openai-o3-mini":     {Rates: Rates{Input: 1.1, Output: 4.40, Cached: 0.55}},

	// https://mistral.ai/products/la-plateforme#pricing
	"mistral-mistral-large-latest":  {Rates: Rates{Input: 2, Output: 6}},
	"mistral-mistral-small-latest":  {Rates: Rates{Input: 0.1, Output: 0.3}},
	"mistral-pixtral-large-latest":  {Rates: Rates{Input: 2, Output: 6}},
	"mistral-codestral-latest":      {Rates: Rates{Input: 0.3, Output: 0.9}},
	"mistral-ministral-8b-latest":   {Rates: Rates{Input: 0.1, Output: 0.1}},
	"mistral-ministral-3b-latest":   {Rates: Rates{Input: 0.04, Output: 0.04}},
	"mistral-pixtral-12b":           {Rates: Rates{Input: 0.15, Output: 0.15}},
	"mistral-mistral-nemo":          {Rates: Rates{Input: 0.15, Output: 0.15}},

	// https://ai.google.dev/pricing — the 2.5 pro tier switches to
	// long-context rates above 200k tokens.
	"gemini-gemini-2.0-flash":      {Rates: Rates{Input: 0.10, Output: 0.4}},
	"gemini-gemini-2.0-flash-lite": {Rates: Rates{Input: 0.075, Output: 0.3}},
	"gemini-gemini-2.5-pro-preview-03-25": {
		Rates:   Rates{Input: 1.25, Output: 10},
		Dynamic: &Dynamic{TokenThreshold: 200_000, Rates: Rates{Input: 2.50, Output: 15}},
	},

	// https://groq.com/pricing/
	"groq-meta-llama/llama-4-scout-17b-16e-instruct":    {Rates: Rates{Input: 0.11, Output: 0.34}},
	"groq-meta-llama/llama-4-maverick-17b-128e-instruct": {Rates: Rates{Input: 0.5, Output: 0.77}},
	"groq-deepseek-r1-distill-llama-70b":                {Rates: Rates{Input: 0.75, Output: 0.99}},
	"groq-qwen-qwq-32b":                                 {Rates: Rates{Input: 0.29, Output: 0.39}},
	"groq-mistral-saba-24b":                             {Rates: Rates{Input: 0.79, Output: 0.79}},

	// https://api-docs.deepseek.com/quick_start/pricing — off-peak
	// discount window 16:30-00:30 UTC.
	"deepseek-deepseek-reasoner": {
		Rates: Rates{Input: 0.55, Output: 2.19, Cached: 0.14},
		HappyHour: &HappyHour{
			Start:  "16:30",
			Finish: "00:30",
			Rates:  Rates{Input: 0.135, Output: 0.550, Cached: 0.035},
		},
	},
	"deepseek-deepseek-chat": {
		Rates: Rates{Input: 0.27, Output: 1.10, Cached: 0.07},
		HappyHour: &HappyHour{
			Start:  "16:30",
			Finish: "00:30",
			Rates:  Rates{Input: 0.135, Output: 0.550, Cached: 0.035},
		},
	},
}

// Table holds pricing rules keyed by "{provider}-{model}".
type Table map[string]Config

// DefaultTable returns a copy of the built-in pricing table.
func DefaultTable() Table {
	t := make(Table, len(defaultTable))
	for k, v := range defaultTable {
		t[k] = v
	}
	return t
}

// Lookup resolves the pricing config for a provider/model pair. The second
// return is false for unpriced models (local deployments, free tiers).
func (t Table) Lookup(provider, model string) (Config, bool) {
	cfg, ok := t[provider+"-"+model]
	return cfg, ok
}

// MergeYAML parses a YAML pricing document and overlays its entries onto
// the table. Entries are validated before being accepted.
func (t Table) MergeYAML(data []byte) error {
	var overrides map[string]Config
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse pricing overrides: %w", err)
	}
	for key, cfg := range overrides {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("pricing entry %q: %w", key, err)
		}
		t[key] = cfg
	}
	return nil
}
