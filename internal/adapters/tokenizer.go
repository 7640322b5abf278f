package adapters

import (
	"strings"
	"unicode/utf8"
)

// charsPerToken maps model-family prefixes to an average character-per-
// token ratio for the family's encoding. Used as the fallback counter for
// backends without a remote token-counting call; the default matches the
// gpt-4o encoding, a known-good baseline for unrecognized models.
var charsPerToken = map[string]float64{
	"gpt-4":      4.0,
	"gpt-3.5":    4.0,
	"o1":         4.0,
	"o3":         4.0,
	"claude":     3.8,
	"mistral":    3.9,
	"ministral":  3.9,
	"codestral":  3.4,
	"pixtral":    3.9,
	"deepseek":   3.7,
	"gemini":     4.0,
	"meta-llama": 3.8,
	"qwen":       3.7,
}

const defaultCharsPerToken = 4.0

// EstimateTokens approximates the token count of text under the encoding
// implied by model. Deterministic and cheap; accounting-grade counts come
// from provider usage reports, this only feeds pre-flight sizing.
func EstimateTokens(model, text string) int {
	if text == "" {
		return 0
	}
	ratio := defaultCharsPerToken
	lower := strings.ToLower(model)
	for prefix, r := range charsPerToken {
		if strings.HasPrefix(lower, prefix) {
			ratio = r
			break
		}
	}

	runes := utf8.RuneCountInString(text)
	tokens := int(float64(runes)/ratio + 0.5)
	// Whitespace-separated words are a lower bound: no tokenizer merges
	// across spaces.
	words := len(strings.Fields(text))
	if tokens < words {
		tokens = words
	}
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
