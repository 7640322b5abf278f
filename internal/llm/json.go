package llm

import (
	"encoding/json"
	"strings"

	"github.com/af-corp/conduit/internal/types"
)

// DecodeJSONOutput parses text as a JSON value after stripping a
// surrounding markdown code fence, if present. A parse failure surfaces
// as a StructuredOutputError carrying the raw text.
func DecodeJSONOutput(text string) (json.RawMessage, error) {
	stripped := stripFences(text)
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(stripped), &raw); err != nil {
		return nil, &types.StructuredOutputError{Raw: text, Cause: err}
	}
	return raw, nil
}

// stripFences removes one enclosing ``` fence, tolerating a language tag
// on the opening line and prose around the fence.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)

	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}
	rest := trimmed[start+3:]
	// Drop the language tag line ("json", "JSON", ...).
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return trimmed
	}
	end := strings.LastIndex(rest, "```")
	if end < 0 {
		return trimmed
	}
	return strings.TrimSpace(rest[:end])
}
