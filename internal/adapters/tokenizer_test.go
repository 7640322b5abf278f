package adapters

import "testing"

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name  string
		model string
		text  string
		want  int
	}{
		{"empty text", "gpt-4o", "", 0},
		{"single rune floors to one", "gpt-4o", "a", 1},
		{"forty ascii chars at four per token", "gpt-4o", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 10},
		{"unknown model uses default ratio", "totally-new-model", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.model, tt.text); got != tt.want {
				t.Errorf("EstimateTokens(%q, ...) = %d, want %d", tt.model, got, tt.want)
			}
		})
	}
}

func TestEstimateTokens_WordLowerBound(t *testing.T) {
	// Nine one-letter words in 17 chars: the char ratio alone would give
	// 4, but no tokenizer merges across spaces.
	text := "a b c d e f g h i"
	if got := EstimateTokens("gpt-4o", text); got < 9 {
		t.Errorf("got %d, want at least 9 (one per word)", got)
	}
}

func TestEstimateTokens_ModelFamilyRatio(t *testing.T) {
	text := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" // 38 chars
	claude := EstimateTokens("claude-sonnet-4", text)
	gpt := EstimateTokens("gpt-4o", text)
	if claude <= gpt {
		t.Errorf("claude ratio (3.8) should yield more tokens than gpt (4.0): %d vs %d", claude, gpt)
	}
}
