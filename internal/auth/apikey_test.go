package auth

import (
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey("prod")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	if !strings.HasPrefix(key, "conduit-prod-") {
		t.Errorf("key should start with 'conduit-prod-', got: %s", key)
	}

	// conduit-prod- is 13 chars, plus 32 random = 45 total
	if len(key) != 45 {
		t.Errorf("expected key length 45, got %d: %s", len(key), key)
	}

	// Ensure randomness: two keys should differ
	key2, _ := GenerateKey("prod")
	if key == key2 {
		t.Error("two generated keys should not be identical")
	}
}

func TestGenerateKey_DifferentEnv(t *testing.T) {
	key, err := GenerateKey("dev")
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if !strings.HasPrefix(key, "conduit-dev-") {
		t.Errorf("key should start with 'conduit-dev-', got: %s", key)
	}
}

func TestHashKey(t *testing.T) {
	key := "conduit-prod-abcdefghijklmnopqrstuvwxyz012345"
	hash := HashKey(key)

	// SHA-256 produces 64-char hex string
	if len(hash) != 64 {
		t.Errorf("expected hash length 64, got %d", len(hash))
	}

	// Same input should produce same hash
	hash2 := HashKey(key)
	if hash != hash2 {
		t.Error("same key should produce same hash")
	}

	// Different input should produce different hash
	hash3 := HashKey("conduit-prod-different")
	if hash == hash3 {
		t.Error("different keys should produce different hashes")
	}
}

func TestKeyPrefix(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"conduit-prod-abcdefghijklmnopqrstuvwxyz012345", "conduit-prod-abcdefgh"},
		{"conduit-dev-12345678901234567890123456789012", "conduit-dev-12345678"},
		{"short", "short"},
	}

	for _, tt := range tests {
		got := KeyPrefix(tt.key)
		if got != tt.expected {
			t.Errorf("KeyPrefix(%q) = %q, want %q", tt.key, got, tt.expected)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
		hours   float64
	}{
		{"365d", false, 365 * 24},
		{"30d", false, 30 * 24},
		{"24h", false, 24},
		{"1h", false, 1},
		{"", true, 0},
	}

	for _, tt := range tests {
		dur, err := ParseDuration(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDuration(%q) should have errored", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDuration(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if dur.Hours() != tt.hours {
			t.Errorf("ParseDuration(%q) = %v hours, want %v", tt.input, dur.Hours(), tt.hours)
		}
	}
}

func TestModelAllowed(t *testing.T) {
	open := &AuthInfo{}
	if !open.ModelAllowed("gpt-4o") {
		t.Error("empty allow-list must permit every model")
	}

	restricted := &AuthInfo{AllowedModels: []string{"gpt-4o-mini", "claude-3-5-haiku-latest"}}
	if !restricted.ModelAllowed("gpt-4o-mini") {
		t.Error("listed model must be allowed")
	}
	if restricted.ModelAllowed("gpt-4o") {
		t.Error("unlisted model must be rejected")
	}
}
