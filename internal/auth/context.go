package auth

import "context"

type contextKey string

const authContextKey contextKey = "conduit_auth"

// AuthInfo holds authenticated identity information extracted from an API key.
type AuthInfo struct {
	KeyID                string
	OrganizationID       string
	TeamID               string
	UserID               string
	AllowedModels        []string
	RPMLimit             *int
	DailySpendLimitCents *int
}

// ModelAllowed reports whether the key may use model. An empty allow-list
// permits every model.
func (a *AuthInfo) ModelAllowed(model string) bool {
	if len(a.AllowedModels) == 0 {
		return true
	}
	for _, m := range a.AllowedModels {
		if m == model {
			return true
		}
	}
	return false
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
