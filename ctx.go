package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

// ClaimsContextKey is the Locals key the gate stores validated claims
// under.
const ClaimsContextKey = "auth_claims"

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithClaimsContext sets the session claims in the given context
func WithClaimsContext(r context.Context, claims *TokenClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the session claims from the standard context
func GetClaims(ctx context.Context) (*TokenClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*TokenClaims)
	return raw, ok
}

// GetRouterClaims extracts the session claims from the router context
func GetRouterClaims(ctx router.Context, key ...string) (*TokenClaims, bool) {
	lookup := ClaimsContextKey
	if len(key) > 0 && key[0] != "" {
		lookup = key[0]
	}
	raw := ctx.Locals(lookup)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(*TokenClaims)
	return claims, ok
}
