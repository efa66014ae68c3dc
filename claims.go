package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token audiences. A token is only ever valid for the flow named by its
// audience; Validate enforces the match.
const (
	// AudienceSession tokens are the bearer credential issued on login.
	AudienceSession = "session"
	// AudienceEmailVerification tokens confirm address ownership.
	AudienceEmailVerification = "email-verification"
	// AudiencePasswordReset tokens gate password recovery.
	AudiencePasswordReset = "password-reset"
)

// TokenClaims is the claim set shared by all three token kinds. Session
// tokens populate every field; verification tokens carry only the email
// and reset tokens only the user id.
type TokenClaims struct {
	jwt.RegisteredClaims
	UserID      string `json:"user_id,omitempty"`
	Email       string `json:"email,omitempty"`
	Username    string `json:"username,omitempty"`
	AccessLevel int    `json:"access_level,omitempty"`
}

// Audience returns the single audience tag the token was minted for.
func (c *TokenClaims) Audience() string {
	if len(c.RegisteredClaims.Audience) == 0 {
		return ""
	}
	return c.RegisteredClaims.Audience[0]
}

// HasAccessLevel reports whether the embedded level meets the threshold.
// A missing or sub-1 claim never satisfies any threshold.
func (c *TokenClaims) HasAccessLevel(required int) bool {
	if c.AccessLevel < 1 {
		return false
	}
	return c.AccessLevel >= required
}

// Expires returns the expiration time
func (c *TokenClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *TokenClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
