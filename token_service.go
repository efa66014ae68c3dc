package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Default lifetimes per audience.
const (
	DefaultSessionTTL      = time.Hour
	DefaultVerificationTTL = 24 * time.Hour
	DefaultResetTTL        = time.Hour
)

// DefaultIssuer tags every minted token.
const DefaultIssuer = "semantq-auth"

// TokenService mints and validates the three token kinds. It is
// stateless apart from the signing secret and the clock, so a single
// instance is safe for concurrent use.
type TokenService struct {
	signingKey      []byte
	issuer          string
	sessionTTL      time.Duration
	verificationTTL time.Duration
	resetTTL        time.Duration
	clock           func() time.Time
	logger          Logger
}

// NewTokenService creates a TokenService with default lifetimes.
func NewTokenService(signingKey []byte, issuer string) *TokenService {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &TokenService{
		signingKey:      signingKey,
		issuer:          issuer,
		sessionTTL:      DefaultSessionTTL,
		verificationTTL: DefaultVerificationTTL,
		resetTTL:        DefaultResetTTL,
		clock:           time.Now,
		logger:          defLogger{},
	}
}

func (ts *TokenService) WithLogger(logger Logger) *TokenService {
	if logger != nil {
		ts.logger = logger
	}
	return ts
}

// WithClock overrides the time source. Validation uses the same clock,
// so expiry behavior stays consistent with minting.
func (ts *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		ts.clock = clock
	}
	return ts
}

// WithTTLs overrides the per-audience lifetimes. Zero keeps the default.
func (ts *TokenService) WithTTLs(session, verification, reset time.Duration) *TokenService {
	if session > 0 {
		ts.sessionTTL = session
	}
	if verification > 0 {
		ts.verificationTTL = verification
	}
	if reset > 0 {
		ts.resetTTL = reset
	}
	return ts
}

// MintSession issues the bearer credential returned on login. Access
// level rides in the claims so the authorization gate never needs a
// store round-trip.
func (ts *TokenService) MintSession(user *User) (string, error) {
	if user == nil {
		return "", goerrors.New("user is required to mint a session token", goerrors.CategoryBadInput)
	}

	claims := ts.newClaims(AudienceSession, user.ID.String(), ts.sessionTTL)
	claims.UserID = user.ID.String()
	claims.Email = user.Email
	claims.Username = user.Username
	claims.AccessLevel = user.AccessLevel

	return ts.sign(claims)
}

// MintVerification issues an email-verification token. The returned
// expiry is read back from the minted token's own exp claim so the value
// persisted next to the token can never drift from the token itself.
func (ts *TokenService) MintVerification(email string) (string, time.Time, error) {
	claims := ts.newClaims(AudienceEmailVerification, email, ts.verificationTTL)
	claims.Email = email

	return ts.signWithExpiry(claims, AudienceEmailVerification)
}

// MintPasswordReset issues a password-reset token for the given user.
func (ts *TokenService) MintPasswordReset(userID uuid.UUID) (string, time.Time, error) {
	claims := ts.newClaims(AudiencePasswordReset, userID.String(), ts.resetTTL)
	claims.UserID = userID.String()

	return ts.signWithExpiry(claims, AudiencePasswordReset)
}

// Validate parses a token and checks signature, expiry, issuer, and
// audience. A structurally valid token minted for a different audience
// fails with ErrTokenInvalid: reset tokens never open sessions.
func (ts *TokenService) Validate(tokenString, expectedAudience string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	},
		jwt.WithIssuer(ts.issuer),
		jwt.WithAudience(expectedAudience),
		jwt.WithTimeFunc(ts.clock),
	)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, goerrors.Wrap(err, ErrTokenInvalid.Category, ErrTokenInvalid.Message).
			WithTextCode(ErrTokenInvalid.TextCode)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		ts.logger.Error("could not decode token claims")
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (ts *TokenService) newClaims(audience, subject string, ttl time.Duration) *TokenClaims {
	now := ts.clock()
	return &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
}

func (ts *TokenService) sign(claims *TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

func (ts *TokenService) signWithExpiry(claims *TokenClaims, audience string) (string, time.Time, error) {
	signed, err := ts.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	// Decode the freshly minted token rather than trusting the local
	// claims struct: what we persist must match what the token says.
	decoded, err := ts.Validate(signed, audience)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "minted token failed self-validation")
	}

	return signed, decoded.Expires(), nil
}
