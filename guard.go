package auth

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// Guard enforces session validity and numeric access levels on routes.
// Routes declare the level they need; a session is admitted when its
// level is greater than or equal to the requirement.
type Guard struct {
	tokens       *TokenService
	cookieName   string
	logger       Logger
	ErrorHandler func(router.Context, error) error
}

func NewGuard(tokens *TokenService) *Guard {
	g := &Guard{
		tokens:     tokens,
		cookieName: DefaultCookieName,
		logger:     defLogger{},
	}
	g.ErrorHandler = g.defaultErrHandler
	return g
}

func (g *Guard) WithLogger(logger Logger) *Guard {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// WithCookieName overrides the session cookie the guard falls back to
// when no bearer header is present.
func (g *Guard) WithCookieName(name string) *Guard {
	if name != "" {
		g.cookieName = name
	}
	return g
}

// RequireSession admits any valid session regardless of level.
func (g *Guard) RequireSession() router.MiddlewareFunc {
	return g.RequireAccessLevel(1)
}

// RequireAccessLevel builds middleware that admits sessions at or above
// the given level. Validated claims are stored in Locals and in the Go
// context for downstream handlers.
func (g *Guard) RequireAccessLevel(required int) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			claims, err := g.admit(c, required)
			if err != nil {
				return g.ErrorHandler(c, err)
			}

			c.Locals(ClaimsContextKey, claims)
			c.SetContext(WithClaimsContext(c.Context(), claims))

			return next(c)
		}
	}
}

func (g *Guard) admit(c router.Context, required int) (*TokenClaims, error) {
	token := SessionFromRequest(c, g.cookieName)
	if token == "" {
		return nil, ErrTokenMissing
	}

	claims, err := g.tokens.Validate(token, AudienceSession)
	if err != nil {
		return nil, err
	}

	if err := Authorize(claims, required); err != nil {
		return nil, err
	}

	return claims, nil
}

// Authorize is the access decision on its own: no transport, no token
// parsing. Middleware and handlers that already hold claims both call
// this so the comparison lives in exactly one place.
func Authorize(claims *TokenClaims, required int) error {
	if claims == nil || claims.AccessLevel < 1 {
		return ErrMissingAccessLevel
	}

	if claims.AccessLevel < required {
		if clone := ErrInsufficientAccess.Clone(); clone != nil {
			clone.Source = ErrInsufficientAccess
			return clone.WithMetadata(map[string]any{
				"required": required,
				"actual":   claims.AccessLevel,
			})
		}
		return ErrInsufficientAccess
	}

	return nil
}

func (g *Guard) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryAuth, "authentication failed").
			WithCode(goerrors.CodeUnauthorized)
	}

	status := richErr.Code
	if status < http.StatusBadRequest {
		status = http.StatusUnauthorized
	}

	g.logger.Info(
		"request denied",
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	return c.JSON(status, map[string]any{
		"success":   false,
		"message":   richErr.Message,
		"text_code": richErr.TextCode,
	})
}
