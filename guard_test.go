package auth_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	auth "github.com/Gugulethu-Nyoni/semantq-auth"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func guardFixture(t *testing.T, level int) (*auth.Guard, string) {
	t.Helper()

	tokens := auth.NewTokenService(testSigningKey, "test-issuer")
	user := testUser()
	user.AccessLevel = level

	token, err := tokens.MintSession(user)
	require.NoError(t, err)

	return auth.NewGuard(tokens), token
}

func passthroughHandler(called *bool) router.HandlerFunc {
	return func(c router.Context) error {
		*called = true
		return nil
	}
}

func TestGuard_RequireAccessLevel(t *testing.T) {
	t.Run("admits a bearer token at the required level", func(t *testing.T) {
		guard, token := guardFixture(t, 3)

		ctx := &MockContext{}
		ctx.On("Header", router.HeaderAuthorization).Return("Bearer " + token)
		ctx.On("Locals", auth.ClaimsContextKey, mock.Anything).Return(nil)
		ctx.On("Context").Return(context.Background())
		ctx.On("SetContext", mock.Anything).Return()

		called := false
		err := guard.RequireAccessLevel(3)(passthroughHandler(&called))(ctx)

		require.NoError(t, err)
		assert.True(t, called)
		ctx.AssertCalled(t, "Locals", auth.ClaimsContextKey, mock.Anything)
	})

	t.Run("falls back to the session cookie", func(t *testing.T) {
		guard, token := guardFixture(t, 2)

		ctx := &MockContext{}
		ctx.On("Header", router.HeaderAuthorization).Return("")
		ctx.On("Cookies", auth.DefaultCookieName).Return(token)
		ctx.On("Locals", auth.ClaimsContextKey, mock.Anything).Return(nil)
		ctx.On("Context").Return(context.Background())
		ctx.On("SetContext", mock.Anything).Return()

		called := false
		err := guard.RequireAccessLevel(1)(passthroughHandler(&called))(ctx)

		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("header wins over the cookie", func(t *testing.T) {
		guard, token := guardFixture(t, 2)

		ctx := &MockContext{}
		ctx.On("Header", router.HeaderAuthorization).Return("Bearer " + token)
		ctx.On("Locals", auth.ClaimsContextKey, mock.Anything).Return(nil)
		ctx.On("Context").Return(context.Background())
		ctx.On("SetContext", mock.Anything).Return()

		called := false
		err := guard.RequireAccessLevel(1)(passthroughHandler(&called))(ctx)

		require.NoError(t, err)
		assert.True(t, called)
		ctx.AssertNotCalled(t, "Cookies", mock.Anything)
	})

	t.Run("denies when no token is present", func(t *testing.T) {
		guard, _ := guardFixture(t, 2)

		ctx := &MockContext{}
		ctx.On("Header", router.HeaderAuthorization).Return("")
		ctx.On("Cookies", auth.DefaultCookieName).Return("")
		ctx.On("OriginalURL").Return("/admin")
		ctx.On("JSON", http.StatusUnauthorized, mock.MatchedBy(func(body map[string]any) bool {
			return body["text_code"] == auth.TextCodeMissingToken
		})).Return(nil)

		called := false
		err := guard.RequireAccessLevel(1)(passthroughHandler(&called))(ctx)

		require.NoError(t, err)
		assert.False(t, called)
		ctx.AssertExpectations(t)
	})

	t.Run("denies below the required level", func(t *testing.T) {
		guard, token := guardFixture(t, 1)

		ctx := &MockContext{}
		ctx.On("Header", router.HeaderAuthorization).Return("Bearer " + token)
		ctx.On("OriginalURL").Return("/admin")
		ctx.On("JSON", http.StatusForbidden, mock.MatchedBy(func(body map[string]any) bool {
			return body["text_code"] == auth.TextCodeInsufficientAccess
		})).Return(nil)

		called := false
		err := guard.RequireAccessLevel(5)(passthroughHandler(&called))(ctx)

		require.NoError(t, err)
		assert.False(t, called)
		ctx.AssertExpectations(t)
	})

	t.Run("denies an expired session", func(t *testing.T) {
		now := time.Now()
		clock := now
		tokens := auth.NewTokenService(testSigningKey, "test-issuer").
			WithClock(func() time.Time { return clock })
		guard := auth.NewGuard(tokens)

		token, err := tokens.MintSession(testUser())
		require.NoError(t, err)

		clock = now.Add(2 * time.Hour)

		ctx := &MockContext{}
		ctx.On("Header", router.HeaderAuthorization).Return("Bearer " + token)
		ctx.On("OriginalURL").Return("/admin")
		ctx.On("JSON", http.StatusUnauthorized, mock.MatchedBy(func(body map[string]any) bool {
			return body["text_code"] == auth.TextCodeTokenExpired
		})).Return(nil)

		called := false
		err = guard.RequireAccessLevel(1)(passthroughHandler(&called))(ctx)

		require.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("denies a password reset token presented as a session", func(t *testing.T) {
		tokens := auth.NewTokenService(testSigningKey, "test-issuer")
		guard := auth.NewGuard(tokens)

		token, _, err := tokens.MintPasswordReset(testUser().ID)
		require.NoError(t, err)

		ctx := &MockContext{}
		ctx.On("Header", router.HeaderAuthorization).Return("Bearer " + token)
		ctx.On("OriginalURL").Return("/admin")
		ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil)

		called := false
		err = guard.RequireAccessLevel(1)(passthroughHandler(&called))(ctx)

		require.NoError(t, err)
		assert.False(t, called)
	})

	t.Run("custom error handler sees the denial", func(t *testing.T) {
		guard, _ := guardFixture(t, 1)

		var seen error
		guard.ErrorHandler = func(c router.Context, err error) error {
			seen = err
			return nil
		}

		ctx := &MockContext{}
		ctx.On("Header", router.HeaderAuthorization).Return("")
		ctx.On("Cookies", auth.DefaultCookieName).Return("")

		called := false
		err := guard.RequireAccessLevel(1)(passthroughHandler(&called))(ctx)

		require.NoError(t, err)
		assert.ErrorIs(t, seen, auth.ErrTokenMissing)
	})
}

func TestAuthorize(t *testing.T) {
	claims := func(level int) *auth.TokenClaims {
		return &auth.TokenClaims{AccessLevel: level}
	}

	t.Run("level at or above the requirement passes", func(t *testing.T) {
		assert.NoError(t, auth.Authorize(claims(3), 3))
		assert.NoError(t, auth.Authorize(claims(5), 3))
	})

	t.Run("level below the requirement is rejected", func(t *testing.T) {
		err := auth.Authorize(claims(2), 3)
		assert.ErrorIs(t, err, auth.ErrInsufficientAccess)
	})

	t.Run("missing or broken level is its own denial", func(t *testing.T) {
		assert.ErrorIs(t, auth.Authorize(claims(0), 1), auth.ErrMissingAccessLevel)
		assert.ErrorIs(t, auth.Authorize(claims(-1), 1), auth.ErrMissingAccessLevel)
		assert.ErrorIs(t, auth.Authorize(nil, 1), auth.ErrMissingAccessLevel)
	})
}

func TestTokenClaims_HasAccessLevel(t *testing.T) {
	claims := &auth.TokenClaims{AccessLevel: 3}

	assert.True(t, claims.HasAccessLevel(1))
	assert.True(t, claims.HasAccessLevel(3))
	assert.False(t, claims.HasAccessLevel(4))

	broken := &auth.TokenClaims{}
	assert.False(t, broken.HasAccessLevel(0))
	assert.False(t, broken.HasAccessLevel(1))
}
