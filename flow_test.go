package auth_test

import (
	"context"
	"testing"

	auth "github.com/Gugulethu-Nyoni/semantq-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Walks the whole lifecycle against the real sqlite-backed store:
// signup, confirmation, login, authorization, recovery.
func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	mailer := &CapturingDispatcher{}
	require.NoError(t, mailer.Init(ctx))

	tokens := auth.NewTokenService(testSigningKey, "test-issuer")
	accounts := auth.NewAccounts(store, tokens, mailer).WithHasher(plainHasher{})

	// signup
	result, err := accounts.Register(ctx, auth.RegisterInput{
		Name:     "Ada Lovelace",
		Email:    "Ada@Example.com",
		Password: "password123",
		Username: "ada",
		Ref:      "2",
	})
	require.NoError(t, err)
	require.Len(t, mailer.Confirmations, 1)
	assert.Equal(t, "ada@example.com", mailer.Confirmations[0].To)
	assert.Equal(t, result.VerificationToken, mailer.Confirmations[0].Token)

	// login before confirmation is blocked, and distinguishable
	_, err = accounts.Login(ctx, "ada@example.com", "password123")
	assert.ErrorIs(t, err, auth.ErrEmailNotVerified)

	// confirm with the emailed token
	require.NoError(t, accounts.ConfirmEmail(ctx, mailer.Confirmations[0].Token))

	// login
	login, err := accounts.Login(ctx, "ada@example.com", "password123")
	require.NoError(t, err)
	require.NotNil(t, login.User)
	assert.Equal(t, 2, login.User.AccessLevel)

	// username works as the identifier too
	_, err = accounts.Login(ctx, "ada", "password123")
	require.NoError(t, err)

	// the session passes the authorization gate at its level
	claims, err := accounts.VerifySession(login.Token)
	require.NoError(t, err)
	assert.NoError(t, auth.Authorize(claims, 2))
	assert.ErrorIs(t, auth.Authorize(claims, 3), auth.ErrInsufficientAccess)

	// recovery
	require.NoError(t, accounts.ForgotPassword(ctx, "ada@example.com"))
	require.Len(t, mailer.Resets, 1)

	resetToken := mailer.Resets[0].Token
	require.NoError(t, accounts.ResetPassword(ctx, auth.ResetPasswordInput{
		Token:       resetToken,
		NewPassword: "newpassword1",
	}))

	// the old password is dead, the new one works
	_, err = accounts.Login(ctx, "ada@example.com", "password123")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	relogin, err := accounts.Login(ctx, "ada@example.com", "newpassword1")
	require.NoError(t, err)
	assert.NotEmpty(t, relogin.Token)

	// the reset token is single-use
	err = accounts.ResetPassword(ctx, auth.ResetPasswordInput{
		Token:       resetToken,
		NewPassword: "anotherpass1",
	})
	assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)

	// signing up again with the same email is rejected
	_, err = accounts.Register(ctx, auth.RegisterInput{
		Name:     "Impostor",
		Email:    "ada@example.com",
		Password: "password123",
	})
	assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

// A second confirmation attempt with a token that was already consumed
// by MarkVerified reports an invalid token, not a crash or a re-flip.
func TestAccountLifecycle_ConfirmTwice(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	mailer := &CapturingDispatcher{}
	require.NoError(t, mailer.Init(ctx))

	tokens := auth.NewTokenService(testSigningKey, "test-issuer")
	accounts := auth.NewAccounts(store, tokens, mailer).WithHasher(plainHasher{})

	_, err := accounts.Register(ctx, auth.RegisterInput{
		Name:     "Ada Lovelace",
		Email:    "ada@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	token := mailer.Confirmations[0].Token
	require.NoError(t, accounts.ConfirmEmail(ctx, token))

	// MarkVerified cleared the stored token, so the replay fails
	err = accounts.ConfirmEmail(ctx, token)
	assert.ErrorIs(t, err, auth.ErrTokenInvalid)
}
