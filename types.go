package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// CredentialStore is the persistence contract for user records. Every
// implementation must keep single-record mutations atomic at the storage
// layer; callers never compose partial updates.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	// FindByIdentifier resolves either an email address or a username.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	// Create persists a new user. Uniqueness violations surface as
	// ErrDuplicateEmail or ErrDuplicateUsername.
	Create(ctx context.Context, user *User) (*User, error)
	// FindByID returns a sanitized projection: no hash, no token columns.
	FindByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	FindByVerificationToken(ctx context.Context, token string) (*User, error)
	// MarkVerified flips is_verified and clears the verification token in
	// one statement. Safe to call on an already verified user.
	MarkVerified(ctx context.Context, id uuid.UUID) error
	StoreResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	// FindByResetToken only matches unexpired tokens. The expiry
	// comparison happens in the store so callers never race its clock.
	FindByResetToken(ctx context.Context, token string) (*User, error)
	// UpdatePasswordClearReset swaps the password hash and clears the
	// reset token in a single statement: both change or neither does.
	UpdatePasswordClearReset(ctx context.Context, id uuid.UUID, newHash string) error

	TrackFailedLogin(ctx context.Context, id uuid.UUID) error
	TrackSuccessfulLogin(ctx context.Context, id uuid.UUID) error
}

// PasswordAuthenticator hashes and verifies passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Dispatcher delivers verification and reset messages to users. It is an
// external collaborator: construct it synchronously, then call Init once
// before first use.
type Dispatcher interface {
	Init(ctx context.Context) error
	SendConfirmation(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
