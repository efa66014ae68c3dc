package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the account lifecycle status
type UserStatus = string

const (
	// UserStatusActive accounts can authenticate normally
	UserStatusActive UserStatus = "active"
	// UserStatusLocked accounts are blocked pending an admin action
	UserStatusLocked UserStatus = "locked"
	// UserStatusSuspended accounts are blocked by policy
	UserStatusSuspended UserStatus = "suspended"
)

// User is the credential record. Hash and token columns never serialize.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name         string    `bun:"name" json:"name,omitempty"`
	Username     string    `bun:"username,nullzero,unique" json:"username,omitempty"`
	Email        string    `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	AccessLevel  int       `bun:"access_level,notnull,default:1" json:"access_level,omitempty"`
	Verified     bool      `bun:"is_verified" json:"is_verified,omitempty"`

	VerificationToken          string     `bun:"verification_token,nullzero" json:"-"`
	VerificationTokenExpiresAt *time.Time `bun:"verification_token_expires_at,nullzero" json:"-"`
	ResetToken                 string     `bun:"reset_token,nullzero" json:"-"`
	ResetTokenExpiresAt        *time.Time `bun:"reset_token_expires_at,nullzero" json:"-"`

	// Reserved for a future lockout policy; maintained, never enforced.
	LoginAttempts int `bun:"login_attempts" json:"-"`

	Status      UserStatus `bun:"status,nullzero,default:'active'" json:"status,omitempty"`
	LastLoginAt *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt   *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt   *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureStatus backfills the default status on records created before the
// column existed.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// Sanitize returns the outward-facing projection of the record.
func (u *User) Sanitize() *Profile {
	if u == nil {
		return nil
	}
	return &Profile{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Name:        u.Name,
		AccessLevel: u.AccessLevel,
		Verified:    u.Verified,
	}
}

// Profile is the sanitized user projection handed to callers. It carries
// no password hash and no live tokens.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username,omitempty"`
	Name        string    `json:"name,omitempty"`
	AccessLevel int       `json:"access_level"`
	Verified    bool      `json:"is_verified"`
}

// NormalizeEmail lowercases and trims an address so uniqueness is
// case-insensitive across backends.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusLocked:
		return ErrUserLocked
	case UserStatusSuspended:
		return ErrUserSuspended
	default:
		return nil
	}
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)
	record.EnsureStatus()

	if record.AccessLevel < 1 {
		record.AccessLevel = 1
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
