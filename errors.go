package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced to API clients alongside the error category.
const (
	TextCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	TextCodeDuplicateUsername   = "DUPLICATE_USERNAME"
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeEmailNotVerified    = "EMAIL_NOT_VERIFIED"
	TextCodeTokenExpired        = "EXPIRED_TOKEN"
	TextCodeTokenInvalid        = "INVALID_TOKEN"
	TextCodeResetTokenInvalid   = "INVALID_RESET_TOKEN"
	TextCodeMissingToken        = "MISSING_TOKEN"
	TextCodeMissingAccessLevel  = "MISSING_ACCESS_LEVEL"
	TextCodeInsufficientAccess  = "INSUFFICIENT_ACCESS"
	TextCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	TextCodeNotificationFailed  = "NOTIFICATION_FAILED"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodeAccountLocked       = "ACCOUNT_LOCKED"
	TextCodeAccountSuspended    = "ACCOUNT_SUSPENDED"
	TextCodeDispatcherNotReady  = "DISPATCHER_NOT_INITIALIZED"
)

// ErrDuplicateEmail means the email is already registered.
var ErrDuplicateEmail = goerrors.New("email is already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail)

// ErrDuplicateUsername means the username is already taken.
var ErrDuplicateUsername = goerrors.New("username is already taken", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateUsername)

// ErrInvalidCredentials is the single login failure for a missing account
// or a bad password; it never says which.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCreds)

// ErrEmailNotVerified blocks login until the address is confirmed.
var ErrEmailNotVerified = goerrors.New("please verify your email before logging in", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeEmailNotVerified)

// ErrTokenExpired covers any token past its exp claim.
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenInvalid covers malformed tokens, bad signatures, and tokens
// presented to a flow they were not minted for.
var ErrTokenInvalid = goerrors.New("invalid or malformed token", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenInvalid)

// ErrTokenMissing means the request carried no bearer header and no
// session cookie.
var ErrTokenMissing = goerrors.New("authentication token required", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeMissingToken)

// ErrMissingAccessLevel means the session claims carry no usable level.
var ErrMissingAccessLevel = goerrors.New("session has no access level", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeMissingAccessLevel)

// ErrInsufficientAccess means the session level is below the route's
// requirement.
var ErrInsufficientAccess = goerrors.New("insufficient access level", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeInsufficientAccess)

// ErrResetTokenInvalid is the reset-specific variant: the token is
// unknown, superseded, or past its stored expiry.
var ErrResetTokenInvalid = goerrors.New("invalid or expired password reset token", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeResetTokenInvalid)

// ErrIdentityNotFound is what stores return for missing records.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrStoreUnavailable wraps backend I/O failures and timeouts. Callers
// may retry; the package never retries internally.
var ErrStoreUnavailable = goerrors.New("credential store unavailable", goerrors.CategoryOperation).
	WithTextCode(TextCodeStoreUnavailable)

// ErrNotificationFailed wraps dispatch failures on flows that treat them
// as fatal (signup). Forgot-password logs and swallows instead.
var ErrNotificationFailed = goerrors.New("failed to send notification", goerrors.CategoryOperation).
	WithTextCode(TextCodeNotificationFailed)

// ErrDispatcherNotInitialized means Send* was called before Init.
var ErrDispatcherNotInitialized = goerrors.New("dispatcher not initialized", goerrors.CategoryOperation).
	WithTextCode(TextCodeDispatcherNotReady)

// ErrUserLocked blocks authentication for locked accounts.
var ErrUserLocked = goerrors.New("account is locked", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeAccountLocked)

// ErrUserSuspended blocks authentication for suspended accounts.
var ErrUserSuspended = goerrors.New("account is suspended", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeAccountSuspended)

// ErrNoEmptyString rejects empty passwords before they reach bcrypt.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// ErrMismatchedHashAndPassword is the internal bcrypt mismatch; the
// orchestrator re-classifies it into ErrInvalidCredentials.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCreds)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenInvalid) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsDuplicateError reports whether err is a uniqueness conflict.
func IsDuplicateError(err error) bool {
	return goerrors.Is(err, ErrDuplicateEmail) || goerrors.Is(err, ErrDuplicateUsername)
}
