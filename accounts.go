package auth

import (
	"context"
	"regexp"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// flowTimeout bounds every orchestrated flow; store and dispatcher I/O
// never outlives it.
const flowTimeout = 10 * time.Second

// Accounts is the single authoritative orchestrator for signup, email
// confirmation, login, and password recovery. Collaborators are injected
// at construction; there is no ambient global state.
type Accounts struct {
	store  CredentialStore
	tokens *TokenService
	hasher PasswordAuthenticator
	mailer Dispatcher
	logger Logger
}

// NewAccounts wires the orchestrator. The dispatcher must have been
// initialized (Dispatcher.Init) before the first signup or reset.
func NewAccounts(store CredentialStore, tokens *TokenService, mailer Dispatcher) *Accounts {
	return &Accounts{
		store:  store,
		tokens: tokens,
		hasher: BcryptHasher{},
		mailer: mailer,
		logger: defLogger{},
	}
}

func (a *Accounts) WithLogger(logger Logger) *Accounts {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *Accounts) WithHasher(hasher PasswordAuthenticator) *Accounts {
	if hasher != nil {
		a.hasher = hasher
	}
	return a
}

// TokenService exposes the engine behind this orchestrator so transport
// layers (guard, cookie helpers) share the same secret and clock.
func (a *Accounts) TokenService() *TokenService {
	return a.tokens
}

// RegisterInput is the signup payload. Ref is an optional access-level
// hint carried by referral links; anything unparsable means level 1.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
	Ref      string `json:"ref,omitempty"`
}

// Validate will run validation rules
func (r RegisterInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&r.Username,
			validation.Length(3, 32),
			validation.Match(usernamePattern),
		),
	)
}

// RegisterResult echoes the created identity. The verification token is
// returned so UI servers can surface resend links; the hash never is.
type RegisterResult struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	Username          string `json:"username,omitempty"`
	AccessLevel       int    `json:"access_level"`
	VerificationToken string `json:"verification_token"`
}

// Register creates an unverified user and dispatches the confirmation
// message. Dispatch failure fails the call; the user row stays persisted
// and unverified so the token can be re-issued later.
func (a *Accounts) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during registration")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, flowTimeout)
	defer cancel()

	if err := input.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	email := NormalizeEmail(input.Email)

	if _, err := a.store.FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !goerrors.IsNotFound(err) {
		return nil, classifyStoreError(err)
	}

	if input.Username != "" {
		if _, err := a.store.FindByUsername(ctx, input.Username); err == nil {
			return nil, ErrDuplicateUsername
		} else if !goerrors.IsNotFound(err) {
			return nil, classifyStoreError(err)
		}
	}

	hash, err := a.hasher.HashPassword(input.Password)
	if err != nil {
		if goerrors.Is(err, ErrNoEmptyString) {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	token, expiresAt, err := a.tokens.MintVerification(email)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint verification token")
	}

	user := &User{
		Name:                       input.Name,
		Email:                      email,
		Username:                   input.Username,
		PasswordHash:               hash,
		AccessLevel:                parseAccessLevel(input.Ref),
		VerificationToken:          token,
		VerificationTokenExpiresAt: &expiresAt,
	}

	created, err := a.store.Create(ctx, user)
	if err != nil {
		// The store is the authority on uniqueness: a concurrent signup
		// can win between our lookup and this insert.
		if IsDuplicateError(err) {
			return nil, err
		}
		return nil, classifyStoreError(err)
	}

	if err := a.mailer.SendConfirmation(ctx, created.Email, created.Name, token); err != nil {
		a.logger.Error("confirmation dispatch failed", "email", created.Email, "error", err)
		return nil, goerrors.Wrap(err, ErrNotificationFailed.Category, ErrNotificationFailed.Message).
			WithTextCode(ErrNotificationFailed.TextCode)
	}

	return &RegisterResult{
		Email:             created.Email,
		Name:              created.Name,
		Username:          created.Username,
		AccessLevel:       created.AccessLevel,
		VerificationToken: token,
	}, nil
}

// ConfirmEmail consumes a verification token. The token must both verify
// cryptographically and still be the one on record, so a token
// superseded by a newer verification request is rejected. Confirming an
// already verified account succeeds without touching the record.
func (a *Accounts) ConfirmEmail(ctx context.Context, token string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email confirmation")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, flowTimeout)
	defer cancel()

	if token == "" {
		return ErrTokenInvalid
	}

	if _, err := a.tokens.Validate(token, AudienceEmailVerification); err != nil {
		return err
	}

	user, err := a.store.FindByVerificationToken(ctx, token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrTokenInvalid
		}
		return classifyStoreError(err)
	}

	if user.Verified {
		return nil
	}

	if err := a.store.MarkVerified(ctx, user.ID); err != nil {
		return classifyStoreError(err)
	}

	return nil
}

// LoginResult is the session credential plus the sanitized user.
type LoginResult struct {
	Token string   `json:"token"`
	User  *Profile `json:"user"`
}

// Login authenticates an email or username plus password. Every failure
// that touches account existence collapses into ErrInvalidCredentials;
// only the verified-email check is deliberately distinguishable.
func (a *Accounts) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during login")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, flowTimeout)
	defer cancel()

	if identifier == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := a.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, classifyStoreError(err)
	}

	user.EnsureStatus()
	if err := statusAuthError(user.Status); err != nil {
		return nil, err
	}

	if !user.Verified {
		return nil, ErrEmailNotVerified
	}

	if err := a.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if trackErr := a.store.TrackFailedLogin(ctx, user.ID); trackErr != nil {
			a.logger.Warn("failed to track login attempt", "error", trackErr)
		}
		return nil, ErrInvalidCredentials
	}

	if err := a.store.TrackSuccessfulLogin(ctx, user.ID); err != nil {
		a.logger.Warn("failed to track successful login", "error", err)
	}

	token, err := a.tokens.MintSession(user)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint session token")
	}

	return &LoginResult{Token: token, User: user.Sanitize()}, nil
}

// ForgotPassword starts password recovery. The caller gets the same
// answer whether or not the address is registered; dispatch failures
// are logged and swallowed for the same reason.
func (a *Accounts) ForgotPassword(ctx context.Context, email string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset initialization")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, flowTimeout)
	defer cancel()

	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email")
	}

	user, err := a.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if goerrors.IsNotFound(err) {
			a.logger.Warn("password reset requested for unknown email", "email", email)
			return nil
		}
		return classifyStoreError(err)
	}

	token, expiresAt, err := a.tokens.MintPasswordReset(user.ID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint reset token")
	}

	if err := a.store.StoreResetToken(ctx, user.ID, token, expiresAt); err != nil {
		return classifyStoreError(err)
	}

	name := user.Name
	if name == "" {
		name = "User"
	}

	if err := a.mailer.SendPasswordReset(ctx, user.Email, name, token); err != nil {
		a.logger.Error("reset dispatch failed", "email", user.Email, "error", err)
	}

	return nil
}

// ResetPasswordInput is the recovery completion payload.
type ResetPasswordInput struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Validate will run validation rules
func (r ResetPasswordInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 128)),
	)
}

// ResetPassword completes recovery: the store only matches unexpired
// tokens, and the password swap and token clear happen in one statement.
func (a *Accounts) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset finalization")
	default:
	}

	ctx, cancel := context.WithTimeout(ctx, flowTimeout)
	defer cancel()

	if err := input.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid reset payload")
	}

	user, err := a.store.FindByResetToken(ctx, input.Token)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return ErrResetTokenInvalid
		}
		return classifyStoreError(err)
	}

	hash, err := a.hasher.HashPassword(input.NewPassword)
	if err != nil {
		if goerrors.Is(err, ErrNoEmptyString) {
			return err
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	if err := a.store.UpdatePasswordClearReset(ctx, user.ID, hash); err != nil {
		return classifyStoreError(err)
	}

	return nil
}

// VerifySession decodes a session token for UI servers that need the
// claims without running the HTTP gate.
func (a *Accounts) VerifySession(token string) (*TokenClaims, error) {
	return a.tokens.Validate(token, AudienceSession)
}

// Profile returns the sanitized record for a known user id.
func (a *Accounts) Profile(ctx context.Context, id string) (*Profile, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid user id")
	}

	ctx, cancel := context.WithTimeout(ctx, flowTimeout)
	defer cancel()

	profile, err := a.store.FindByID(ctx, uid)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, classifyStoreError(err)
	}

	return profile, nil
}

func parseAccessLevel(ref string) int {
	if ref == "" {
		return 1
	}

	level, err := strconv.Atoi(ref)
	if err != nil || level < 1 {
		return 1
	}

	return level
}

// classifyStoreError keeps raw backend errors from leaking past the
// orchestrator boundary.
func classifyStoreError(err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	return goerrors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
		WithTextCode(ErrStoreUnavailable.TextCode)
}
