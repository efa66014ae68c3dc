package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultStoreTimeout bounds every storage round-trip.
const DefaultStoreTimeout = 5 * time.Second

var markVerifiedSQL = `UPDATE "users"
SET
	"is_verified" = TRUE,
	"verification_token" = NULL,
	"verification_token_expires_at" = NULL
WHERE
	"id" = ?;`

var storeResetTokenSQL = `UPDATE "users"
SET
	"reset_token" = ?,
	"reset_token_expires_at" = ?
WHERE
	"id" = ?;`

// The reset-token guard makes concurrent resets on the same token a
// single-winner race: the statement that finds the token live clears it.
var resetPasswordSQL = `UPDATE "users"
SET
	"password_hash" = ?,
	"reset_token" = NULL,
	"reset_token_expires_at" = NULL
WHERE
	"id" = ?
AND	"reset_token" IS NOT NULL;`

var trackFailedLoginSQL = `UPDATE "users"
SET
	"login_attempts" = "login_attempts" + 1
WHERE
	"id" = ?;`

var trackSuccessfulLoginSQL = `UPDATE "users"
SET
	"last_login_at" = ?,
	"login_attempts" = 0
WHERE
	"id" = ?;`

// UsersStore is the Bun-backed CredentialStore. It works against any
// dialect Bun supports; the multi-column mutations are single raw
// statements so atomicity comes from the database, not from the caller.
type UsersStore struct {
	repository.Repository[*User]
	db      *bun.DB
	timeout time.Duration
	clock   func() time.Time
}

var _ CredentialStore = (*UsersStore)(nil)

type UsersStoreOption func(*UsersStore)

// WithStoreTimeout overrides the per-operation deadline.
func WithStoreTimeout(d time.Duration) UsersStoreOption {
	return func(s *UsersStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithStoreClock overrides the clock used for reset-token expiry checks.
func WithStoreClock(clock func() time.Time) UsersStoreOption {
	return func(s *UsersStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewUsersStore(db *bun.DB, opts ...UsersStoreOption) *UsersStore {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	store := &UsersStore{
		Repository: repo,
		db:         db,
		timeout:    DefaultStoreTimeout,
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store
}

func (s *UsersStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, "email", NormalizeEmail(email))
}

func (s *UsersStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, "username", username)
}

func (s *UsersStore) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return s.FindByEmail(ctx, identifier)
	}
	return s.FindByUsername(ctx, identifier)
}

func (s *UsersStore) Create(ctx context.Context, record *User) (*User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	prepareUserDefaults(record)

	created, err := s.Repository.Create(ctx, record)
	if err != nil {
		return nil, s.classify(err)
	}

	return created, nil
}

func (s *UsersStore) FindByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	record := &User{}
	err := s.db.NewSelect().
		Model(record).
		Column("id", "email", "username", "name", "access_level", "is_verified").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, s.classify(err)
	}

	return record.Sanitize(), nil
}

func (s *UsersStore) FindByVerificationToken(ctx context.Context, token string) (*User, error) {
	return s.findOne(ctx, "verification_token", token)
}

func (s *UsersStore) MarkVerified(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := s.db.NewRaw(markVerifiedSQL, id.String()).Exec(ctx); err != nil {
		return s.classify(err)
	}

	return nil
}

func (s *UsersStore) StoreResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := s.db.NewRaw(storeResetTokenSQL, token, expiresAt, id.String()).Exec(ctx); err != nil {
		return s.classify(err)
	}

	return nil
}

func (s *UsersStore) FindByResetToken(ctx context.Context, token string) (*User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	record := &User{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.reset_token = ?", token).
		Where("?TableAlias.reset_token_expires_at > ?", s.clock()).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, s.classify(err)
	}

	return record, nil
}

func (s *UsersStore) UpdatePasswordClearReset(ctx context.Context, id uuid.UUID, newHash string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.NewRaw(resetPasswordSQL, newHash, id.String()).Exec(ctx)
	if err != nil {
		return s.classify(err)
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrResetTokenInvalid
	}

	return nil
}

func (s *UsersStore) TrackFailedLogin(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := s.db.NewRaw(trackFailedLoginSQL, id.String()).Exec(ctx); err != nil {
		return s.classify(err)
	}

	return nil
}

func (s *UsersStore) TrackSuccessfulLogin(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := s.db.NewRaw(trackSuccessfulLoginSQL, s.clock(), id.String()).Exec(ctx); err != nil {
		return s.classify(err)
	}

	return nil
}

func (s *UsersStore) findOne(ctx context.Context, column, value string) (*User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if value == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &User{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, s.classify(err)
	}

	return record, nil
}

func (s *UsersStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// classify maps driver errors into the package taxonomy: misses stay
// not-found, constraint hits become duplicate errors, and everything
// else (timeouts included) is a recoverable StoreUnavailable.
func (s *UsersStore) classify(err error) error {
	if err == nil {
		return nil
	}

	if repository.IsRecordNotFound(err) {
		return repository.NewRecordNotFound()
	}

	if dup := classifyConstraint(err); dup != nil {
		return dup
	}

	return goerrors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
		WithTextCode(ErrStoreUnavailable.TextCode)
}

// classifyConstraint matches unique-violation text across the dialects
// Bun ships: sqlite ("UNIQUE constraint failed: users.email"), postgres
// ("duplicate key value ... users_email_key"), mysql ("Duplicate entry").
func classifyConstraint(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique") && !strings.Contains(msg, "duplicate") {
		return nil
	}

	if strings.Contains(msg, "username") {
		return ErrDuplicateUsername
	}
	if strings.Contains(msg, "email") {
		return ErrDuplicateEmail
	}

	return goerrors.Wrap(err, goerrors.CategoryConflict, "uniqueness constraint violated")
}
