package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// SupabaseStore is a CredentialStore over a hosted PostgREST endpoint.
// Row filters (including the reset-token expiry comparison) are pushed
// into the query string so the backend stays the single clock authority,
// and multi-column mutations ride in one PATCH so the backend applies
// them in one statement.
type SupabaseStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
	clock   func() time.Time
	logger  Logger
}

var _ CredentialStore = (*SupabaseStore)(nil)

// NewSupabaseStore builds a store for the given project URL and service
// key. The URL is the project root; the users table is addressed under
// /rest/v1.
func NewSupabaseStore(baseURL, apiKey string) *SupabaseStore {
	return &SupabaseStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: DefaultStoreTimeout},
		timeout: DefaultStoreTimeout,
		clock:   time.Now,
		logger:  defLogger{},
	}
}

func (s *SupabaseStore) WithLogger(logger Logger) *SupabaseStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithHTTPClient swaps the transport, e.g. to point tests at a local
// stand-in.
func (s *SupabaseStore) WithHTTPClient(client *http.Client) *SupabaseStore {
	if client != nil {
		s.client = client
	}
	return s
}

func (s *SupabaseStore) WithClock(clock func() time.Time) *SupabaseStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// supabaseUser is the wire shape; the User model hides credential
// columns from JSON so the store needs its own mapping.
type supabaseUser struct {
	ID                         uuid.UUID  `json:"id,omitempty"`
	Name                       string     `json:"name,omitempty"`
	Username                   *string    `json:"username,omitempty"`
	Email                      string     `json:"email,omitempty"`
	PasswordHash               string     `json:"password_hash,omitempty"`
	AccessLevel                int        `json:"access_level,omitempty"`
	Verified                   bool       `json:"is_verified"`
	VerificationToken          *string    `json:"verification_token,omitempty"`
	VerificationTokenExpiresAt *time.Time `json:"verification_token_expires_at,omitempty"`
	ResetToken                 *string    `json:"reset_token,omitempty"`
	ResetTokenExpiresAt        *time.Time `json:"reset_token_expires_at,omitempty"`
	LoginAttempts              int        `json:"login_attempts,omitempty"`
	Status                     string     `json:"status,omitempty"`
	LastLoginAt                *time.Time `json:"last_login_at,omitempty"`
}

func (w *supabaseUser) toUser() *User {
	u := &User{
		ID:                         w.ID,
		Name:                       w.Name,
		Email:                      w.Email,
		PasswordHash:               w.PasswordHash,
		AccessLevel:                w.AccessLevel,
		Verified:                   w.Verified,
		VerificationTokenExpiresAt: w.VerificationTokenExpiresAt,
		ResetTokenExpiresAt:        w.ResetTokenExpiresAt,
		LoginAttempts:              w.LoginAttempts,
		Status:                     w.Status,
		LastLoginAt:                w.LastLoginAt,
	}
	if w.Username != nil {
		u.Username = *w.Username
	}
	if w.VerificationToken != nil {
		u.VerificationToken = *w.VerificationToken
	}
	if w.ResetToken != nil {
		u.ResetToken = *w.ResetToken
	}
	u.EnsureStatus()
	return u
}

func (s *SupabaseStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, url.Values{"email": {"eq." + NormalizeEmail(email)}})
}

func (s *SupabaseStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, url.Values{"username": {"eq." + username}})
}

func (s *SupabaseStore) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return s.FindByEmail(ctx, identifier)
	}
	return s.FindByUsername(ctx, identifier)
}

func (s *SupabaseStore) Create(ctx context.Context, record *User) (*User, error) {
	prepareUserDefaults(record)

	payload := &supabaseUser{
		ID:                         record.ID,
		Name:                       record.Name,
		Email:                      record.Email,
		PasswordHash:               record.PasswordHash,
		AccessLevel:                record.AccessLevel,
		Verified:                   record.Verified,
		VerificationTokenExpiresAt: record.VerificationTokenExpiresAt,
		Status:                     record.Status,
	}
	if record.Username != "" {
		payload.Username = &record.Username
	}
	if record.VerificationToken != "" {
		payload.VerificationToken = &record.VerificationToken
	}

	rows, err := s.do(ctx, http.MethodPost, url.Values{}, payload, "return=representation")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, goerrors.New("create returned no representation", goerrors.CategoryInternal)
	}

	return rows[0].toUser(), nil
}

func (s *SupabaseStore) FindByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	filters := url.Values{
		"id":     {"eq." + id.String()},
		"select": {"id,email,username,name,access_level,is_verified"},
	}

	user, err := s.findOne(ctx, filters)
	if err != nil {
		return nil, err
	}

	return user.Sanitize(), nil
}

func (s *SupabaseStore) FindByVerificationToken(ctx context.Context, token string) (*User, error) {
	return s.findOne(ctx, url.Values{"verification_token": {"eq." + token}})
}

func (s *SupabaseStore) MarkVerified(ctx context.Context, id uuid.UUID) error {
	patch := map[string]any{
		"is_verified":                   true,
		"verification_token":            nil,
		"verification_token_expires_at": nil,
	}

	_, err := s.do(ctx, http.MethodPatch, url.Values{"id": {"eq." + id.String()}}, patch, "")
	return err
}

func (s *SupabaseStore) StoreResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	patch := map[string]any{
		"reset_token":            token,
		"reset_token_expires_at": expiresAt.UTC().Format(time.RFC3339Nano),
	}

	_, err := s.do(ctx, http.MethodPatch, url.Values{"id": {"eq." + id.String()}}, patch, "")
	return err
}

func (s *SupabaseStore) FindByResetToken(ctx context.Context, token string) (*User, error) {
	filters := url.Values{
		"reset_token":            {"eq." + token},
		"reset_token_expires_at": {"gt." + s.clock().UTC().Format(time.RFC3339Nano)},
	}
	return s.findOne(ctx, filters)
}

func (s *SupabaseStore) UpdatePasswordClearReset(ctx context.Context, id uuid.UUID, newHash string) error {
	patch := map[string]any{
		"password_hash":          newHash,
		"reset_token":            nil,
		"reset_token_expires_at": nil,
	}
	filters := url.Values{
		"id":          {"eq." + id.String()},
		"reset_token": {"not.is.null"},
	}

	rows, err := s.do(ctx, http.MethodPatch, filters, patch, "return=representation")
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrResetTokenInvalid
	}

	return nil
}

func (s *SupabaseStore) TrackFailedLogin(ctx context.Context, id uuid.UUID) error {
	// PATCH cannot express an atomic increment; the project ships an RPC
	// for it.
	return s.rpc(ctx, "increment_login_attempts", map[string]any{"uid": id.String()})
}

func (s *SupabaseStore) TrackSuccessfulLogin(ctx context.Context, id uuid.UUID) error {
	patch := map[string]any{
		"last_login_at":  s.clock().UTC().Format(time.RFC3339Nano),
		"login_attempts": 0,
	}

	_, err := s.do(ctx, http.MethodPatch, url.Values{"id": {"eq." + id.String()}}, patch, "")
	return err
}

func (s *SupabaseStore) findOne(ctx context.Context, filters url.Values) (*User, error) {
	filters.Set("limit", "1")

	rows, err := s.do(ctx, http.MethodGet, filters, nil, "")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, repository.NewRecordNotFound()
	}

	return rows[0].toUser(), nil
}

func (s *SupabaseStore) do(ctx context.Context, method string, filters url.Values, body any, prefer string) ([]supabaseUser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	endpoint := s.baseURL + "/rest/v1/users"
	if len(filters) > 0 {
		endpoint += "?" + filters.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}

	if resp.StatusCode == http.StatusConflict {
		if dup := classifyConstraint(fmt.Errorf("%s", payload)); dup != nil {
			return nil, dup
		}
		return nil, goerrors.New("uniqueness constraint violated", goerrors.CategoryConflict)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Error("postgrest request failed", "status", resp.StatusCode, "method", method)
		return nil, goerrors.New(
			fmt.Sprintf("postgrest request failed with status %d", resp.StatusCode),
			ErrStoreUnavailable.Category,
		).WithTextCode(ErrStoreUnavailable.TextCode)
	}

	if len(payload) == 0 || method == http.MethodPatch && prefer == "" {
		return nil, nil
	}

	var rows []supabaseUser
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode response body")
	}

	return rows, nil
}

func (s *SupabaseStore) rpc(ctx context.Context, fn string, args map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	buf, err := json.Marshal(args)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode rpc arguments")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/rest/v1/rpc/"+fn, bytes.NewReader(buf))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build rpc request")
	}

	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, ErrStoreUnavailable.Category, ErrStoreUnavailable.Message).
			WithTextCode(ErrStoreUnavailable.TextCode)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return goerrors.New(
			fmt.Sprintf("rpc %s failed with status %d", fn, resp.StatusCode),
			ErrStoreUnavailable.Category,
		).WithTextCode(ErrStoreUnavailable.TextCode)
	}

	return nil
}
