package auth

import (
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// Config carries everything the engine needs, loaded from the
// environment. Zero values fall back to the package defaults so a
// deployment only sets what it changes.
type Config struct {
	SigningKey string `env:"AUTH_SIGNING_KEY"`
	Issuer     string `env:"AUTH_ISSUER" envDefault:"semantq-auth"`

	SessionTTL      time.Duration `env:"AUTH_SESSION_TTL" envDefault:"1h"`
	VerificationTTL time.Duration `env:"AUTH_VERIFICATION_TTL" envDefault:"24h"`
	ResetTTL        time.Duration `env:"AUTH_RESET_TTL" envDefault:"1h"`

	CookieName string `env:"AUTH_COOKIE_NAME" envDefault:"auth_token"`
	Production bool   `env:"AUTH_PRODUCTION" envDefault:"false"`

	StoreTimeout time.Duration `env:"AUTH_STORE_TIMEOUT" envDefault:"5s"`

	DatabaseDSN string `env:"AUTH_DATABASE_DSN"`

	SupabaseURL string `env:"SUPABASE_URL"`
	SupabaseKey string `env:"SUPABASE_SERVICE_KEY"`

	MailFrom   string `env:"AUTH_MAIL_FROM"`
	AppName    string `env:"AUTH_APP_NAME" envDefault:"Semantq"`
	ConfirmURL string `env:"AUTH_CONFIRM_URL"`
	ResetURL   string `env:"AUTH_RESET_URL"`

	SMTPAddr     string `env:"AUTH_SMTP_ADDR"`
	SMTPUsername string `env:"AUTH_SMTP_USERNAME"`
	SMTPPassword string `env:"AUTH_SMTP_PASSWORD"`

	EmailAPIURL string `env:"AUTH_EMAIL_API_URL" envDefault:"https://api.resend.com"`
	EmailAPIKey string `env:"AUTH_EMAIL_API_KEY"`
}

// LoadConfig reads the environment and validates the minimum a running
// engine needs.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations that cannot mint tokens.
func (c *Config) Validate() error {
	if c.SigningKey == "" {
		return goerrors.New("AUTH_SIGNING_KEY is required", goerrors.CategoryBadInput)
	}
	return nil
}

func (c *Config) GetSigningKey() string        { return c.SigningKey }
func (c *Config) GetIssuer() string            { return c.Issuer }
func (c *Config) GetCookieName() string        { return c.CookieName }
func (c *Config) IsProduction() bool           { return c.Production }
func (c *Config) GetSessionTTL() time.Duration { return c.SessionTTL }

// TokenService builds the token service this configuration describes.
func (c *Config) TokenService() *TokenService {
	return NewTokenService([]byte(c.SigningKey), c.Issuer).
		WithTTLs(c.SessionTTL, c.VerificationTTL, c.ResetTTL)
}

// CookieOptions builds the session cookie settings this configuration
// describes.
func (c *Config) CookieOptions() CookieOptions {
	return CookieOptions{
		Name:       c.CookieName,
		Duration:   c.SessionTTL,
		Production: c.Production,
	}
}

// MailerConfig builds the dispatcher settings this configuration
// describes.
func (c *Config) MailerConfig() MailerConfig {
	return MailerConfig{
		From:       c.MailFrom,
		AppName:    c.AppName,
		ConfirmURL: c.ConfirmURL,
		ResetURL:   c.ResetURL,
	}
}
