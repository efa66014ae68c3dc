package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// MailerConfig is shared by every dispatcher driver: who mail comes
// from and where the confirmation and reset links point.
type MailerConfig struct {
	From       string
	AppName    string
	ConfirmURL string
	ResetURL   string
}

func (c MailerConfig) appName() string {
	if c.AppName == "" {
		return "Semantq"
	}
	return c.AppName
}

func (c MailerConfig) confirmLink(token string) string {
	return appendToken(c.ConfirmURL, token)
}

func (c MailerConfig) resetLink(token string) string {
	return appendToken(c.ResetURL, token)
}

func appendToken(base, token string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

type message struct {
	to      string
	subject string
	body    string
}

func confirmationMessage(cfg MailerConfig, to, name, token string) message {
	return message{
		to:      to,
		subject: fmt.Sprintf("Confirm your %s account", cfg.appName()),
		body: fmt.Sprintf(
			"Hi %s,\r\n\r\nWelcome to %s. Confirm your email address by visiting:\r\n\r\n%s\r\n\r\nThe link expires in 24 hours. If you did not sign up, ignore this email.\r\n",
			name, cfg.appName(), cfg.confirmLink(token),
		),
	}
}

func passwordResetMessage(cfg MailerConfig, to, name, token string) message {
	return message{
		to:      to,
		subject: fmt.Sprintf("Reset your %s password", cfg.appName()),
		body: fmt.Sprintf(
			"Hi %s,\r\n\r\nWe received a request to reset your %s password. Choose a new one here:\r\n\r\n%s\r\n\r\nThe link expires in 1 hour. If you did not ask for this, ignore this email.\r\n",
			name, cfg.appName(), cfg.resetLink(token),
		),
	}
}

// dispatcherState is the Init bookkeeping every driver embeds: Send
// calls fail until Init has run once.
type dispatcherState struct {
	mu    sync.Mutex
	ready bool
}

func (d *dispatcherState) markReady() {
	d.mu.Lock()
	d.ready = true
	d.mu.Unlock()
}

func (d *dispatcherState) checkReady() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return ErrDispatcherNotInitialized
	}
	return nil
}

// LogDispatcher writes notification links to the logger instead of
// sending mail. Development driver.
type LogDispatcher struct {
	dispatcherState
	cfg    MailerConfig
	logger Logger
}

var _ Dispatcher = (*LogDispatcher)(nil)

func NewLogDispatcher(cfg MailerConfig) *LogDispatcher {
	return &LogDispatcher{cfg: cfg, logger: defLogger{}}
}

func (d *LogDispatcher) WithLogger(logger Logger) *LogDispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func (d *LogDispatcher) Init(ctx context.Context) error {
	d.markReady()
	return nil
}

func (d *LogDispatcher) SendConfirmation(ctx context.Context, to, name, token string) error {
	if err := d.checkReady(); err != nil {
		return err
	}
	d.logger.Info("confirmation link", "to", to, "url", d.cfg.confirmLink(token))
	return nil
}

func (d *LogDispatcher) SendPasswordReset(ctx context.Context, to, name, token string) error {
	if err := d.checkReady(); err != nil {
		return err
	}
	d.logger.Info("password reset link", "to", to, "url", d.cfg.resetLink(token))
	return nil
}

// SMTPDispatcher delivers over plain SMTP with optional AUTH. Init
// dials the server once so misconfiguration surfaces at startup, not
// on the first signup.
type SMTPDispatcher struct {
	dispatcherState
	cfg    MailerConfig
	addr   string
	auth   smtp.Auth
	logger Logger

	// swapped out by tests
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ Dispatcher = (*SMTPDispatcher)(nil)

func NewSMTPDispatcher(cfg MailerConfig, addr string, auth smtp.Auth) *SMTPDispatcher {
	return &SMTPDispatcher{
		cfg:    cfg,
		addr:   addr,
		auth:   auth,
		logger: defLogger{},
		send:   smtp.SendMail,
	}
}

func (d *SMTPDispatcher) WithLogger(logger Logger) *SMTPDispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func (d *SMTPDispatcher) Init(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "smtp server unreachable").
			WithTextCode(TextCodeNotificationFailed)
	}
	conn.Close()

	d.markReady()
	return nil
}

func (d *SMTPDispatcher) SendConfirmation(ctx context.Context, to, name, token string) error {
	return d.deliver(ctx, confirmationMessage(d.cfg, to, name, token))
}

func (d *SMTPDispatcher) SendPasswordReset(ctx context.Context, to, name, token string) error {
	return d.deliver(ctx, passwordResetMessage(d.cfg, to, name, token))
}

func (d *SMTPDispatcher) deliver(ctx context.Context, msg message) error {
	if err := d.checkReady(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "delivery canceled").
			WithTextCode(TextCodeNotificationFailed)
	}

	payload := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		d.cfg.From, msg.to, msg.subject, msg.body,
	)

	if err := d.send(d.addr, d.auth, d.cfg.From, []string{msg.to}, []byte(payload)); err != nil {
		d.logger.Error("smtp delivery failed", "to", msg.to, "error", err)
		return goerrors.Wrap(err, ErrNotificationFailed.Category, ErrNotificationFailed.Message).
			WithTextCode(ErrNotificationFailed.TextCode)
	}

	return nil
}

// HTTPDispatcher delivers through a JSON email API (Resend and
// compatible services). Init checks the key is accepted.
type HTTPDispatcher struct {
	dispatcherState
	cfg     MailerConfig
	baseURL string
	apiKey  string
	client  *http.Client
	logger  Logger
}

var _ Dispatcher = (*HTTPDispatcher)(nil)

func NewHTTPDispatcher(cfg MailerConfig, baseURL, apiKey string) *HTTPDispatcher {
	return &HTTPDispatcher{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  defLogger{},
	}
}

func (d *HTTPDispatcher) WithLogger(logger Logger) *HTTPDispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func (d *HTTPDispatcher) WithHTTPClient(client *http.Client) *HTTPDispatcher {
	if client != nil {
		d.client = client
	}
	return d
}

func (d *HTTPDispatcher) Init(ctx context.Context) error {
	if d.apiKey == "" {
		return goerrors.New("email api key is required", goerrors.CategoryBadInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/domains", nil)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build api request")
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "email api unreachable").
			WithTextCode(TextCodeNotificationFailed)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return goerrors.New("email api rejected credentials", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	d.markReady()
	return nil
}

func (d *HTTPDispatcher) SendConfirmation(ctx context.Context, to, name, token string) error {
	return d.deliver(ctx, confirmationMessage(d.cfg, to, name, token))
}

func (d *HTTPDispatcher) SendPasswordReset(ctx context.Context, to, name, token string) error {
	return d.deliver(ctx, passwordResetMessage(d.cfg, to, name, token))
}

func (d *HTTPDispatcher) deliver(ctx context.Context, msg message) error {
	if err := d.checkReady(); err != nil {
		return err
	}

	buf, err := json.Marshal(map[string]any{
		"from":    d.cfg.From,
		"to":      []string{msg.to},
		"subject": msg.subject,
		"text":    msg.body,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode email payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/emails", bytes.NewReader(buf))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build email request")
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, ErrNotificationFailed.Category, ErrNotificationFailed.Message).
			WithTextCode(ErrNotificationFailed.TextCode)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.logger.Error("email api delivery failed", "to", msg.to, "status", resp.StatusCode)
		return goerrors.New(
			fmt.Sprintf("email api returned status %d", resp.StatusCode),
			ErrNotificationFailed.Category,
		).WithTextCode(ErrNotificationFailed.TextCode)
	}

	return nil
}
