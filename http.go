package auth

import (
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

// DefaultCookieName is the session cookie the transport helpers manage.
const DefaultCookieName = "auth_token"

// CookieOptions controls how the session cookie is written. Production
// deployments tighten Secure and SameSite.
type CookieOptions struct {
	Name       string
	Duration   time.Duration
	Production bool
}

func (o CookieOptions) name() string {
	if o.Name == "" {
		return DefaultCookieName
	}
	return o.Name
}

func (o CookieOptions) sameSite() string {
	if o.Production {
		return "Strict"
	}
	return "Lax"
}

func (o CookieOptions) duration() time.Duration {
	if o.Duration <= 0 {
		return DefaultSessionTTL
	}
	return o.Duration
}

// SetSessionCookie writes the session token as an http-only cookie.
func SetSessionCookie(c router.Context, token string, opts CookieOptions) {
	c.Cookie(&router.Cookie{
		Name:     opts.name(),
		Value:    token,
		Expires:  time.Now().Add(opts.duration()),
		HTTPOnly: true,
		Secure:   opts.Production,
		SameSite: opts.sameSite(),
	})
}

// ClearSessionCookie expires the session cookie, logging the browser out.
func ClearSessionCookie(c router.Context, opts CookieOptions) {
	c.Cookie(&router.Cookie{
		Name:     opts.name(),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   opts.Production,
		SameSite: opts.sameSite(),
	})
}

// SessionFromRequest pulls the session token from the request, checking
// the Authorization bearer header before the cookie.
func SessionFromRequest(c router.Context, cookieName ...string) string {
	if token := bearerToken(c.Header(router.HeaderAuthorization)); token != "" {
		return token
	}

	name := DefaultCookieName
	if len(cookieName) > 0 && cookieName[0] != "" {
		name = cookieName[0]
	}

	return c.Cookies(name)
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}
