package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/videohub/internal/apperrors"
	"github.com/nkiryanov/videohub/internal/models"
)

const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"

	defaultCookiePath = "/"
	bearerScheme      = "Bearer"
)

// Configured token cookie settings
type CookieConfig struct {
	// Always mark cookies Secure; TLS requests get Secure cookies anyway
	Secure bool

	// Cookie domain, empty means host-only cookie
	Domain string

	// Cookie path; "/" if not set
	Path string
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.Path == "" {
		c.Path = defaultCookiePath
	}
	return c
}

// CookieOptions are attributes of token cookies for one response
// Built per request and never changed after that, so concurrent requests don't share state
type CookieOptions struct {
	Secure   bool
	HttpOnly bool
	Domain   string
	Path     string
	SameSite http.SameSite
}

func (c CookieConfig) OptionsFor(r *http.Request) CookieOptions {
	return CookieOptions{
		Secure:   c.Secure || r.TLS != nil,
		HttpOnly: true,
		Domain:   c.Domain,
		Path:     c.Path,
		SameSite: http.SameSiteStrictMode,
	}
}

func (o CookieOptions) cookie(name string, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		MaxAge:   maxAge,
		Secure:   o.Secure,
		HttpOnly: o.HttpOnly,
		Domain:   o.Domain,
		Path:     o.Path,
		SameSite: o.SameSite,
	}
}

// SetTokenCookies writes both tokens as cookies living as long as the tokens do
func (s *AuthService) SetTokenCookies(w http.ResponseWriter, r *http.Request, pair models.TokenPair) {
	opts := s.cookies.OptionsFor(r)
	http.SetCookie(w, opts.cookie(AccessCookieName, pair.Access.Value, maxAge(pair.Access.ExpiresAt)))
	http.SetCookie(w, opts.cookie(RefreshCookieName, pair.Refresh.Value, maxAge(pair.Refresh.ExpiresAt)))
}

// ClearTokenCookies asks client to drop both token cookies
func (s *AuthService) ClearTokenCookies(w http.ResponseWriter, r *http.Request) {
	opts := s.cookies.OptionsFor(r)
	http.SetCookie(w, opts.cookie(AccessCookieName, "", -1))
	http.SetCookie(w, opts.cookie(RefreshCookieName, "", -1))
}

// AccessFromRequest reads access token from cookie or from 'Authorization: Bearer' header
func (s *AuthService) AccessFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(AccessCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if found && strings.EqualFold(scheme, bearerScheme) && strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token), nil
	}

	return "", apperrors.ErrUnauthorized
}

// RefreshFromRequest reads refresh token from cookie, falls back to value sent in request body
func (s *AuthService) RefreshFromRequest(r *http.Request, fromBody string) (string, error) {
	if c, err := r.Cookie(RefreshCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if fromBody != "" {
		return fromBody, nil
	}
	return "", apperrors.ErrUnauthorized
}

func maxAge(expiresAt time.Time) int {
	seconds := int(time.Until(expiresAt).Seconds())
	if seconds < 1 {
		return -1
	}
	return seconds
}
