// Package session resolves the caller's provider credential from an
// external session store.
package session

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"bookcal/internal/apperr"
	"bookcal/internal/models"
)

// Session is what a session provider knows about the caller.
type Session struct {
	Subject     string
	AccessToken string
	Expiry      time.Time
}

// expired reports whether the session carries an expiry in the past.
func (s *Session) expired(now time.Time) bool {
	return !s.Expiry.IsZero() && !now.Before(s.Expiry)
}

// Provider looks up the session attached to a request. It returns nil, nil
// when the request carries no session.
type Provider interface {
	GetSession(r *http.Request) (*Session, error)
}

// Resolver turns a request into a Credential. It holds no per-caller state;
// every call goes back to the provider.
type Resolver struct {
	provider Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewResolver creates a Resolver backed by provider.
func NewResolver(logger *slog.Logger, provider Provider) *Resolver {
	return &Resolver{provider: provider, logger: logger, now: time.Now}
}

// Resolve returns the caller's credential or an AuthRequired error.
func (r *Resolver) Resolve(req *http.Request) (models.Credential, error) {
	const op = "session.Resolve"

	sess, err := r.provider.GetSession(req)
	if err != nil {
		r.logger.Error("Session lookup failed", "error", err)
		return models.Credential{}, apperr.New(apperr.KindInternal, op, err)
	}
	if sess == nil {
		return models.Credential{}, apperr.New(apperr.KindAuthRequired, op, errors.New("no session"))
	}
	if sess.AccessToken == "" {
		return models.Credential{}, apperr.New(apperr.KindAuthRequired, op, errors.New("session has no access token"))
	}
	if sess.expired(r.now()) {
		return models.Credential{}, apperr.New(apperr.KindAuthRequired, op, errors.New("session expired"))
	}
	return models.Credential{AccessToken: sess.AccessToken}, nil
}

// HeaderProvider reads a bearer token placed on the request by an upstream
// authentication proxy.
type HeaderProvider struct{}

// GetSession implements Provider.
func (HeaderProvider) GetSession(r *http.Request) (*Session, error) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	return &Session{AccessToken: token}, nil
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// sessionID returns the cookie value naming the caller's session, or "" if
// absent or malformed.
func sessionID(r *http.Request, cookieName string) string {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	if !sessionIDPattern.MatchString(c.Value) || strings.Trim(c.Value, ".") == "" {
		return ""
	}
	return c.Value
}
