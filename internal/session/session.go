package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var ErrNoSession = errors.New("no session")

// Session is the credential pair the reconciliation core consumes.
// Token refresh is handled by whoever issues the session.
type Session struct {
	AccessToken string
	UserID      string
}

// Valid reports whether both the calendar credential and local user are present.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.UserID) != ""
}

type Provider interface {
	Current(ctx context.Context) (Session, error)
}

type contextKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// ContextProvider reads the session placed on the context by the HTTP layer.
type ContextProvider struct{}

func (ContextProvider) Current(ctx context.Context) (Session, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return Session{}, ErrNoSession
	}
	return s, nil
}

// Static always returns the same session. Used by background workers.
type Static Session

func (s Static) Current(context.Context) (Session, error) {
	return Session(s), nil
}

// FromRequest extracts a session from the Authorization bearer token and
// the X-User-ID header. Missing values yield a partial session.
func FromRequest(r *http.Request) Session {
	var s Session
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			s.AccessToken = strings.TrimSpace(token)
		}
	}
	s.UserID = strings.TrimSpace(r.Header.Get("X-User-ID"))
	return s
}
