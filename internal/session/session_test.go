package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/appointments", nil)
	r.Header.Set("Authorization", "Bearer ya29.token")
	r.Header.Set("X-User-ID", " user-1 ")

	s := FromRequest(r)
	if s.AccessToken != "ya29.token" || s.UserID != "user-1" {
		t.Fatalf("unexpected session: %+v", s)
	}
	if !s.Valid() {
		t.Fatalf("expected valid session")
	}
}

func TestFromRequest_NonBearerIgnored(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Basic abc")
	r.Header.Set("X-User-ID", "user-1")

	s := FromRequest(r)
	if s.Valid() {
		t.Fatalf("expected invalid session without bearer token: %+v", s)
	}
}

func TestContextProvider(t *testing.T) {
	t.Parallel()

	var p ContextProvider
	if _, err := p.Current(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	ctx := WithSession(context.Background(), Session{AccessToken: "t", UserID: "u"})
	s, err := p.Current(ctx)
	if err != nil || s.UserID != "u" {
		t.Fatalf("unexpected session %+v err=%v", s, err)
	}
}
