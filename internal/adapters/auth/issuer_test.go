package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/evanschultz/taskdeck/internal/app"
	"github.com/evanschultz/taskdeck/internal/domain"
)

type stubUsers struct {
	users map[string]domain.Identity
	pass  map[string]string
}

func newStubUsers() *stubUsers {
	return &stubUsers{
		users: map[string]domain.Identity{"u1": {UserID: "u1", Name: "Alice", Email: "alice@example.com"}},
		pass:  map[string]string{"alice@example.com": "s3cret"},
	}
}

func (s *stubUsers) Authenticate(_ context.Context, email, password string) (domain.Identity, error) {
	if s.pass[email] != password || password == "" {
		return domain.Identity{}, app.ErrInvalidCredential
	}
	for _, id := range s.users {
		if id.Email == email {
			return id, nil
		}
	}
	return domain.Identity{}, app.ErrInvalidCredential
}

func (s *stubUsers) LookupUser(_ context.Context, userID string) (domain.Identity, error) {
	id, ok := s.users[userID]
	if !ok {
		return domain.Identity{}, app.ErrNotFound
	}
	return id, nil
}

func newTestIssuer(t *testing.T, now *time.Time) (*Issuer, *MemoryStore) {
	t.Helper()
	clock := func() time.Time { return *now }
	seq := 0
	store := NewMemoryStore(clock)
	issuer, err := NewIssuer(newStubUsers(), store, IssuerConfig{
		Secret:    []byte("test-secret"),
		AccessTTL: time.Minute,
		Now:       clock,
		NewToken: func() string {
			seq++
			return fmt.Sprintf("refresh-%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	return issuer, store
}

func TestIssuerLoginValidateRefreshLogout(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	issuer, _ := newTestIssuer(t, &now)

	session, err := issuer.Login(ctx, "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.RefreshToken != "refresh-1" || !session.ExpiresAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected session %#v", session)
	}
	identity, err := issuer.Validate(session.AccessToken)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if identity.UserID != "u1" || identity.Email != "alice@example.com" || identity.Name != "Alice" {
		t.Fatalf("unexpected identity %#v", identity)
	}

	now = now.Add(2 * time.Minute)
	if _, err := issuer.Validate(session.AccessToken); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected expired token to fail with ErrAuth, got %v", err)
	}

	refreshed, err := issuer.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.RefreshToken == session.RefreshToken {
		t.Fatalf("expected refresh token rotation")
	}
	if _, err := issuer.Validate(refreshed.AccessToken); err != nil {
		t.Fatalf("Validate(refreshed) error = %v", err)
	}
	if _, err := issuer.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected consumed refresh token to fail, got %v", err)
	}

	if err := issuer.Logout(ctx, refreshed.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := issuer.Refresh(ctx, refreshed.RefreshToken); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected logged-out refresh token to fail, got %v", err)
	}
}

func TestIssuerRejectsBadCredentialsAndTokens(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	issuer, _ := newTestIssuer(t, &now)

	if _, err := issuer.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if _, err := issuer.Validate("not-a-jwt"); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth for garbage token, got %v", err)
	}

	other, err := NewIssuer(newStubUsers(), NewMemoryStore(nil), IssuerConfig{Secret: []byte("other"), Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	foreign, err := other.Login(ctx, "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if _, err := issuer.Validate(foreign.AccessToken); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected signature mismatch to fail, got %v", err)
	}
	if _, err := NewIssuer(newStubUsers(), NewMemoryStore(nil), IssuerConfig{}); err == nil {
		t.Fatalf("expected missing secret error")
	}
}

func TestRedisStoreConsumeOnce(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisStore(client, "")
	if err := store.Save(ctx, "tok", "u1", time.Minute); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ttl := mr.TTL("taskdeck:refresh:tok"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %s", ttl)
	}
	userID, err := store.Consume(ctx, "tok")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if userID != "u1" {
		t.Fatalf("unexpected user id %q", userID)
	}
	if _, err := store.Consume(ctx, "tok"); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth on second consume, got %v", err)
	}

	if err := store.Save(ctx, "short", "u1", time.Second); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, err := store.Consume(ctx, "short"); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(func() time.Time { return now })
	_ = store.Save(ctx, "tok", "u1", time.Minute)
	now = now.Add(time.Minute)
	if _, err := store.Consume(ctx, "tok"); !errors.Is(err, ErrAuth) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}
