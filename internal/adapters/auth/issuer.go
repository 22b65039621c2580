// Package auth issues and validates session tokens and provides a refreshing HTTP client.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/evanschultz/taskdeck/internal/app"
	"github.com/evanschultz/taskdeck/internal/domain"
)

// ErrAuth is the parent of every authentication failure.
var ErrAuth = errors.New("authentication failed")

// Default token lifetimes.
const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Authenticator checks credentials and resolves user ids. app.Service satisfies it.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (domain.Identity, error)
	LookupUser(ctx context.Context, userID string) (domain.Identity, error)
}

// Claims is the access-token payload.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Session is the token pair handed to a client after login or refresh.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Identity     domain.Identity
}

// IssuerConfig holds configuration for issuer.
type IssuerConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
	NewToken   func() string
}

// Issuer signs access tokens and tracks refresh tokens in a RefreshStore.
type Issuer struct {
	users  Authenticator
	store  RefreshStore
	cfg    IssuerConfig
	parser *jwt.Parser
}

// NewIssuer constructs a new value for this package.
func NewIssuer(users Authenticator, store RefreshStore, cfg IssuerConfig) (*Issuer, error) {
	if users == nil || store == nil {
		return nil, errors.New("auth issuer requires an authenticator and a refresh store")
	}
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth issuer secret is required")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Issuer == "" {
		cfg.Issuer = "taskdeck"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewToken == nil {
		cfg.NewToken = uuid.NewString
	}
	return &Issuer{
		users: users,
		store: store,
		cfg:   cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(cfg.Now),
		),
	}, nil
}

// Login authenticates credentials and opens a session.
func (i *Issuer) Login(ctx context.Context, email, password string) (Session, error) {
	identity, err := i.users.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredential) {
			return Session{}, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return Session{}, err
	}
	return i.open(ctx, identity)
}

// Refresh exchanges a refresh token for a new session. The old refresh token is consumed.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, fmt.Errorf("%w: refresh token is required", ErrAuth)
	}
	userID, err := i.store.Consume(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}
	identity, err := i.users.LookupUser(ctx, userID)
	if err != nil {
		if errors.Is(err, app.ErrNotFound) {
			return Session{}, fmt.Errorf("%w: user no longer exists", ErrAuth)
		}
		return Session{}, err
	}
	return i.open(ctx, identity)
}

// Logout revokes a refresh token. Unknown tokens are ignored.
func (i *Issuer) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return i.store.Delete(ctx, refreshToken)
}

// Validate verifies an access token and returns its identity.
func (i *Issuer) Validate(accessToken string) (domain.Identity, error) {
	claims := &Claims{}
	token, err := i.parser.ParseWithClaims(accessToken, claims, func(*jwt.Token) (any, error) {
		return i.cfg.Secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Identity{}, fmt.Errorf("%w: invalid access token", ErrAuth)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing subject", ErrAuth)
	}
	return domain.Identity{UserID: claims.Subject, Name: claims.Name, Email: claims.Email}, nil
}

func (i *Issuer) open(ctx context.Context, identity domain.Identity) (Session, error) {
	now := i.cfg.Now()
	expires := now.Add(i.cfg.AccessTTL)
	claims := &Claims{
		Name:  identity.Name,
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   identity.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh := i.cfg.NewToken()
	if err := i.store.Save(ctx, refresh, identity.UserID, i.cfg.RefreshTTL); err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
		Identity:     identity,
	}, nil
}
