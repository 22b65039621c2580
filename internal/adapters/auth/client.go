package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/evanschultz/taskdeck/internal/domain"
)

// RefreshPath is where the client exchanges refresh tokens, relative to the base URL.
const RefreshPath = "/api/v1/auth/refresh"

// LoginPath is where the client exchanges credentials, relative to the base URL.
const LoginPath = "/api/v1/auth/login"

// TokenPayload is the wire shape of a session.
type TokenPayload struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         UserInfo  `json:"user"`
}

// UserInfo is the wire shape of a session identity.
type UserInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}

// NewTokenPayload converts a session into its wire form.
func NewTokenPayload(s Session) TokenPayload {
	return TokenPayload{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    s.ExpiresAt.UTC(),
		User: UserInfo{
			ID:     s.Identity.UserID,
			Name:   s.Identity.Name,
			Email:  s.Identity.Email,
			Avatar: s.Identity.Avatar,
		},
	}
}

// Identity converts the wire user into a domain identity.
func (p TokenPayload) Identity() domain.Identity {
	return domain.Identity{UserID: p.User.ID, Name: p.User.Name, Email: p.User.Email, Avatar: p.User.Avatar}
}

// ClientConfig holds configuration for client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
	// OnRefresh observes every successful token refresh, e.g. to persist the new pair.
	OnRefresh func(TokenPayload)
}

// Client is an HTTP client that attaches bearer tokens and refreshes them on 401.
// At most one refresh is in flight; every request is retried at most once.
type Client struct {
	baseURL   string
	http      *http.Client
	logger    *log.Logger
	onRefresh func(TokenPayload)
	breaker   *gobreaker.CircuitBreaker
	group     singleflight.Group

	mu      sync.RWMutex
	access  string
	refresh string
}

// NewClient constructs a new value for this package.
func NewClient(cfg ClientConfig, tokens TokenPayload) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	c := &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http:      httpClient,
		logger:    logger,
		onRefresh: cfg.OnRefresh,
		access:    tokens.AccessToken,
		refresh:   tokens.RefreshToken,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "auth-refresh",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Tokens returns the current token pair.
func (c *Client) Tokens() (access, refresh string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access, c.refresh
}

// Login exchanges credentials for a session and adopts its tokens.
func (c *Client) Login(ctx context.Context, email, password string) (TokenPayload, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return TokenPayload{}, err
	}
	payload, err := c.postTokens(ctx, LoginPath, body)
	if err != nil {
		return TokenPayload{}, err
	}
	c.mu.Lock()
	c.access, c.refresh = payload.AccessToken, payload.RefreshToken
	c.mu.Unlock()
	return payload, nil
}

// Do sends an authenticated request. A 401 triggers one shared refresh and one retry;
// a second 401 returns ErrAuth.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	used, _ := c.Tokens()
	resp, err := c.send(ctx, method, path, body, used)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	if err := c.refreshFrom(ctx, used); err != nil {
		return nil, err
	}
	current, _ := c.Tokens()
	resp, err = c.send(ctx, method, path, body, current)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, fmt.Errorf("%w: request rejected after refresh", ErrAuth)
	}
	return resp, nil
}

// DoJSON sends an authenticated request and decodes a 2xx JSON response into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = encoded
	}
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// refreshFrom refreshes unless another caller already replaced the stale token.
func (c *Client) refreshFrom(ctx context.Context, stale string) error {
	if current, _ := c.Tokens(); current != stale {
		return nil
	}
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		current, refreshToken := c.Tokens()
		if current != stale {
			return nil, nil
		}
		if refreshToken == "" {
			return nil, fmt.Errorf("%w: no refresh token", ErrAuth)
		}
		out, err := c.breaker.Execute(func() (any, error) {
			body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
			if err != nil {
				return nil, err
			}
			return c.postTokens(ctx, RefreshPath, body)
		})
		if err != nil {
			if errors.Is(err, ErrAuth) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: refresh failed: %v", ErrAuth, err)
		}
		payload := out.(TokenPayload)
		c.mu.Lock()
		c.access, c.refresh = payload.AccessToken, payload.RefreshToken
		c.mu.Unlock()
		c.logger.Debug("access token refreshed", "expires_at", payload.ExpiresAt)
		if c.onRefresh != nil {
			c.onRefresh(payload)
		}
		return nil, nil
	})
	return err
}

func (c *Client) postTokens(ctx context.Context, path string, body []byte) (TokenPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return TokenPayload{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return TokenPayload{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return TokenPayload{}, fmt.Errorf("%w: %s rejected", ErrAuth, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TokenPayload{}, statusError(resp)
	}
	var payload TokenPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return TokenPayload{}, fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return TokenPayload{}, fmt.Errorf("%w: empty access token", ErrAuth)
	}
	return payload, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(req)
}

// StatusError reports a non-2xx response from the server.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

// Error implements error.
func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

func statusError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&envelope)
	return &StatusError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	_ = resp.Body.Close()
}
