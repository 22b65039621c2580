package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshStore maps opaque refresh tokens to user ids until they expire.
type RefreshStore interface {
	Save(ctx context.Context, token, userID string, ttl time.Duration) error
	// Consume returns the owner and removes the token. Unknown or expired tokens wrap ErrAuth.
	Consume(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

// RedisStore keeps refresh tokens as TTL keys.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a new value for this package.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "taskdeck:refresh:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(token string) string {
	return s.prefix + token
}

// Save stores the token with a TTL.
func (s *RedisStore) Save(ctx context.Context, token, userID string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(token), userID, ttl).Err()
}

// Consume atomically reads and deletes the token.
func (s *RedisStore) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: unknown refresh token", ErrAuth)
		}
		return "", err
	}
	return userID, nil
}

// Delete removes the token.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

// Ping reports whether redis answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type memoryEntry struct {
	userID  string
	expires time.Time
}

// MemoryStore is a process-local RefreshStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore constructs a new value for this package.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: map[string]memoryEntry{}, now: now}
}

// Save stores the token with a TTL.
func (s *MemoryStore) Save(_ context.Context, token, userID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = memoryEntry{userID: userID, expires: s.now().Add(ttl)}
	return nil
}

// Consume reads and deletes the token.
func (s *MemoryStore) Consume(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	delete(s.entries, token)
	if !ok || !s.now().Before(entry.expires) {
		return "", fmt.Errorf("%w: unknown refresh token", ErrAuth)
	}
	return entry.userID, nil
}

// Delete removes the token.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}
