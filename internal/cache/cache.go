package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"PhindChat/internal/session"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when no fresh entry exists
var ErrMiss = errors.New("cache: miss")

// CachedResponse represents a cached answer
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// Store holds answers keyed by GenerateCacheKey
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, response string) error
	Close() error
}

// GenerateCacheKey generates a cache key from the backend name and messages
func GenerateCacheKey(backend string, messages []session.Message) string {
	h := sha256.New()
	h.Write([]byte(backend))
	h.Write([]byte{0})
	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// MemoryStore is an in-process Store with per-entry expiry
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]CachedResponse
	now     func() time.Time
}

// NewMemoryStore creates a MemoryStore; ttl <= 0 keeps entries forever
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]CachedResponse),
		now:     time.Now,
	}
}

// Get returns the cached answer for key, or ErrMiss if it is absent or expired
func (m *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", ErrMiss
	}
	if m.ttl > 0 && m.now().Sub(entry.Timestamp) > m.ttl {
		delete(m.entries, key)
		return "", ErrMiss
	}
	return entry.Response, nil
}

// Set stores response under key, stamped with the current time
func (m *MemoryStore) Set(ctx context.Context, key, response string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = CachedResponse{Response: response, Timestamp: m.now()}
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }

// RedisStore keeps answers in Redis under "phindchat:cache:<key>"
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

const redisKeyPrefix = "phindchat:cache:"

// NewRedisStore connects to redisURL and verifies the connection
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get returns the cached answer for key, or ErrMiss when Redis has no entry
func (r *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("failed to read cache: %w", err)
	}
	return val, nil
}

// Set stores response under key with the store TTL; a zero TTL never expires
func (r *RedisStore) Set(ctx context.Context, key, response string) error {
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, response, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client
func (r *RedisStore) Close() error { return r.client.Close() }
