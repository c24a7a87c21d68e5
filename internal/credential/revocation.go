package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationList records credential IDs that must be rejected before their
// natural expiry (logout, password change).
type RevocationList interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// RedisRevocationList keeps revoked IDs as expiring Redis keys, so entries
// disappear on their own once the credential would have expired anyway.
type RedisRevocationList struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevocationList constructs a Redis-backed list.
func NewRedisRevocationList(client *redis.Client, prefix string) *RedisRevocationList {
	if prefix == "" {
		prefix = "fieldserve:revoked:"
	}
	return &RedisRevocationList{client: client, prefix: prefix, now: time.Now}
}

// Revoke stores id until the given expiry. Already expired credentials are
// rejected by validation anyway and are not stored.
func (l *RedisRevocationList) Revoke(ctx context.Context, id string, until time.Time) error {
	ttl := until.Sub(l.now())
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, l.prefix+id, 1, ttl).Err(); err != nil {
		return fmt.Errorf("credential: revoke %s: %w", id, err)
	}
	return nil
}

// IsRevoked reports whether id is on the list.
func (l *RedisRevocationList) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := l.client.Exists(ctx, l.prefix+id).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryRevocationList is an in-process list for single-instance deployments
// and tests.
type MemoryRevocationList struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewMemoryRevocationList creates an empty list.
func NewMemoryRevocationList() *MemoryRevocationList {
	return &MemoryRevocationList{entries: make(map[string]time.Time)}
}

// Revoke adds id until the given expiry.
func (l *MemoryRevocationList) Revoke(_ context.Context, id string, until time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id] = until
	return nil
}

// IsRevoked reports whether id is on the list.
func (l *MemoryRevocationList) IsRevoked(_ context.Context, id string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[id]
	return ok, nil
}

// Cleanup drops entries whose credential has expired and returns how many
// were removed.
func (l *MemoryRevocationList) Cleanup(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, until := range l.entries {
		if !now.Before(until) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries.
func (l *MemoryRevocationList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
