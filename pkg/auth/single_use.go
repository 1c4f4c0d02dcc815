package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SingleUse tracks consumed purpose-token ids so each verification or reset
// link works exactly once.
type SingleUse interface {
	// Consume marks the token id as used. It returns false when the id was
	// already consumed.
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// RedisSingleUse stores consumed ids in Redis with the token's remaining TTL.
type RedisSingleUse struct {
	client *redis.Client
	prefix string
}

func NewRedisSingleUse(client *redis.Client, prefix string) *RedisSingleUse {
	if prefix == "" {
		prefix = "filevault:token-used"
	}
	return &RedisSingleUse{client: client, prefix: prefix}
}

func (s *RedisSingleUse) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	key := fmt.Sprintf("%s:%s", s.prefix, jti)
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark token used: %w", err)
	}
	return ok, nil
}

// MemorySingleUse is an in-process SingleUse for tests.
type MemorySingleUse struct {
	mu   sync.Mutex
	used map[string]time.Time
}

func NewMemorySingleUse() *MemorySingleUse {
	return &MemorySingleUse{used: make(map[string]time.Time)}
}

func (s *MemorySingleUse) Consume(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if exp, ok := s.used[jti]; ok && exp.After(now) {
		return false, nil
	}
	s.used[jti] = now.Add(ttl)
	return true, nil
}
