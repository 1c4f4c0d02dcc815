package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisSingleUseConsumeOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	reg := NewRedisSingleUse(client, "test:token-used")
	ctx := context.Background()

	ok, err := reg.Consume(ctx, "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !ok {
		t.Fatalf("first consume should succeed")
	}
	ok, err = reg.Consume(ctx, "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if ok {
		t.Fatalf("second consume should be rejected")
	}

	// Expiry frees the id.
	mr.FastForward(2 * time.Minute)
	ok, err = reg.Consume(ctx, "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !ok {
		t.Fatalf("consume after expiry should succeed")
	}
}

func TestMemorySingleUse(t *testing.T) {
	reg := NewMemorySingleUse()
	ctx := context.Background()
	if ok, _ := reg.Consume(ctx, "a", time.Minute); !ok {
		t.Fatalf("first consume should succeed")
	}
	if ok, _ := reg.Consume(ctx, "a", time.Minute); ok {
		t.Fatalf("second consume should be rejected")
	}
	if ok, _ := reg.Consume(ctx, "b", time.Minute); !ok {
		t.Fatalf("distinct id should succeed")
	}
}
