package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestSetIdempotency_FirstClaimWins(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "stock:test-owner:" + uuid.NewString()
	defer client.Del(ctx, idempotencyKeyPrefix+key)

	ok, err := adapter.SetIdempotency(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first claim to succeed")
	}

	ok, _ = adapter.SetIdempotency(ctx, key)
	if ok {
		t.Error("expected second claim to fail")
	}

	ttl, _ := client.TTL(ctx, idempotencyKeyPrefix+key).Result()
	if ttl <= 0 || ttl > idempotencyKeyTTL {
		t.Errorf("expected TTL within %v, got %v", idempotencyKeyTTL, ttl)
	}
}

func TestReleaseIdempotency(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "stock:test-owner:" + uuid.NewString()
	defer client.Del(ctx, idempotencyKeyPrefix+key)

	adapter.SetIdempotency(ctx, key)
	if err := adapter.ReleaseIdempotency(ctx, key); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, _ := adapter.SetIdempotency(ctx, key)
	if !ok {
		t.Error("expected claim after release to succeed")
	}
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	key := "stock:test-owner:" + uuid.NewString()
	defer client.Del(ctx, idempotencyKeyPrefix+key)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := adapter.SetIdempotency(ctx, key); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
}
