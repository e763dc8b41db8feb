package batchstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	store, err := NewRedisStore(rdb)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	return store, mr
}

func TestRedisStorePutNXFirstWriterWins(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	won, err := store.PutNX(ctx, "batch:b1:flights", "first", time.Minute)
	if err != nil {
		t.Fatalf("PutNX() error = %v", err)
	}
	if !won {
		t.Fatal("first writer should win")
	}

	won, err = store.PutNX(ctx, "batch:b1:flights", "second", time.Minute)
	if err != nil {
		t.Fatalf("PutNX() error = %v", err)
	}
	if won {
		t.Fatal("second writer should lose")
	}

	var value string
	ok, err := store.Get(ctx, "batch:b1:flights", &value)
	if err != nil || !ok {
		t.Fatalf("Get() ok = %v, err = %v", ok, err)
	}
	if value != "first" {
		t.Fatalf("value = %q, want first", value)
	}
}

func TestRedisStoreAddToSetIsIdempotent(t *testing.T) {
	t.Parallel()

	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	added, err := store.AddToSet(ctx, "batch:b1:alternates", "SABRE:{}", time.Minute)
	if err != nil {
		t.Fatalf("AddToSet() error = %v", err)
	}
	if !added {
		t.Fatal("first add should report a new member")
	}

	added, err = store.AddToSet(ctx, "batch:b1:alternates", "SABRE:{}", time.Minute)
	if err != nil {
		t.Fatalf("AddToSet() error = %v", err)
	}
	if added {
		t.Fatal("duplicate add should report an existing member")
	}

	size, err := store.SetSize(ctx, "batch:b1:alternates")
	if err != nil {
		t.Fatalf("SetSize() error = %v", err)
	}
	if size != 1 {
		t.Fatalf("size = %d, want 1", size)
	}
}

func TestRedisStoreAddToSetAppliesTTL(t *testing.T) {
	t.Parallel()

	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if _, err := store.AddToSet(ctx, "batch:b1:alternates", "SABRE:{}", time.Minute); err != nil {
		t.Fatalf("AddToSet() error = %v", err)
	}

	if ttl := mr.TTL("batch:b1:alternates"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v, want within (0, 1m]", ttl)
	}

	mr.FastForward(2 * time.Minute)

	size, err := store.SetSize(ctx, "batch:b1:alternates")
	if err != nil {
		t.Fatalf("SetSize() error = %v", err)
	}
	if size != 0 {
		t.Fatalf("size after expiry = %d, want 0", size)
	}
}
