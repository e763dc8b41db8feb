package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestProviderRateLimiterAllow(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_000, 0)
	limiter, err := newProviderRateLimiter(
		rdb,
		2,
		func() time.Time { return now },
		sleepWithContext,
	)
	if err != nil {
		t.Fatalf("newProviderRateLimiter() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(context.Background(), "amadeus")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(context.Background(), "amadeus")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if allowed {
		t.Fatal("third call in the same second should be rejected")
	}

	now = now.Add(time.Second)
	allowed, err = limiter.Allow(context.Background(), "amadeus")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !allowed {
		t.Fatal("new second window should allow call")
	}
}

func TestProviderRateLimiterAllowPerSource(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_100, 0)
	limiter, err := newProviderRateLimiter(
		rdb,
		1,
		func() time.Time { return now },
		sleepWithContext,
	)
	if err != nil {
		t.Fatalf("newProviderRateLimiter() error = %v", err)
	}

	allowed, err := limiter.Allow(context.Background(), "amadeus")
	if err != nil {
		t.Fatalf("Allow(amadeus) error = %v", err)
	}
	if !allowed {
		t.Fatal("amadeus should be allowed on first request")
	}

	allowed, err = limiter.Allow(context.Background(), "sabre")
	if err != nil {
		t.Fatalf("Allow(sabre) error = %v", err)
	}
	if !allowed {
		t.Fatal("sabre has its own bucket and should be allowed")
	}

	allowed, err = limiter.Allow(context.Background(), "amadeus")
	if err != nil {
		t.Fatalf("Allow(amadeus) error = %v", err)
	}
	if allowed {
		t.Fatal("amadeus second request should be rejected")
	}
}

func TestProviderRateLimiterWait(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	now := time.Unix(1_700_000_200, 0)
	sleepCalls := 0
	limiter, err := newProviderRateLimiter(
		rdb,
		1,
		func() time.Time { return now },
		func(ctx context.Context, d time.Duration) error {
			sleepCalls++
			if sleepCalls == 1 {
				now = now.Add(time.Second)
			}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("newProviderRateLimiter() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), "amadeus"); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	if err := limiter.Wait(context.Background(), "amadeus"); err != nil {
		t.Fatalf("Wait() after window rollover error = %v", err)
	}
	if sleepCalls != 1 {
		t.Fatalf("sleepCalls = %d, want 1", sleepCalls)
	}
}

func newTestRedisClient(t *testing.T) *goredis.Client {
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

	return rdb
}
