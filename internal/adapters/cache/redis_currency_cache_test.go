package cache

import (
	"context"
	"delivery-match-service/internal/domain"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// countingDirectory records how often the underlying source is consulted.
type countingDirectory struct {
	calls int
}

func (d *countingDirectory) MinorUnits(ctx context.Context, code string) (int, error) {
	d.calls++
	switch code {
	case "USD":
		return 2, nil
	case "JPY":
		return 0, nil
	}
	return 0, fmt.Errorf("unknown code %q: %w", code, domain.ErrNotFound)
}

func newTestCache(t *testing.T, ttl time.Duration) (*RedisCurrencyCache, *countingDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	source := &countingDirectory{}

	c, err := NewRedisCurrencyCache(client, source, ttl)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c, source, mr
}

func TestCurrencyCacheHitsSourceOnce(t *testing.T) {
	ctx := context.Background()
	c, source, _ := newTestCache(t, time.Hour)

	for i := 0; i < 3; i++ {
		units, err := c.MinorUnits(ctx, "USD")
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if units != 2 {
			t.Fatalf("units = %d, want 2", units)
		}
	}

	if source.calls != 1 {
		t.Fatalf("source calls = %d, want 1", source.calls)
	}
}

func TestCurrencyCacheExpires(t *testing.T) {
	ctx := context.Background()
	c, source, mr := newTestCache(t, time.Minute)

	if _, err := c.MinorUnits(ctx, "JPY"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := c.MinorUnits(ctx, "JPY"); err != nil {
		t.Fatalf("lookup after expiry: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("source calls = %d, want 2", source.calls)
	}
}

func TestCurrencyCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	c, source, _ := newTestCache(t, time.Hour)

	if _, err := c.MinorUnits(ctx, "USD"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if err := c.Invalidate(ctx, "USD"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := c.MinorUnits(ctx, "USD"); err != nil {
		t.Fatalf("lookup after invalidate: %v", err)
	}

	if source.calls != 2 {
		t.Fatalf("source calls = %d, want 2", source.calls)
	}
}

func TestCurrencyCacheSourceErrorNotCached(t *testing.T) {
	ctx := context.Background()
	c, source, _ := newTestCache(t, time.Hour)

	for i := 0; i < 2; i++ {
		if _, err := c.MinorUnits(ctx, "XXX"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("lookup %d: err = %v, want ErrNotFound", i, err)
		}
	}

	// Failures must not be cached; each attempt reaches the source.
	if source.calls != 2 {
		t.Fatalf("source calls = %d, want 2", source.calls)
	}
}

func TestCurrencyCacheDegradesWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	c, source, mr := newTestCache(t, time.Hour)

	mr.Close()

	units, err := c.MinorUnits(ctx, "USD")
	if err != nil {
		t.Fatalf("lookup with redis down: %v", err)
	}
	if units != 2 {
		t.Fatalf("units = %d, want 2", units)
	}
	if source.calls != 1 {
		t.Fatalf("source calls = %d, want 1", source.calls)
	}
}
