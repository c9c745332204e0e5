package cache

import (
	"context"
	"delivery-match-service/internal/platform/obs"
	"delivery-match-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCurrencyCache fronts a CurrencyDirectory with a shared Redis cache.
// It replaces the process-wide reference-data cache the engine used to
// lean on: TTL and invalidation are explicit, and the component is
// injected rather than reached as ambient state. Cache faults degrade to
// the underlying directory, never to an error.
type RedisCurrencyCache struct {
	client *redis.Client
	source ports.CurrencyDirectory
	ttl    time.Duration
}

func NewRedisCurrencyCache(client *redis.Client, source ports.CurrencyDirectory, ttl time.Duration) (*RedisCurrencyCache, error) {
	if client == nil {
		return nil, errors.New("currency cache: redis client is nil")
	}
	if source == nil {
		return nil, errors.New("currency cache: source directory is nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisCurrencyCache{client: client, source: source, ttl: ttl}, nil
}

func cacheKey(code string) string { return "currency:minor_units:" + code }

func (c *RedisCurrencyCache) MinorUnits(ctx context.Context, code string) (_ int, err error) {
	defer obs.Time(ctx, "currency.cache.MinorUnits")(&err)

	cached, err := c.client.Get(ctx, cacheKey(code)).Result()
	if err == nil {
		units, convErr := strconv.Atoi(cached)
		if convErr == nil {
			return units, nil
		}
		log.Printf("op=currency.cache code=%s bad_cached_value=%q", code, cached)
	} else if !errors.Is(err, redis.Nil) {
		log.Printf("op=currency.cache code=%s redis_get err=%v", code, err)
	}

	units, err := c.source.MinorUnits(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("currency cache: source lookup %q: %w", code, err)
	}

	if err := c.client.Set(ctx, cacheKey(code), strconv.Itoa(units), c.ttl).Err(); err != nil {
		log.Printf("op=currency.cache code=%s redis_set err=%v", code, err)
	}

	return units, nil
}

// Invalidate drops one cached code, forcing the next lookup through to
// the source directory.
func (c *RedisCurrencyCache) Invalidate(ctx context.Context, code string) error {
	if err := c.client.Del(ctx, cacheKey(code)).Err(); err != nil {
		return fmt.Errorf("currency cache: invalidate %q: %w", code, err)
	}
	return nil
}
