// Package cache keeps derived transaction details keyed by reference.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"fundsflow.org/internal/ledger"
	"fundsflow.org/internal/obs"
)

// DetailCache stores derived details. Get reports ok=false on a miss.
type DetailCache interface {
	Get(ctx context.Context, reference string) (ledger.DerivedTransactionDetail, bool, error)
	Set(ctx context.Context, d ledger.DerivedTransactionDetail) error
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (ledger.DerivedTransactionDetail, bool, error) {
	return ledger.DerivedTransactionDetail{}, false, nil
}

func (Nop) Set(context.Context, ledger.DerivedTransactionDetail) error { return nil }

const keyPrefix = "fundsflow:detail:"

// RedisCache stores details as JSON with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedis(client, ttl), nil
}

func Key(reference string) string { return keyPrefix + reference }

func (c *RedisCache) Get(ctx context.Context, reference string) (ledger.DerivedTransactionDetail, bool, error) {
	raw, err := c.client.Get(ctx, Key(reference)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ledger.DerivedTransactionDetail{}, false, nil
	}
	if err != nil {
		return ledger.DerivedTransactionDetail{}, false, err
	}
	var d ledger.DerivedTransactionDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return ledger.DerivedTransactionDetail{}, false, err
	}
	return d, true, nil
}

func (c *RedisCache) Set(ctx context.Context, d ledger.DerivedTransactionDetail) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(d.Reference), raw, c.ttl).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *RedisCache) Close() error { return c.client.Close() }

// ReadThrough returns the cached detail for reference or calls derive and
// stores its result. Cache failures are logged and treated as misses.
func ReadThrough(ctx context.Context, c DetailCache, reference string,
	derive func(context.Context) (ledger.DerivedTransactionDetail, error)) (ledger.DerivedTransactionDetail, bool, error) {
	if c == nil {
		c = Nop{}
	}
	d, ok, err := c.Get(ctx, reference)
	if err != nil {
		obs.FromContext(ctx).Warn().Err(err).Str("reference", reference).Msg("detail_cache_get_failed")
	}
	if ok {
		return d, true, nil
	}
	d, err = derive(ctx)
	if err != nil {
		return ledger.DerivedTransactionDetail{}, false, err
	}
	if err := c.Set(ctx, d); err != nil {
		obs.FromContext(ctx).Warn().Err(err).Str("reference", reference).Msg("detail_cache_set_failed")
	}
	return d, false, nil
}
