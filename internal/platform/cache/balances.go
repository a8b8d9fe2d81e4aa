package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-fin/custodia/internal/identity"
)

const balanceKeyPrefix = "custodia:balance:"

// Balances caches ledger balance reads in Redis. Concurrent misses for the
// same identity are collapsed through singleflight so the ledger loader runs
// once per key.
type Balances struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewBalances wraps a Redis client with the given entry TTL.
func NewBalances(client *redis.Client, ttl time.Duration) *Balances {
	return &Balances{client: client, ttl: ttl}
}

func balanceKey(id identity.Identity) string {
	return balanceKeyPrefix + id.String()
}

// Balance returns the cached balance for id, filling the cache from load on
// a miss. Redis failures surface to the caller; the caller decides whether
// to fall through to the ledger.
func (b *Balances) Balance(ctx context.Context, id identity.Identity, load func() uint64) (uint64, error) {
	key := balanceKey(id)

	raw, err := b.client.Get(ctx, key).Result()
	if err == nil {
		balance, parseErr := strconv.ParseUint(raw, 10, 64)
		if parseErr == nil {
			return balance, nil
		}
		// Corrupt entry: drop it and refill below.
		_ = b.client.Del(ctx, key).Err()
	} else if err != redis.Nil {
		return 0, fmt.Errorf("platform/cache: get balance: %w", err)
	}

	value, err, _ := b.group.Do(key, func() (any, error) {
		balance := load()
		if setErr := b.client.Set(ctx, key, strconv.FormatUint(balance, 10), b.ttl).Err(); setErr != nil {
			return 0, fmt.Errorf("platform/cache: set balance: %w", setErr)
		}
		return balance, nil
	})
	if err != nil {
		return 0, err
	}
	return value.(uint64), nil
}

// Invalidate drops cached balances for the given identities.
func (b *Balances) Invalidate(ctx context.Context, ids ...identity.Identity) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, balanceKey(id))
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("platform/cache: invalidate balances: %w", err)
	}
	return nil
}
