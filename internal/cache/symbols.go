// Package cache holds the Binance exchangeInfo symbol-list TTL cache
// (spec.md SPEC_FULL.md §A6), adapted from the Redis adapter pattern in
// the teacher's data/cache package.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arbiq/marketfeed/internal/canon"
)

const defaultTTL = 6 * time.Hour

// SymbolCache stores the set of tradable symbols returned by Binance's
// exchangeInfo endpoint, keyed by a fixed Redis key, so a process sharing
// a Redis instance can validate symbols at startup without fetching
// exchangeInfo itself.
type SymbolCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps an existing Redis client. ttl <= 0 uses defaultTTL.
func New(client *redis.Client, ttl time.Duration) *SymbolCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &SymbolCache{client: client, ttl: ttl}
}

const symbolsKey = "marketfeed:binance:symbols"

// Get returns the cached symbol list, or ok=false on a cache miss or any
// Redis error (a miss is not itself an error: the caller falls back to
// fetching exchangeInfo directly).
func (c *SymbolCache) Get(ctx context.Context) (symbols []string, ok bool) {
	raw, err := c.client.Get(ctx, symbolsKey).Bytes()
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal(raw, &symbols); err != nil {
		return nil, false
	}
	return symbols, true
}

// Set stores symbols with the configured TTL.
func (c *SymbolCache) Set(ctx context.Context, symbols []string) error {
	raw, err := json.Marshal(symbols)
	if err != nil {
		return fmt.Errorf("cache: %w: marshaling symbol list: %v", canon.ErrInternal, err)
	}
	if err := c.client.Set(ctx, symbolsKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: %w: writing symbol list: %v", canon.ErrInternal, err)
	}
	return nil
}
