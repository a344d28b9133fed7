package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
)

// TokenCache stores market snapshots as hashes at "token:<address>" so
// instances share one upstream lookup per token per TTL.
type TokenCache struct {
	c *Client
}

// NewTokenCache creates a TokenCache backed by c.
func NewTokenCache(c *Client) *TokenCache {
	return &TokenCache{c: c}
}

func (tc *TokenCache) key(addr string) string {
	return tc.c.Key("token:" + strings.ToLower(addr))
}

// Put stores snap for ttl.
func (tc *TokenCache) Put(ctx context.Context, snap domain.TokenSnapshot, ttl time.Duration) error {
	k := tc.key(snap.Address)
	pipe := tc.c.rdb.TxPipeline()
	pipe.HSet(ctx, k, map[string]any{
		"address":    strings.ToLower(snap.Address),
		"name":       snap.Name,
		"symbol":     snap.Symbol,
		"decimals":   strconv.Itoa(snap.Decimals),
		"image_url":  snap.ImageURL,
		"price_usd":  snap.PriceUSD,
		"market_cap": snap.MarketCapUSD,
		"volume_24h": snap.Volume24hUSD,
	})
	pipe.Expire(ctx, k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: put token %s: %w", snap.Address, err)
	}
	return nil
}

// Get returns the stored snapshot for addr, or domain.ErrNotFound.
func (tc *TokenCache) Get(ctx context.Context, addr string) (domain.TokenSnapshot, error) {
	vals, err := tc.c.rdb.HGetAll(ctx, tc.key(addr)).Result()
	if err != nil {
		return domain.TokenSnapshot{}, fmt.Errorf("redis: get token %s: %w", addr, err)
	}
	if len(vals) == 0 {
		return domain.TokenSnapshot{}, domain.ErrNotFound
	}
	dec, err := strconv.Atoi(vals["decimals"])
	if err != nil {
		return domain.TokenSnapshot{}, fmt.Errorf("redis: get token %s: decimals %q: %w", addr, vals["decimals"], err)
	}
	return domain.TokenSnapshot{
		Address:      vals["address"],
		Name:         vals["name"],
		Symbol:       vals["symbol"],
		Decimals:     dec,
		ImageURL:     vals["image_url"],
		PriceUSD:     vals["price_usd"],
		MarketCapUSD: vals["market_cap"],
		Volume24hUSD: vals["volume_24h"],
	}, nil
}

var _ domain.TokenStore = (*TokenCache)(nil)
