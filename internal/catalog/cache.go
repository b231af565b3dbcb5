package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sekolah/internal/branch"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete removes key from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

func feesKey(branchID, enrollmentID string) string {
	return branch.Key(branchID, "fees", enrollmentID)
}

// CachedProvider serves fee catalogs from Redis, falling back to Source.
// Cache failures are logged and never fail a fetch.
type CachedProvider struct {
	Source Provider
	Cache  *Cache
	Logger zerolog.Logger
}

// FetchFeeItems implements Provider.
func (p *CachedProvider) FetchFeeItems(ctx context.Context, branchID, enrollmentID string) ([]FeeLineItem, error) {
	if p == nil || p.Source == nil {
		return nil, errors.New("catalog: provider not configured")
	}
	key := feesKey(branchID, enrollmentID)
	var cached []FeeLineItem
	hit, err := p.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		p.Logger.Warn().Err(err).Str("key", key).Msg("fee cache read")
	}
	if hit {
		return cached, nil
	}
	items, err := p.Source.FetchFeeItems(ctx, branchID, enrollmentID)
	if err != nil {
		return nil, err
	}
	if err := p.Cache.SetJSON(ctx, key, items); err != nil {
		p.Logger.Warn().Err(err).Str("key", key).Msg("fee cache write")
	}
	return items, nil
}

// Invalidate drops the cached catalog of an enrollment.
func (p *CachedProvider) Invalidate(ctx context.Context, branchID, enrollmentID string) error {
	if p == nil {
		return nil
	}
	return p.Cache.Delete(ctx, feesKey(branchID, enrollmentID))
}
