package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PriceCache is a read-through cache for catalog price lookups. The price
// lookup runs on every gated clinical order, so the hot path reads from
// redis when available.
type PriceCache interface {
	Get(ctx context.Context, name, category string) (*Service, bool)
	Set(ctx context.Context, svc *Service)
	Invalidate(ctx context.Context, name, category string)
}

const cacheTTL = 5 * time.Minute

type redisCache struct {
	client *redis.Client
}

// NewRedisCache wraps a redis client as a PriceCache.
func NewRedisCache(client *redis.Client) PriceCache {
	return &redisCache{client: client}
}

func cacheKey(name, category string) string {
	return fmt.Sprintf("catalog:%s:%s", category, name)
}

func (c *redisCache) Get(ctx context.Context, name, category string) (*Service, bool) {
	raw, err := c.client.Get(ctx, cacheKey(name, category)).Bytes()
	if err != nil {
		return nil, false
	}
	var svc Service
	if err := json.Unmarshal(raw, &svc); err != nil {
		return nil, false
	}
	return &svc, true
}

func (c *redisCache) Set(ctx context.Context, svc *Service) {
	raw, err := json.Marshal(svc)
	if err != nil {
		return
	}
	// Best effort: a failed cache write only costs a future DB read.
	_ = c.client.Set(ctx, cacheKey(svc.Name, svc.Category), raw, cacheTTL).Err()
}

func (c *redisCache) Invalidate(ctx context.Context, name, category string) {
	_ = c.client.Del(ctx, cacheKey(name, category)).Err()
}
