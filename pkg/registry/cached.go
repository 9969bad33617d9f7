package registry

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"skeleton/pkg/store"
)

const generationKey = "registry:generation"

// Cached is a read-through cache in front of a Store. Entries live for TTL
// or until Reload rotates the generation, whichever comes first. Cache
// failures degrade to reading the underlying store.
type Cached struct {
	Store Store
	Cache store.Cache
	TTL   time.Duration
	gen   *store.Generation
	now   func() time.Time
}

func NewCached(src Store, cache store.Cache, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{
		Store: src,
		Cache: cache,
		TTL:   ttl,
		gen:   store.NewGeneration(cache, generationKey),
	}
}

func (c *Cached) Modules(ctx context.Context) ([]Module, error) {
	return readThrough(ctx, c, "modules", c.Store.Modules)
}

func (c *Cached) Sections(ctx context.Context, moduleID int64) ([]Section, error) {
	return readThrough(ctx, c, "sections:"+strconv.FormatInt(moduleID, 10), func(ctx context.Context) ([]Section, error) {
		return c.Store.Sections(ctx, moduleID)
	})
}

func (c *Cached) Items(ctx context.Context, sectionID int64) ([]Item, error) {
	return readThrough(ctx, c, "items:"+strconv.FormatInt(sectionID, 10), func(ctx context.Context) ([]Item, error) {
		return c.Store.Items(ctx, sectionID)
	})
}

func (c *Cached) TokenDefinitions(ctx context.Context) ([]TokenDefinition, error) {
	return readThrough(ctx, c, "token-definitions", c.Store.TokenDefinitions)
}

// ResolveToken never returns an expired token, even one cached while it was
// still valid. Cached tokens live no longer than their remaining lifetime.
func (c *Cached) ResolveToken(ctx context.Context, token string) (TokenConfig, error) {
	cfg, err := cachedLoad(ctx, c, "token:"+token, func(ctx context.Context) (TokenConfig, error) {
		return c.Store.ResolveToken(ctx, token)
	}, func(cfg TokenConfig) time.Duration {
		if cfg.ExpiresAt == nil {
			return c.TTL
		}
		return min(c.TTL, cfg.ExpiresAt.Sub(c.clock()))
	})
	if err != nil {
		return TokenConfig{}, err
	}
	if cfg.Expired(c.clock()) {
		return TokenConfig{}, ErrNotFound
	}
	return cfg, nil
}

// Reload invalidates every cached entry.
func (c *Cached) Reload(ctx context.Context) error {
	_, err := c.gen.Rotate(ctx)
	return err
}

func (c *Cached) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func readThrough[T any](ctx context.Context, c *Cached, key string, load func(context.Context) (T, error)) (T, error) {
	return cachedLoad(ctx, c, key, load, nil)
}

// cachedLoad is readThrough with a per-value TTL. A non-positive TTL skips
// the cache write.
func cachedLoad[T any](ctx context.Context, c *Cached, key string, load func(context.Context) (T, error), ttlFor func(T) time.Duration) (T, error) {
	gen, err := c.gen.Current(ctx)
	if err != nil {
		return load(ctx)
	}
	cacheKey := "registry:" + gen + ":" + key
	if raw, err := c.Cache.Get(ctx, cacheKey); err == nil {
		var v T
		if json.Unmarshal([]byte(raw), &v) == nil {
			return v, nil
		}
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	ttl := c.TTL
	if ttlFor != nil {
		ttl = ttlFor(v)
	}
	if ttl <= 0 {
		return v, nil
	}
	if b, err := json.Marshal(v); err == nil {
		_ = c.Cache.Set(ctx, cacheKey, string(b), ttl)
	}
	return v, nil
}
