package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Generation is a shared version stamp stored in a Cache. Readers embed the
// current stamp in their cache keys; Rotate orphans every key written under
// the previous stamp, which lets the entries expire on their own TTL.
type Generation struct {
	Cache Cache
	Key   string
}

func NewGeneration(cache Cache, key string) *Generation {
	return &Generation{Cache: cache, Key: key}
}

func (g *Generation) Current(ctx context.Context) (string, error) {
	v, err := g.Cache.Get(ctx, g.Key)
	if err == nil && v != "" {
		return v, nil
	}
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		return "", err
	}
	if _, err := g.Cache.SetNX(ctx, g.Key, uuid.NewString(), 0); err != nil {
		return "", err
	}
	return g.Cache.Get(ctx, g.Key)
}

func (g *Generation) Rotate(ctx context.Context) (string, error) {
	next := uuid.NewString()
	if err := g.Cache.Set(ctx, g.Key, next, 0); err != nil {
		return "", err
	}
	return next, nil
}
