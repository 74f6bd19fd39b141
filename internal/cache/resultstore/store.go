// Package resultstore caches encoded estimate results and drops them when a
// raster they were computed from changes.
package resultstore

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammed-shakir/building-dims/internal/cache"
	"github.com/mohammed-shakir/building-dims/internal/cache/keys"
	"github.com/mohammed-shakir/building-dims/internal/core/observability"
)

type Store struct {
	backend   cache.Interface
	ttl       time.Duration
	opTimeout time.Duration
}

// New returns a store writing entries with ttl. Each backend call is bounded
// by opTimeout when it is positive.
func New(backend cache.Interface, ttl, opTimeout time.Duration) *Store {
	return &Store{backend: backend, ttl: ttl, opTimeout: opTimeout}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// Get returns the cached result for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	got, err := s.backend.MGet(ctx, []string{key})
	if err != nil {
		return nil, false, fmt.Errorf("result get: %w", err)
	}
	v, ok := got[key]
	observability.IncResultCache(ok)
	return v, ok, nil
}

// Put stores a result and records key under every raster it used, so that
// InvalidateRaster can find it.
func (s *Store) Put(ctx context.Context, key string, rasters []string, val []byte) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.backend.Set(ctx, key, val, s.ttl); err != nil {
		return fmt.Errorf("result put: %w", err)
	}
	for _, r := range rasters {
		if err := s.backend.SAdd(ctx, keys.RasterKey(r), s.ttl, key); err != nil {
			return fmt.Errorf("result index %q: %w", r, err)
		}
	}
	return nil
}

// InvalidateRaster deletes every cached result computed from raster and
// returns how many result keys were dropped.
func (s *Store) InvalidateRaster(ctx context.Context, raster string) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	idx := keys.RasterKey(raster)
	members, err := s.backend.SMembers(ctx, idx)
	if err != nil {
		return 0, fmt.Errorf("result invalidate %q: %w", raster, err)
	}
	if err := s.backend.Del(ctx, append(members, idx)...); err != nil {
		return 0, fmt.Errorf("result invalidate %q: %w", raster, err)
	}
	return len(members), nil
}
