package raster

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/building-dims/internal/core/observability"
)

// Catalog caches raster facts for its whole life and decoded payloads in a
// bounded LRU. Two goroutines may decode the same raster concurrently; the
// later Add wins and both results are equivalent.
type Catalog struct {
	dec Decoder

	mu    sync.RWMutex
	facts map[string]Facts

	payload *lru.Cache[string, Coverage]
}

func NewCatalog(dec Decoder, cacheSize int) (*Catalog, error) {
	if dec == nil {
		return nil, fmt.Errorf("raster catalog: nil decoder")
	}
	if cacheSize <= 0 {
		cacheSize = 32
	}
	c, err := lru.New[string, Coverage](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("raster payload cache: %w", err)
	}
	return &Catalog{dec: dec, facts: make(map[string]Facts), payload: c}, nil
}

// Coverage returns the decoded raster, decoding on a cache miss.
func (c *Catalog) Coverage(id string) (Coverage, error) {
	if cov, ok := c.payload.Get(id); ok {
		observability.IncRasterCacheHit()
		return cov, nil
	}
	observability.IncRasterCacheMiss()

	cov, err := c.dec.Decode(id)
	observability.IncRasterDecode(err)
	if err != nil {
		return nil, fmt.Errorf("decode raster %q: %w", id, err)
	}
	c.payload.Add(id, cov)
	return cov, nil
}

// Facts returns the bounds and CRS of a raster, decoding it the first time.
func (c *Catalog) Facts(id string) (Facts, error) {
	c.mu.RLock()
	f, ok := c.facts[id]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	cov, err := c.Coverage(id)
	if err != nil {
		return Facts{}, err
	}
	b, crsID := cov.Bounds()
	if b.IsEmpty() {
		return Facts{}, fmt.Errorf("raster %q: %w", id, ErrEmptyBounds)
	}
	f = Facts{ID: id, Bounds: b, CRS: crsID}

	c.mu.Lock()
	c.facts[id] = f
	c.mu.Unlock()
	return f, nil
}

// Invalidate forgets everything cached about one raster.
func (c *Catalog) Invalidate(id string) {
	c.mu.Lock()
	delete(c.facts, id)
	c.mu.Unlock()
	c.payload.Remove(id)
}

func (c *Catalog) ResetFacts() {
	c.mu.Lock()
	c.facts = make(map[string]Facts)
	c.mu.Unlock()
}

func (c *Catalog) PurgePayloads() { c.payload.Purge() }

func (c *Catalog) CachedPayloads() int { return c.payload.Len() }

func (c *Catalog) CachedFacts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.facts)
}
