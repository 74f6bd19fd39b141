package invalidation

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedupe remembers the newest event time applied per raster so replayed or
// reordered events are skipped.
type Dedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, time.Time]
}

func NewDedupe(size int) *Dedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, time.Time](size)
	return &Dedupe{lru: c}
}

// ShouldApply reports whether ev is newer than the last applied event for
// its raster and records it when it is.
func (d *Dedupe) ShouldApply(ev Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(ev.Raster); ok && !ev.TS.After(last) {
		return false
	}
	d.lru.Add(ev.Raster, ev.TS)
	return true
}

// Forget drops what is known about a raster.
func (d *Dedupe) Forget(raster string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lru.Remove(raster)
}
