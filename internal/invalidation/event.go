// Package invalidation describes raster change events and the components
// that drop cached state when a raster changes.
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	OpUpdate = "update"
	OpDelete = "delete"
)

type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Raster  string    `json:"raster"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpUpdate, OpDelete:
	default:
		return fmt.Errorf("op must be update|delete")
	}
	if strings.TrimSpace(e.Raster) == "" {
		return fmt.Errorf("raster is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// Invalidator drops whatever it caches about a raster.
type Invalidator interface {
	InvalidateRaster(ctx context.Context, raster string) error
}

type Func func(ctx context.Context, raster string) error

func (f Func) InvalidateRaster(ctx context.Context, raster string) error { return f(ctx, raster) }

// Chain invalidates through every member and joins their errors. A failing
// member does not stop the rest.
type Chain []Invalidator

func (c Chain) InvalidateRaster(ctx context.Context, raster string) error {
	var errs []error
	for _, inv := range c {
		if inv == nil {
			continue
		}
		if err := inv.InvalidateRaster(ctx, raster); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
