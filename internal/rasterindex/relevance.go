package rasterindex

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/building-dims/internal/core/observability"
)

type BoundTransformer interface {
	TransformBound(b orb.Bound, src, dst string) (orb.Bound, error)
}

// Relevant reports whether idx can contribute anything to footprints with
// the given envelope: the envelope is reprojected into the index CRS and
// compared with the index's overall rectangle. Empty indices are never
// relevant.
func Relevant(idx *Index, envelope orb.Bound, envelopeCRS string, proj BoundTransformer) (bool, error) {
	if idx == nil {
		return false, nil
	}
	all, ok := idx.Bounds()
	if !ok {
		observability.IncRasterGroup(false)
		return false, nil
	}
	env, err := proj.TransformBound(envelope, envelopeCRS, idx.CRS())
	if err != nil {
		return false, fmt.Errorf("reproject envelope %s -> %s: %w", envelopeCRS, idx.CRS(), err)
	}
	relevant := all.Intersects(env)
	observability.IncRasterGroup(relevant)
	return relevant, nil
}
