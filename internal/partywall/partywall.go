// Package partywall estimates the fraction of a footprint's perimeter that
// is shared with neighbouring footprints.
package partywall

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/building-dims/internal/core/model"
	"github.com/mohammed-shakir/building-dims/internal/core/observability"
	"github.com/mohammed-shakir/building-dims/internal/geometry"
)

type footprint struct {
	index  int
	geom   orb.Geometry
	bounds orb.Bound
}

func (f footprint) Bounds() rtreego.Rect {
	r, _ := rtreego.NewRectFromPoints(
		rtreego.Point{f.bounds.Min[0], f.bounds.Min[1]},
		rtreego.Point{f.bounds.Max[0], f.bounds.Max[1]},
	)
	return r
}

// Index is an R-tree over polygon footprint bounds. It is read-only after
// construction and safe for concurrent searches.
type Index struct {
	tree *rtreego.Rtree
	n    int
}

// NewIndex indexes every polygon feature; point features are skipped.
func NewIndex(features []model.Feature) *Index {
	objs := make([]rtreego.Spatial, 0, len(features))
	for _, f := range features {
		if !f.IsPolygon() || f.Geometry == nil {
			continue
		}
		objs = append(objs, footprint{index: f.Index, geom: f.Geometry, bounds: f.Geometry.Bound()})
	}
	return &Index{tree: rtreego.NewTree(2, 25, 50, objs...), n: len(objs)}
}

func (idx *Index) Len() int { return idx.n }

// Neighbours returns the footprints whose rectangles meet the target's,
// excluding the target itself by identity. A distinct footprint with the
// same geometry is still a neighbour.
func (idx *Index) Neighbours(target model.Feature) []orb.Geometry {
	if idx == nil || idx.n == 0 || target.Geometry == nil {
		return nil
	}
	b := target.Geometry.Bound()
	q := footprint{bounds: b.Pad(tolerance(b))}
	hits := idx.tree.SearchIntersect(q.Bounds())
	out := make([]orb.Geometry, 0, len(hits))
	for _, h := range hits {
		fp := h.(footprint)
		if fp.index == target.Index {
			continue
		}
		out = append(out, fp.geom)
	}
	return out
}

func tolerance(b orb.Bound) float64 {
	m := 1.0
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if v < 0 {
			v = -v
		}
		m = max(m, v)
	}
	return 1e-9 * m
}

// Fraction computes shared boundary length over boundary length. Neighbours
// that fail validation are left out of the shared length and reported in
// skipped; err is set only when the target itself cannot be measured.
func Fraction(target orb.Geometry, neighbours []orb.Geometry) (frac float64, skipped []error, err error) {
	valid := make([]orb.Geometry, 0, len(neighbours))
	for i, n := range neighbours {
		if err := geometry.Validate(n); err != nil {
			skipped = append(skipped, fmt.Errorf("neighbour %d: %w", i, err))
			continue
		}
		valid = append(valid, n)
	}
	if len(valid) == 0 && len(skipped) == 0 {
		return 0, nil, nil
	}
	shared, total, err := geometry.SharedLength(target, valid)
	if err != nil {
		return 0, skipped, fmt.Errorf("shared boundary: %w", err)
	}
	return shared / total, skipped, nil
}

// SharedFraction is the fraction of target's boundary shared with its
// neighbours in idx.
func SharedFraction(target model.Feature, idx *Index) (float64, []error, error) {
	return Fraction(target.Geometry, idx.Neighbours(target))
}

// Estimator attaches shared perimeter fractions to features.
type Estimator struct {
	idx    *Index
	logger *slog.Logger
}

func NewEstimator(idx *Index, logger *slog.Logger) *Estimator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{idx: idx, logger: logger}
}

// SharedPerimeter returns the shared perimeter fraction of f. A neighbour
// that fails is logged and ignored; a target that fails yields 0. Neither
// fails the batch.
func (e *Estimator) SharedPerimeter(ctx context.Context, f model.Feature) float64 {
	frac, skipped, err := SharedFraction(f, e.idx)
	for _, serr := range skipped {
		observability.IncPartyWallFailure()
		e.logger.WarnContext(ctx, "neighbour skipped in shared perimeter",
			"feature", f.Index, "id", f.ID, "err", serr)
	}
	if err != nil {
		observability.IncPartyWallFailure()
		e.logger.WarnContext(ctx, "shared perimeter failed, using 0",
			"feature", f.Index, "id", f.ID, "err", err)
		return 0
	}
	return frac
}

// Apply returns f with shared_perimeter set. Non-polygon features are
// returned unchanged.
func (e *Estimator) Apply(ctx context.Context, f model.Feature) model.Feature {
	if !f.IsPolygon() {
		return f
	}
	return f.WithAttrs(f.Attrs.With(model.SharedPerimeter, e.SharedPerimeter(ctx, f)))
}
