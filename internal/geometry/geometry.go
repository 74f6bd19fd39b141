// Package geometry implements the planar footprint operations the
// estimator needs on top of orb: perimeter, area, buffered coverage and
// shared boundary length between neighbouring footprints.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var ErrDegenerate = errors.New("degenerate geometry")

// Rings returns every ring of a polygonal geometry. Other geometry types
// have no rings.
func Rings(g orb.Geometry) []orb.Ring {
	switch v := g.(type) {
	case orb.Polygon:
		return append([]orb.Ring(nil), v...)
	case orb.MultiPolygon:
		var out []orb.Ring
		for _, p := range v {
			out = append(out, p...)
		}
		return out
	case orb.Ring:
		return []orb.Ring{v}
	default:
		return nil
	}
}

func IsPolygonal(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	default:
		return false
	}
}

// Perimeter is the total boundary length, holes included.
func Perimeter(g orb.Geometry) float64 {
	if !IsPolygonal(g) {
		return 0
	}
	return planar.Length(g)
}

func Area(g orb.Geometry) float64 {
	if !IsPolygonal(g) {
		return 0
	}
	return math.Abs(planar.Area(g))
}

// Corners counts ring vertices, ignoring the closing duplicate.
func Corners(g orb.Geometry) int {
	n := 0
	for _, r := range Rings(g) {
		k := len(r)
		if k > 1 && r[0] == r[k-1] {
			k--
		}
		n += k
	}
	return n
}

// Validate reports rings that cannot bound an area and non-finite
// coordinates.
func Validate(g orb.Geometry) error {
	rings := Rings(g)
	if len(rings) == 0 {
		return fmt.Errorf("%w: no rings", ErrDegenerate)
	}
	for i, r := range rings {
		if len(r) < 4 {
			return fmt.Errorf("%w: ring %d has %d points", ErrDegenerate, i, len(r))
		}
		for _, p := range r {
			if !finite(p[0]) || !finite(p[1]) {
				return fmt.Errorf("%w: ring %d has non-finite coordinate", ErrDegenerate, i)
			}
		}
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Covers reports whether the shape expanded outward by buffer covers pt,
// boundary included. This is the membership test of the round-joined
// buffer without materialising the buffered polygon.
func Covers(g orb.Geometry, pt orb.Point, buffer float64) bool {
	if buffer < 0 {
		buffer = 0
	}
	inside := false
	switch v := g.(type) {
	case orb.Polygon:
		inside = planar.PolygonContains(v, pt)
	case orb.MultiPolygon:
		inside = planar.MultiPolygonContains(v, pt)
	default:
		return false
	}
	if inside {
		return true
	}
	tol := buffer + eps(pt)
	for _, r := range Rings(g) {
		for i := 1; i < len(r); i++ {
			if planar.DistanceFromSegment(r[i-1], r[i], pt) <= tol {
				return true
			}
		}
	}
	return false
}

// eps is the snapping tolerance used for boundary tests; it scales with
// coordinate magnitude so projected and geographic inputs behave alike.
func eps(pts ...orb.Point) float64 {
	m := 1.0
	for _, p := range pts {
		m = math.Max(m, math.Max(math.Abs(p[0]), math.Abs(p[1])))
	}
	return 1e-9 * m
}

type interval struct{ lo, hi float64 }

// SharedLength returns the length of target's boundary that runs along the
// boundary of at least one neighbour, and the target's total boundary
// length. Overlaps shared with several neighbours are counted once.
// Touching at a single point contributes nothing.
func SharedLength(target orb.Geometry, neighbours []orb.Geometry) (shared, total float64, err error) {
	if err := Validate(target); err != nil {
		return 0, 0, fmt.Errorf("target: %w", err)
	}
	total = Perimeter(target)
	if total <= 0 || !finite(total) {
		return 0, 0, fmt.Errorf("%w: boundary length %v", ErrDegenerate, total)
	}

	type segment struct {
		a, b orb.Point
		hits []interval
	}
	var segs []*segment
	for _, r := range Rings(target) {
		for i := 1; i < len(r); i++ {
			if r[i-1] == r[i] {
				continue
			}
			segs = append(segs, &segment{a: r[i-1], b: r[i]})
		}
	}

	for ni, n := range neighbours {
		if err := Validate(n); err != nil {
			return 0, 0, fmt.Errorf("neighbour %d: %w", ni, err)
		}
		for _, r := range Rings(n) {
			for j := 1; j < len(r); j++ {
				c, d := r[j-1], r[j]
				if c == d {
					continue
				}
				for _, s := range segs {
					if iv, ok := overlap(s.a, s.b, c, d); ok {
						s.hits = append(s.hits, iv)
					}
				}
			}
		}
	}

	for _, s := range segs {
		if len(s.hits) == 0 {
			continue
		}
		shared += mergedSpan(s.hits) * planar.Distance(s.a, s.b)
	}
	return shared, total, nil
}

// overlap returns the parametric span of segment ab covered by segment cd
// when the two are collinear and overlap along a positive length.
func overlap(a, b, c, d orb.Point) (interval, bool) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return interval{}, false
	}
	l := math.Sqrt(l2)
	tol := eps(a, b, c, d)

	// perpendicular distance of c and d from the line through ab
	dc := math.Abs(dx*(c[1]-a[1])-dy*(c[0]-a[0])) / l
	dd := math.Abs(dx*(d[1]-a[1])-dy*(d[0]-a[0])) / l
	if dc > tol || dd > tol {
		return interval{}, false
	}

	tc := (dx*(c[0]-a[0]) + dy*(c[1]-a[1])) / l2
	td := (dx*(d[0]-a[0]) + dy*(d[1]-a[1])) / l2
	lo, hi := math.Min(tc, td), math.Max(tc, td)
	lo, hi = math.Max(lo, 0), math.Min(hi, 1)
	if (hi-lo)*l <= tol {
		return interval{}, false
	}
	return interval{lo: lo, hi: hi}, true
}

func mergedSpan(ivs []interval) float64 {
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].lo < ivs[j].lo })
	span := 0.0
	cur := ivs[0]
	for _, iv := range ivs[1:] {
		if iv.lo <= cur.hi {
			cur.hi = math.Max(cur.hi, iv.hi)
			continue
		}
		span += cur.hi - cur.lo
		cur = iv
	}
	return span + cur.hi - cur.lo
}
