// Package rasterindex groups rasters by CRS and indexes each group's
// bounding rectangles in an R-tree.
package rasterindex

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/building-dims/internal/raster"
)

var ErrDecode = errors.New("raster index build failed")

// R-tree fan-out, as used for chart indices.
const (
	minChildren = 25
	maxChildren = 50
)

type entry struct {
	id     string
	bounds orb.Bound
}

func (e entry) Bounds() rtreego.Rect { return rect(e.bounds) }

func rect(b orb.Bound) rtreego.Rect {
	r, _ := rtreego.NewRectFromPoints(
		rtreego.Point{b.Min[0], b.Min[1]},
		rtreego.Point{b.Max[0], b.Max[1]},
	)
	return r
}

// pad grows a query rectangle slightly so rectangles that only touch it
// are still reported.
func pad(b orb.Bound) orb.Bound {
	d := 1e-9
	for _, v := range []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]} {
		if v < 0 {
			v = -v
		}
		d = max(d, v*1e-12)
	}
	return b.Pad(d)
}

// Index is an R-tree of raster bounding rectangles for one CRS.
type Index struct {
	crs    string
	tree   *rtreego.Rtree
	bounds orb.Bound
	n      int
}

func newIndex(crsID string, entries []entry) *Index {
	objs := make([]rtreego.Spatial, len(entries))
	idx := &Index{crs: crsID, n: len(entries)}
	for i, e := range entries {
		objs[i] = e
		if i == 0 {
			idx.bounds = e.bounds
			continue
		}
		idx.bounds = idx.bounds.Union(e.bounds)
	}
	idx.tree = rtreego.NewTree(2, minChildren, maxChildren, objs...)
	return idx
}

// Insert adds a raster after the bulk build. Indices are read-only once a
// pipeline run starts.
func (idx *Index) Insert(id string, b orb.Bound) {
	if idx.tree == nil {
		idx.tree = rtreego.NewTree(2, minChildren, maxChildren)
	}
	if idx.n == 0 {
		idx.bounds = b
	} else {
		idx.bounds = idx.bounds.Union(b)
	}
	idx.tree.Insert(entry{id: id, bounds: b})
	idx.n++
}

// Search returns the ids of rasters whose rectangles intersect b, sorted.
func (idx *Index) Search(b orb.Bound) []string {
	if idx.tree == nil || idx.n == 0 {
		return nil
	}
	hits := idx.tree.SearchIntersect(rect(pad(b)))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(entry).id)
	}
	sort.Strings(out)
	return out
}

// Bounds returns the rectangle covering every raster; ok is false for an
// empty index.
func (idx *Index) Bounds() (orb.Bound, bool) {
	if idx.n == 0 {
		return orb.Bound{}, false
	}
	return idx.bounds, true
}

func (idx *Index) CRS() string { return idx.crs }
func (idx *Index) Len() int    { return idx.n }

// Set maps CRS id to the index of that CRS's rasters.
type Set map[string]*Index

// CRSs returns the CRS ids in sorted order.
func (s Set) CRSs() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FactSource is the part of the raster catalog Build needs.
type FactSource interface {
	Facts(id string) (raster.Facts, error)
}

// Build resolves every raster's facts and bulk-builds one index per exact
// CRS id. Any raster that cannot be decoded fails the whole build.
func Build(src FactSource, ids []string) (Set, error) {
	groups := make(map[string][]entry)
	for _, id := range ids {
		f, err := src.Facts(id)
		if err != nil {
			return nil, fmt.Errorf("%w: raster %q: %w", ErrDecode, id, err)
		}
		groups[f.CRS] = append(groups[f.CRS], entry{id: f.ID, bounds: f.Bounds})
	}
	out := make(Set, len(groups))
	for crsID, entries := range groups {
		out[crsID] = newIndex(crsID, entries)
	}
	return out, nil
}
