// Package model defines core domain types shared across the estimator.
package model

import (
	"fmt"

	"github.com/paulmach/orb"
)

type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String representation matching wfs/wms bbox format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.X1, b.Y1}, Max: orb.Point{b.X2, b.Y2}}
}

func BBoxFromBound(b orb.Bound, srid string) BBox {
	return BBox{X1: b.Min[0], Y1: b.Min[1], X2: b.Max[0], Y2: b.Max[1], SRID: srid}
}

type GeometryType string

const (
	Point   GeometryType = "point"
	Polygon GeometryType = "polygon"
)

// Feature is one building or point record. Pipeline stages never mutate a
// Feature in place, they return an updated copy.
type Feature struct {
	// Index is the position in the input set and the feature's identity.
	Index    int
	ID       string
	Type     GeometryType
	Geometry orb.Geometry
	Attrs    Attributes
	// Props carries input properties that are not derived attributes.
	Props map[string]any
}

func (f Feature) WithAttrs(a Attributes) Feature {
	f.Attrs = a
	return f
}

func (f Feature) IsPolygon() bool { return f.Type == Polygon }

type FeatureSet struct {
	CRS      string
	Features []Feature
}

// Envelope returns the bounding rectangle of every geometry in the set.
// ok is false for an empty set.
func (fs FeatureSet) Envelope() (orb.Bound, bool) {
	var (
		env orb.Bound
		ok  bool
	)
	for _, f := range fs.Features {
		if f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if !ok {
			env, ok = b, true
			continue
		}
		env = env.Union(b)
	}
	return env, ok
}

func (fs FeatureSet) Len() int { return len(fs.Features) }

// EstimateRequest is a validated estimate call: a GeoJSON body plus the
// CRS to assume when the body does not name one and the rasters to sample.
type EstimateRequest struct {
	CRS     string
	Rasters []string
	Body    []byte
}
