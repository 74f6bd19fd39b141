// Package raster holds elevation coverages: the decoder contract, the
// catalog that caches decoded metadata and payloads, and point queries.
package raster

import (
	"errors"
	"iter"
	"math"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/building-dims/internal/core/observability"
)

var ErrEmptyBounds = errors.New("raster bounds are empty")

// Coverage is a decoded elevation raster.
type Coverage interface {
	// Bounds returns the coverage extent and its CRS id.
	Bounds() (orb.Bound, string)
	// SampleAt returns the band 0 value at (x, y); ok is false outside
	// the coverage extent.
	SampleAt(x, y float64) (v float64, ok bool)
	// NoData returns the no-data sentinels of a band.
	NoData(band int) []float64
}

// Decoder turns a raster id into a coverage. Decoding must be pure: the
// same id decodes to the same coverage.
type Decoder interface {
	Decode(id string) (Coverage, error)
}

type DecoderFunc func(id string) (Coverage, error)

func (f DecoderFunc) Decode(id string) (Coverage, error) { return f(id) }

// Facts is the small per-raster metadata kept for the life of a catalog.
type Facts struct {
	ID     string
	Bounds orb.Bound
	CRS    string
}

// Sample is one elevation measurement in raster-native coordinates.
type Sample struct {
	X, Y, Z float64
}

// Query resolves points against cov. Points outside the extent and no-data
// values are dropped.
func Query(cov Coverage, points iter.Seq[orb.Point]) []Sample {
	nodata := cov.NoData(0)
	var (
		out             []Sample
		outside, nodrop int
	)
	for p := range points {
		v, ok := cov.SampleAt(p[0], p[1])
		if !ok {
			outside++
			continue
		}
		if isNoData(v, nodata) {
			nodrop++
			continue
		}
		out = append(out, Sample{X: p[0], Y: p[1], Z: v})
	}
	observability.AddElevationSamples(len(out), outside, nodrop)
	return out
}

func isNoData(v float64, nodata []float64) bool {
	if math.IsNaN(v) {
		return true
	}
	for _, nd := range nodata {
		if v == nd {
			return true
		}
	}
	return false
}
