// Package summarize reduces a footprint's elevation samples to a ground
// level and a mean building height.
package summarize

import (
	"math"

	"github.com/mohammed-shakir/building-dims/internal/core/model"
	"github.com/mohammed-shakir/building-dims/internal/raster"
)

const (
	// DefaultGroundLevelThreshold discards samples at or below it as spurious.
	DefaultGroundLevelThreshold = -5.0
	// MinHeightAboveGround discards heights at or below it as ground noise.
	MinHeightAboveGround = 0.5
)

// Summarize derives ground height, mean height and the number of samples
// contributing to the height. perimeter and footprint are passed through.
// Without samples the result holds only num_samples = 0.
func Summarize(perimeter, footprint float64, samples []raster.Sample, threshold float64) model.Attributes {
	var out model.Attributes
	if len(samples) == 0 {
		return out.With(model.NumSamples, 0)
	}

	ground := math.Inf(1)
	kept := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.Z <= threshold {
			continue
		}
		kept = append(kept, s.Z)
		ground = math.Min(ground, s.Z)
	}
	if len(kept) == 0 {
		ground = 0
	}

	var (
		sum float64
		n   int
	)
	for _, z := range kept {
		h := z - ground
		if h <= MinHeightAboveGround {
			continue
		}
		sum += h
		n++
	}
	mean := 0.0
	if n > 0 {
		mean = sum / float64(n)
	}

	return out.
		With(model.Perimeter, perimeter).
		With(model.Footprint, footprint).
		With(model.GroundHeight, ground).
		With(model.Height, mean).
		With(model.NumSamples, float64(n))
}
