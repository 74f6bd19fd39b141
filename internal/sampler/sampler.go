// Package sampler generates the regular sample grid used to read a
// footprint's elevation.
package sampler

import (
	"iter"
	"math"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/building-dims/internal/geometry"
)

const (
	DefaultBuffer = 1.5
	// target number of grid divisions across the larger envelope side
	divisions = 50
)

// Step returns the grid spacing for an envelope: about fifty divisions
// across its larger side and never below one unit.
func Step(env orb.Bound) float64 {
	extent := math.Max(env.Max[0]-env.Min[0], env.Max[1]-env.Min[1])
	return math.Max(1.0, math.Round(extent/divisions))
}

// Grid yields the grid points covered by shape grown by buffer, row by row
// from the envelope minimum. The grid is regular rather than area
// weighted. Ranging over the result again restarts the sequence.
func Grid(shape orb.Geometry, buffer float64) iter.Seq[orb.Point] {
	return func(yield func(orb.Point) bool) {
		if shape == nil || !geometry.IsPolygonal(shape) || len(geometry.Rings(shape)) == 0 {
			return
		}
		if buffer < 0 {
			buffer = 0
		}
		env := shape.Bound().Pad(buffer)
		if math.IsNaN(env.Min[0]) || math.IsNaN(env.Max[0]) || math.IsNaN(env.Min[1]) || math.IsNaN(env.Max[1]) {
			return
		}
		step := Step(env)
		nx := int(math.Ceil((env.Max[0] - env.Min[0]) / step))
		ny := int(math.Ceil((env.Max[1] - env.Min[1]) / step))
		for j := 0; j < ny; j++ {
			y := env.Min[1] + float64(j)*step
			for i := 0; i < nx; i++ {
				p := orb.Point{env.Min[0] + float64(i)*step, y}
				if !geometry.Covers(shape, p, buffer) {
					continue
				}
				if !yield(p) {
					return
				}
			}
		}
	}
}
