// Package derive reconciles storeys, height and floor area and computes the
// wall, surface and volume metrics of a footprint.
//
// Every value is written only when the field is absent, so running a
// derivation twice leaves earlier results untouched.
package derive

import (
	"errors"
	"fmt"
	"math"

	"github.com/mohammed-shakir/building-dims/internal/core/model"
)

const DefaultStoreyHeight = 3.0

var ErrDivisionByZero = errors.New("division by zero")

// Derive2D needs perimeter, footprint and the shared perimeter fraction.
// perimeter_per_footprint is 0 for a zero perimeter and is left out when
// only the footprint is zero.
func Derive2D(a model.Attributes) model.Attributes {
	perimeter, okP := a.Get(model.Perimeter)
	footprint, okF := a.Get(model.Footprint)
	fraction, okS := a.Get(model.SharedPerimeter)
	if !okP || !okF || !okS {
		return a
	}
	a = a.WithDefault(model.SharedPerimeterLength, fraction*perimeter)
	switch {
	case perimeter == 0:
		a = a.WithDefault(model.PerimeterPerFootprint, 0)
	case footprint != 0:
		a = a.WithDefault(model.PerimeterPerFootprint, perimeter/footprint)
	}
	return a
}

// Reconcile fills storeys, height and floor area from whichever of them
// are known. storeyHeight <= 0 falls back to DefaultStoreyHeight.
func Reconcile(a model.Attributes, storeyHeight float64) model.Attributes {
	if storeyHeight <= 0 {
		storeyHeight = DefaultStoreyHeight
	}

	storeys, ok := a.Get(model.Storeys)
	if !ok {
		storeys = 1
		if h, ok := a.Get(model.Height); ok {
			storeys = math.Floor(h / storeyHeight)
		}
	}
	a = a.With(model.Storeys, math.Max(1, storeys))
	storeys, _ = a.Get(model.Storeys)

	a = a.WithDefault(model.Height, storeys*storeyHeight)

	if fp, ok := a.Get(model.Footprint); ok {
		a = a.WithDefault(model.FloorArea, fp*storeys)
	}
	return a
}

// Derive3D computes wall, surface and volume metrics. Callers are expected
// to check the inputs with Eligible first; a zero volume or total surface
// is reported as ErrDivisionByZero.
func Derive3D(a model.Attributes) (model.Attributes, error) {
	perimeter, _ := a.Get(model.Perimeter)
	footprint, _ := a.Get(model.Footprint)
	height, _ := a.Get(model.Height)
	fraction, _ := a.Get(model.SharedPerimeter)

	wall := perimeter * height
	party := fraction * wall
	externalWall := wall - party
	externalSurface := externalWall + 2*footprint
	totalSurface := wall + 2*footprint
	volume := footprint * height

	if totalSurface == 0 {
		return a, fmt.Errorf("external surface proportion: total surface area is 0: %w", ErrDivisionByZero)
	}
	if volume == 0 {
		return a, fmt.Errorf("surface per volume: volume is 0 (footprint %v, height %v): %w", footprint, height, ErrDivisionByZero)
	}

	return a.
		WithDefault(model.WallArea, wall).
		WithDefault(model.PartyWallArea, party).
		WithDefault(model.ExternalWallArea, externalWall).
		WithDefault(model.ExternalSurfaceArea, externalSurface).
		WithDefault(model.TotalSurfaceArea, totalSurface).
		WithDefault(model.Volume, volume).
		WithDefault(model.ExternalSurfaceProportion, externalSurface/totalSurface).
		WithDefault(model.ExternalSurfacePerVolume, externalSurface/volume).
		WithDefault(model.TotalSurfacePerVolume, totalSurface/volume), nil
}

// Eligible reports whether the 3D metrics can be computed: a shared
// perimeter fraction is present and both height and footprint are positive.
func Eligible(a model.Attributes) bool {
	if !a.Has(model.SharedPerimeter) {
		return false
	}
	h, okH := a.Get(model.Height)
	fp, okF := a.Get(model.Footprint)
	return okH && okF && h > 0 && fp > 0
}

// Derive runs the 2D stage, reconciliation and, when eligible, the 3D
// stage. Only the 3D stage can fail.
func Derive(a model.Attributes, storeyHeight float64) (model.Attributes, error) {
	a = Derive2D(a)
	a = Reconcile(a, storeyHeight)
	if !Eligible(a) {
		return a, nil
	}
	return Derive3D(a)
}
