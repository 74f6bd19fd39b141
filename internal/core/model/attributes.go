package model

import "strings"

// Attr names one derived numeric attribute of a feature.
type Attr int

const (
	Perimeter Attr = iota
	Footprint
	Corners
	NumSamples
	GroundHeight
	Height
	SharedPerimeter
	SharedPerimeterLength
	PerimeterPerFootprint
	Storeys
	FloorArea
	WallArea
	PartyWallArea
	ExternalWallArea
	ExternalSurfaceArea
	TotalSurfaceArea
	Volume
	ExternalSurfaceProportion
	ExternalSurfacePerVolume
	TotalSurfacePerVolume

	numAttrs
)

var attrNames = [numAttrs]string{
	Perimeter:                 "perimeter",
	Footprint:                 "footprint",
	Corners:                   "corners",
	NumSamples:                "num_samples",
	GroundHeight:              "ground_height",
	Height:                    "height",
	SharedPerimeter:           "shared_perimeter",
	SharedPerimeterLength:     "shared_perimeter_length",
	PerimeterPerFootprint:     "perimeter_per_footprint",
	Storeys:                   "storeys",
	FloorArea:                 "floor_area",
	WallArea:                  "wall_area",
	PartyWallArea:             "party_wall_area",
	ExternalWallArea:          "external_wall_area",
	ExternalSurfaceArea:       "external_surface_area",
	TotalSurfaceArea:          "total_surface_area",
	Volume:                    "volume",
	ExternalSurfaceProportion: "external_surface_proportion",
	ExternalSurfacePerVolume:  "external_surface_per_volume",
	TotalSurfacePerVolume:     "total_surface_per_volume",
}

func (a Attr) String() string {
	if a < 0 || a >= numAttrs {
		return "unknown"
	}
	return attrNames[a]
}

// AllAttrs lists every attribute in declaration order.
func AllAttrs() []Attr {
	out := make([]Attr, numAttrs)
	for i := range out {
		out[i] = Attr(i)
	}
	return out
}

// ParseAttr resolves an attribute by name. Dashes and underscores are
// interchangeable.
func ParseAttr(name string) (Attr, bool) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for i, s := range attrNames {
		if s == n {
			return Attr(i), true
		}
	}
	return 0, false
}

// Attributes maps each Attr to an optional value. It is a value type, so
// assigning or passing it copies it.
type Attributes struct {
	vals [numAttrs]float64
	set  uint32
}

func (a Attributes) Get(k Attr) (float64, bool) {
	if !a.Has(k) {
		return 0, false
	}
	return a.vals[k], true
}

func (a Attributes) Has(k Attr) bool {
	if k < 0 || k >= numAttrs {
		return false
	}
	return a.set&(1<<uint(k)) != 0
}

func (a Attributes) With(k Attr, v float64) Attributes {
	if k < 0 || k >= numAttrs {
		return a
	}
	a.vals[k] = v
	a.set |= 1 << uint(k)
	return a
}

// WithDefault sets k only when it is absent.
func (a Attributes) WithDefault(k Attr, v float64) Attributes {
	if a.Has(k) {
		return a
	}
	return a.With(k, v)
}

func (a Attributes) Without(k Attr) Attributes {
	if k < 0 || k >= numAttrs {
		return a
	}
	a.vals[k] = 0
	a.set &^= 1 << uint(k)
	return a
}

// Merge returns a with every value present in b laid over it.
func (a Attributes) Merge(b Attributes) Attributes {
	for k := Attr(0); k < numAttrs; k++ {
		if v, ok := b.Get(k); ok {
			a = a.With(k, v)
		}
	}
	return a
}

// MergeMissing returns a with the values of b that a does not hold yet.
func (a Attributes) MergeMissing(b Attributes) Attributes {
	for k := Attr(0); k < numAttrs; k++ {
		if v, ok := b.Get(k); ok {
			a = a.WithDefault(k, v)
		}
	}
	return a
}

func (a Attributes) Len() int {
	n := 0
	for k := Attr(0); k < numAttrs; k++ {
		if a.Has(k) {
			n++
		}
	}
	return n
}

// Map renders the present values keyed by attribute name.
func (a Attributes) Map() map[string]float64 {
	out := make(map[string]float64, a.Len())
	for k := Attr(0); k < numAttrs; k++ {
		if v, ok := a.Get(k); ok {
			out[k.String()] = v
		}
	}
	return out
}
