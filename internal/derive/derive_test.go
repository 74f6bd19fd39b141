package derive

import (
	"errors"
	"math"
	"testing"

	"github.com/mohammed-shakir/building-dims/internal/core/model"
)

func attrs(kv map[model.Attr]float64) model.Attributes {
	var a model.Attributes
	for k, v := range kv {
		a = a.With(k, v)
	}
	return a
}

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestDerive_WorkedExample(t *testing.T) {
	in := attrs(map[model.Attr]float64{
		model.Footprint:       10,
		model.Perimeter:       14,
		model.Height:          3,
		model.SharedPerimeter: 0.25,
	})
	out, err := Derive(in, DefaultStoreyHeight)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}

	cases := []struct {
		attr model.Attr
		want float64
		tol  float64
	}{
		{model.WallArea, 42, 1e-9},
		{model.PartyWallArea, 10.5, 1e-9},
		{model.ExternalWallArea, 31.5, 1e-9},
		{model.ExternalSurfaceArea, 51.5, 1e-9},
		{model.TotalSurfaceArea, 62, 1e-9},
		{model.Volume, 30, 1e-9},
		{model.ExternalSurfaceProportion, 0.831, 1e-3},
		{model.ExternalSurfacePerVolume, 1.717, 1e-3},
		{model.TotalSurfacePerVolume, 2.067, 1e-3},
		{model.SharedPerimeterLength, 3.5, 1e-9},
		{model.PerimeterPerFootprint, 1.4, 1e-9},
		{model.Storeys, 1, 0},
		{model.FloorArea, 10, 0},
	}
	for _, tc := range cases {
		got, ok := out.Get(tc.attr)
		if !ok {
			t.Fatalf("%s missing", tc.attr)
		}
		if !near(got, tc.want, tc.tol) {
			t.Fatalf("%s=%v want %v", tc.attr, got, tc.want)
		}
	}
}

func TestDerive_Idempotent(t *testing.T) {
	in := attrs(map[model.Attr]float64{
		model.Footprint:       10,
		model.Perimeter:       14,
		model.Height:          7,
		model.SharedPerimeter: 0.5,
	})
	first, err := Derive(in, DefaultStoreyHeight)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	// a different storey height must not change anything already derived
	second, err := Derive(first, 2)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != second {
		t.Fatalf("derivation not idempotent:\n first=%v\nsecond=%v", first.Map(), second.Map())
	}
}

func TestReconcile(t *testing.T) {
	cases := []struct {
		name   string
		in     map[model.Attr]float64
		height float64
		want   map[model.Attr]float64
	}{
		{
			name: "storeys from height",
			in:   map[model.Attr]float64{model.Height: 10, model.Footprint: 20},
			want: map[model.Attr]float64{model.Storeys: 3, model.Height: 10, model.FloorArea: 60},
		},
		{
			name: "height from storeys",
			in:   map[model.Attr]float64{model.Storeys: 4, model.Footprint: 5},
			want: map[model.Attr]float64{model.Storeys: 4, model.Height: 12, model.FloorArea: 20},
		},
		{
			name: "nothing known",
			in:   map[model.Attr]float64{},
			want: map[model.Attr]float64{model.Storeys: 1, model.Height: 3},
		},
		{
			name: "low building clamps to one storey",
			in:   map[model.Attr]float64{model.Height: 2},
			want: map[model.Attr]float64{model.Storeys: 1, model.Height: 2},
		},
		{
			name: "provided floor area kept",
			in:   map[model.Attr]float64{model.Storeys: 2, model.Footprint: 5, model.FloorArea: 7},
			want: map[model.Attr]float64{model.FloorArea: 7},
		},
		{
			name:   "custom storey height",
			in:     map[model.Attr]float64{model.Storeys: 2},
			height: 2.5,
			want:   map[model.Attr]float64{model.Height: 5},
		},
		{
			name:   "non-positive storey height falls back",
			in:     map[model.Attr]float64{model.Storeys: 2},
			height: -1,
			want:   map[model.Attr]float64{model.Height: 6},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sh := tc.height
			if sh == 0 {
				sh = DefaultStoreyHeight
			}
			out := Reconcile(attrs(tc.in), sh)
			for k, want := range tc.want {
				if got, ok := out.Get(k); !ok || got != want {
					t.Fatalf("%s=%v (present=%v) want %v", k, got, ok, want)
				}
			}
		})
	}
}

func TestReconcile_NoFootprintNoFloorArea(t *testing.T) {
	out := Reconcile(attrs(map[model.Attr]float64{model.Height: 6}), DefaultStoreyHeight)
	if out.Has(model.FloorArea) {
		t.Fatalf("floor_area should be absent without a footprint")
	}
}

func TestDerive2D(t *testing.T) {
	out := Derive2D(attrs(map[model.Attr]float64{model.Perimeter: 0, model.Footprint: 0, model.SharedPerimeter: 0}))
	if v, ok := out.Get(model.PerimeterPerFootprint); !ok || v != 0 {
		t.Fatalf("zero perimeter: perimeter_per_footprint=%v present=%v want 0", v, ok)
	}

	out = Derive2D(attrs(map[model.Attr]float64{model.Perimeter: 4, model.Footprint: 0, model.SharedPerimeter: 0}))
	if out.Has(model.PerimeterPerFootprint) {
		t.Fatalf("zero footprint: perimeter_per_footprint should be absent")
	}

	out = Derive2D(attrs(map[model.Attr]float64{model.Perimeter: 4, model.Footprint: 1}))
	if out.Has(model.SharedPerimeterLength) || out.Has(model.PerimeterPerFootprint) {
		t.Fatalf("missing fraction: nothing should be derived, got %v", out.Map())
	}
}

func TestDerive_Skips3DWithoutGuard(t *testing.T) {
	cases := map[string]map[model.Attr]float64{
		"no fraction":    {model.Perimeter: 4, model.Footprint: 1, model.Height: 3},
		"zero height":    {model.Perimeter: 4, model.Footprint: 1, model.Height: 0, model.SharedPerimeter: 0},
		"zero footprint": {model.Perimeter: 4, model.Footprint: 0, model.Height: 3, model.SharedPerimeter: 0},
	}
	for name, in := range cases {
		out, err := Derive(attrs(in), DefaultStoreyHeight)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
		if out.Has(model.Volume) || out.Has(model.WallArea) {
			t.Fatalf("%s: 3D fields should be absent, got %v", name, out.Map())
		}
	}
}

func TestDerive3D_DivisionByZero(t *testing.T) {
	in := attrs(map[model.Attr]float64{model.Perimeter: 4, model.Footprint: 0, model.Height: 3, model.SharedPerimeter: 0})
	_, err := Derive3D(in)
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("err=%v want ErrDivisionByZero", err)
	}
}
