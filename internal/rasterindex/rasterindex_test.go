package rasterindex

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/building-dims/internal/raster"
)

type factMap map[string]raster.Facts

func (m factMap) Facts(id string) (raster.Facts, error) {
	f, ok := m[id]
	if !ok {
		return raster.Facts{}, errors.New("unreadable")
	}
	return f, nil
}

func bound(x0, y0, x1, y1 float64) orb.Bound {
	return orb.Bound{Min: orb.Point{x0, y0}, Max: orb.Point{x1, y1}}
}

func tiles() (factMap, []string) {
	m := factMap{}
	var ids []string
	for i := range 120 {
		id := fmt.Sprintf("tile-%03d", i)
		crsID := "EPSG:27700"
		if i%3 == 0 {
			crsID = "EPSG:2154"
		}
		x := float64(i%12) * 100
		y := float64(i/12) * 100
		m[id] = raster.Facts{ID: id, CRS: crsID, Bounds: bound(x, y, x+100, y+100)}
		ids = append(ids, id)
	}
	return m, ids
}

func TestBuild_EveryRasterFoundByCoveringQuery(t *testing.T) {
	m, ids := tiles()
	// reverse order must not matter
	rev := slices.Clone(ids)
	slices.Reverse(rev)

	for _, order := range [][]string{ids, rev} {
		set, err := Build(m, order)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if len(set) != 2 {
			t.Fatalf("groups=%v want 2", set.CRSs())
		}
		for _, id := range ids {
			f := m[id]
			idx := set[f.CRS]
			if !slices.Contains(idx.Search(f.Bounds), id) {
				t.Fatalf("raster %s not returned by query over its own bounds", id)
			}
		}
		if set["EPSG:2154"].Len()+set["EPSG:27700"].Len() != len(ids) {
			t.Fatalf("entries lost during grouping")
		}
	}
}

func TestSearch_TouchingRectanglesAreReported(t *testing.T) {
	m := factMap{
		"a": {ID: "a", CRS: "X", Bounds: bound(0, 0, 10, 10)},
		"b": {ID: "b", CRS: "X", Bounds: bound(10, 0, 20, 10)},
		"c": {ID: "c", CRS: "X", Bounds: bound(50, 50, 60, 60)},
	}
	set, err := Build(m, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := set["X"].Search(bound(10, 2, 10, 3))
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("Search=%v want [a b]", got)
	}
	all, ok := set["X"].Bounds()
	if !ok || all != bound(0, 0, 60, 60) {
		t.Fatalf("overall bounds=%v ok=%v", all, ok)
	}
}

func TestBuild_DecodeFailureIsFatal(t *testing.T) {
	m := factMap{"a": {ID: "a", CRS: "X", Bounds: bound(0, 0, 1, 1)}}
	_, err := Build(m, []string{"a", "broken.asc"})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err=%v want ErrDecode", err)
	}
}

func TestIndex_InsertAfterBuild(t *testing.T) {
	idx := &Index{crs: "X"}
	if _, ok := idx.Bounds(); ok {
		t.Fatalf("empty index must have no bounds")
	}
	if idx.Search(bound(0, 0, 1, 1)) != nil {
		t.Fatalf("empty index must return nothing")
	}
	idx.Insert("a", bound(0, 0, 1, 1))
	idx.Insert("b", bound(5, 5, 6, 6))
	if got := idx.Search(bound(4, 4, 7, 7)); !slices.Equal(got, []string{"b"}) {
		t.Fatalf("Search=%v", got)
	}
	if b, _ := idx.Bounds(); b != bound(0, 0, 6, 6) {
		t.Fatalf("bounds=%v", b)
	}
}

type shift struct{ dx float64 }

func (s shift) TransformBound(b orb.Bound, src, dst string) (orb.Bound, error) {
	if src == dst {
		return b, nil
	}
	if dst == "BROKEN" {
		return orb.Bound{}, errors.New("no transform")
	}
	return bound(b.Min[0]+s.dx, b.Min[1], b.Max[0]+s.dx, b.Max[1]), nil
}

func TestRelevant(t *testing.T) {
	idx := newIndex("R", []entry{{id: "a", bounds: bound(1000, 0, 1100, 100)}})
	env := bound(0, 0, 50, 50)

	ok, err := Relevant(idx, env, "R", shift{})
	if err != nil || ok {
		t.Fatalf("same-crs disjoint: ok=%v err=%v", ok, err)
	}
	ok, err = Relevant(idx, env, "S", shift{dx: 1000})
	if err != nil || !ok {
		t.Fatalf("reprojected envelope should intersect: ok=%v err=%v", ok, err)
	}
	ok, err = Relevant(&Index{crs: "R"}, env, "R", shift{})
	if err != nil || ok {
		t.Fatalf("empty index must not be relevant: ok=%v err=%v", ok, err)
	}
	broken := newIndex("BROKEN", []entry{{id: "a", bounds: bound(0, 0, 1, 1)}})
	if _, err := Relevant(broken, env, "S", shift{}); err == nil {
		t.Fatalf("expected reprojection error")
	}
}
