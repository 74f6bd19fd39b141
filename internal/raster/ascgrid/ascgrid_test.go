package ascgrid

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
)

const sample = `ncols 3
nrows 2
xllcorner 100
yllcorner 200
cellsize 10
NODATA_value -9999
1 2 3
4 -9999 6
`

func TestParse_HeaderAndValues(t *testing.T) {
	g, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, _ := g.Bounds()
	if b.Min != (orb.Point{100, 200}) || b.Max != (orb.Point{130, 220}) {
		t.Fatalf("bounds=%v", b)
	}

	cases := []struct {
		x, y float64
		want float64
		ok   bool
	}{
		{105, 215, 1, true}, // top-left cell
		{125, 215, 3, true},
		{105, 205, 4, true}, // bottom row
		{115, 205, -9999, true},
		{130, 200, 6, true}, // max x edge, min y edge
		{99, 205, 0, false},
		{105, 221, 0, false},
	}
	for _, tc := range cases {
		got, ok := g.SampleAt(tc.x, tc.y)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("SampleAt(%v,%v)=%v,%v want %v,%v", tc.x, tc.y, got, ok, tc.want, tc.ok)
		}
	}
	if nd := g.NoData(0); len(nd) != 1 || nd[0] != -9999 {
		t.Fatalf("nodata=%v", nd)
	}
	if g.NoData(1) != nil {
		t.Fatalf("only band 0 exists")
	}
}

func TestParse_CenterRegistration(t *testing.T) {
	in := strings.Replace(strings.Replace(sample, "xllcorner", "xllcenter", 1), "yllcorner", "yllcenter", 1)
	g, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b, _ := g.Bounds()
	if b.Min != (orb.Point{95, 195}) {
		t.Fatalf("center registration not shifted: %v", b.Min)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"short":       "ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2 3\n",
		"no cellsize": "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\n1\n",
		"bad value":   "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nabc\n",
		"unknown key": "ncols 1\nnrows 1\nfoo 3\n",
	}
	for name, in := range cases {
		if _, err := Parse(strings.NewReader(in)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParse_RejectsOversizedGrid(t *testing.T) {
	cases := map[string]string{
		"too large": "ncols 100000000\nnrows 100000000\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
		"overflow":  "ncols 9223372036854775807\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
	}
	for name, in := range cases {
		_, err := Parse(strings.NewReader(in))
		if err == nil || !strings.Contains(err.Error(), "too large") {
			t.Fatalf("%s: err=%v want grid too large", name, err)
		}
	}
}

func TestDecoder_SidecarAndDefaultCRS(t *testing.T) {
	dir := t.TempDir()
	withCRS := filepath.Join(dir, "a.asc")
	noCRS := filepath.Join(dir, "b.asc")
	for _, p := range []string{withCRS, noCRS} {
		if err := os.WriteFile(p, []byte(sample), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(withCRS+".crs", []byte("epsg:2154\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	d := NewDecoder(context.Background(), nil, "EPSG:27700")
	cov, err := d.Decode(withCRS)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, c := cov.Bounds(); c != "EPSG:2154" {
		t.Fatalf("crs=%q want EPSG:2154", c)
	}
	cov, err = d.Decode(noCRS)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, c := cov.Bounds(); c != "EPSG:27700" {
		t.Fatalf("crs=%q want default EPSG:27700", c)
	}

	if _, err := NewDecoder(context.Background(), nil, "").Decode(noCRS); err == nil {
		t.Fatalf("expected error without sidecar or default")
	}
	if _, err := d.Decode(filepath.Join(dir, "missing.asc")); err == nil {
		t.Fatalf("expected error for missing raster")
	}
}
