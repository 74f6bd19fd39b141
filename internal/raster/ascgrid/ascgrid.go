// Package ascgrid decodes ESRI ASCII grid elevation rasters.
//
// The grid CRS is read from a "<id>.crs" sidecar holding a single CRS id
// (for example "EPSG:27700"); without a sidecar the decoder default is used.
package ascgrid

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/building-dims/internal/crs"
	"github.com/mohammed-shakir/building-dims/internal/raster"
	"github.com/mohammed-shakir/building-dims/internal/raster/source"
)

// maxCells bounds the value buffer a header may ask for.
const maxCells = 1 << 27

type Grid struct {
	cols, rows int
	xll, yll   float64
	cell       float64
	nodata     []float64
	crs        string
	vals       []float64 // row-major, top row first
}

var _ raster.Coverage = (*Grid)(nil)

func (g *Grid) Bounds() (orb.Bound, string) {
	return orb.Bound{
		Min: orb.Point{g.xll, g.yll},
		Max: orb.Point{g.xll + float64(g.cols)*g.cell, g.yll + float64(g.rows)*g.cell},
	}, g.crs
}

// SampleAt returns the value of the cell containing (x, y). The maximum
// edges belong to the last row and column.
func (g *Grid) SampleAt(x, y float64) (float64, bool) {
	b, _ := g.Bounds()
	if x < b.Min[0] || x > b.Max[0] || y < b.Min[1] || y > b.Max[1] || math.IsNaN(x) || math.IsNaN(y) {
		return 0, false
	}
	col := int((x - g.xll) / g.cell)
	row := int((b.Max[1] - y) / g.cell)
	col = min(col, g.cols-1)
	row = min(row, g.rows-1)
	return g.vals[row*g.cols+col], true
}

func (g *Grid) NoData(band int) []float64 {
	if band != 0 {
		return nil
	}
	return g.nodata
}

type Decoder struct {
	src        source.Opener
	defaultCRS string
	ctx        context.Context
}

func NewDecoder(ctx context.Context, src source.Opener, defaultCRS string) *Decoder {
	if src == nil {
		src = source.File{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Decoder{src: src, defaultCRS: defaultCRS, ctx: ctx}
}

func (d *Decoder) Decode(id string) (raster.Coverage, error) {
	rc, err := d.src.Open(d.ctx, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	g, err := Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("ascgrid %s: %w", id, err)
	}
	g.crs, err = d.sidecarCRS(id)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (d *Decoder) sidecarCRS(id string) (string, error) {
	rc, err := d.src.Open(d.ctx, id+".crs")
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			if d.defaultCRS == "" {
				return "", fmt.Errorf("ascgrid %s: no crs sidecar and no default crs", id)
			}
			return crs.Normalize(d.defaultCRS), nil
		}
		return "", fmt.Errorf("ascgrid %s: read crs sidecar: %w", id, err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return "", fmt.Errorf("ascgrid %s: read crs sidecar: %w", id, err)
	}
	id = crs.Normalize(string(b))
	if id == "" {
		return "", errors.New("ascgrid: empty crs sidecar")
	}
	return id, nil
}

// Parse reads an ESRI ASCII grid. The returned grid has no CRS.
func Parse(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	g := &Grid{}
	var (
		center  bool
		haveX   bool
		haveY   bool
		pending string
	)

	// header: keyword/value pairs until the first numeric token
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			pending = sc.Text()
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("header %q has no value", key)
		}
		val := sc.Text()
		switch key {
		case "ncols":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("ncols: %w", err)
			}
			g.cols = n
		case "nrows":
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("nrows: %w", err)
			}
			g.rows = n
		case "xllcorner", "xllcenter":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			g.xll, haveX = f, true
			center = center || key == "xllcenter"
		case "yllcorner", "yllcenter":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			g.yll, haveY = f, true
			center = center || key == "yllcenter"
		case "cellsize":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("cellsize: %w", err)
			}
			g.cell = f
		case "nodata_value":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("nodata_value: %w", err)
			}
			g.nodata = append(g.nodata, f)
		default:
			return nil, fmt.Errorf("unknown header %q", key)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if g.cols <= 0 || g.rows <= 0 || g.cell <= 0 || !haveX || !haveY {
		return nil, fmt.Errorf("incomplete header (ncols=%d nrows=%d cellsize=%v)", g.cols, g.rows, g.cell)
	}
	if center {
		g.xll -= g.cell / 2
		g.yll -= g.cell / 2
	}

	if g.cols > maxCells/g.rows {
		return nil, fmt.Errorf("grid too large (ncols=%d nrows=%d, limit %d cells)", g.cols, g.rows, maxCells)
	}
	n := g.cols * g.rows
	g.vals = make([]float64, 0, n)
	push := func(tok string) error {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("value %d: %w", len(g.vals), err)
		}
		g.vals = append(g.vals, f)
		return nil
	}
	if pending != "" {
		if err := push(pending); err != nil {
			return nil, err
		}
	}
	for len(g.vals) < n && sc.Scan() {
		if err := push(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read values: %w", err)
	}
	if len(g.vals) != n {
		return nil, fmt.Errorf("got %d values, want %d", len(g.vals), n)
	}
	return g, nil
}
