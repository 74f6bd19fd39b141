// Package crs resolves coordinate reference system identifiers and
// reprojects envelopes and footprints between them.
package crs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ctessum/geom/proj"
	"github.com/paulmach/orb"
)

var ErrUnknownCRS = errors.New("unknown crs")

var builtin = map[string]string{
	"EPSG:4326":  "+proj=longlat +datum=WGS84 +no_defs",
	"EPSG:4258":  "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
	"EPSG:3857":  "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	"EPSG:27700": "+proj=tmerc +lat_0=49 +lon_0=-2 +k=0.9996012717 +x_0=400000 +y_0=-100000 +ellps=airy +towgs84=446.448,-125.157,542.06,0.15,0.247,0.842,-20.489 +units=m +no_defs",
	"EPSG:2154":  "+proj=lcc +lat_1=49 +lat_2=44 +lat_0=46.5 +lon_0=3 +x_0=700000 +y_0=6600000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
	"EPSG:3035":  "+proj=laea +lat_0=52 +lon_0=10 +x_0=4321000 +y_0=3210000 +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +units=m +no_defs",
}

// Normalize maps the common spellings of an EPSG code ("epsg:27700",
// "urn:ogc:def:crs:EPSG::27700", "27700") onto "EPSG:27700". CRS84 is
// folded into EPSG:4326. Other ids are returned trimmed.
func Normalize(id string) string {
	s := strings.TrimSpace(id)
	u := strings.ToUpper(s)
	switch {
	case u == "":
		return ""
	case strings.HasSuffix(u, "CRS84"):
		return "EPSG:4326"
	case strings.HasPrefix(u, "URN:OGC:DEF:CRS:EPSG:"):
		code := u[strings.LastIndex(u, ":")+1:]
		return "EPSG:" + code
	case strings.HasPrefix(u, "EPSG:"):
		return "EPSG:" + strings.TrimSpace(u[len("EPSG:"):])
	}
	if _, err := strconv.Atoi(u); err == nil {
		return "EPSG:" + u
	}
	return s
}

// URN renders an EPSG id in the OGC URN form used by GeoJSON "crs"
// members. Other ids are returned normalised.
func URN(id string) string {
	n := Normalize(id)
	if code, ok := strings.CutPrefix(n, "EPSG:"); ok {
		return "urn:ogc:def:crs:EPSG::" + code
	}
	return n
}

// Registry resolves CRS ids to proj4 definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]string
}

func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]string, len(builtin)+60)}
	for k, v := range builtin {
		r.defs[k] = v
	}
	// WGS84 / UTM north and south zones
	for z := 1; z <= 60; z++ {
		r.defs[fmt.Sprintf("EPSG:%d", 32600+z)] = fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", z)
		r.defs[fmt.Sprintf("EPSG:%d", 32700+z)] = fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", z)
	}
	return r
}

func (r *Registry) Register(id, def string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[Normalize(id)] = def
}

func (r *Registry) Lookup(id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[Normalize(id)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCRS, id)
	}
	return def, nil
}

type pair struct{ src, dst string }

// Projector reprojects coordinates between registry CRSs. Parsed
// transforms are kept per (src, dst) pair.
type Projector struct {
	reg *Registry

	mu    sync.Mutex
	trans map[pair]proj.Transformer
}

func NewProjector(reg *Registry) *Projector {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Projector{reg: reg, trans: make(map[pair]proj.Transformer)}
}

// Same reports whether two ids name the same CRS after normalisation.
func Same(a, b string) bool { return Normalize(a) == Normalize(b) }

func (p *Projector) transformer(src, dst string) (proj.Transformer, error) {
	k := pair{Normalize(src), Normalize(dst)}

	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.trans[k]; ok {
		return t, nil
	}

	srcDef, err := p.reg.Lookup(k.src)
	if err != nil {
		return nil, err
	}
	dstDef, err := p.reg.Lookup(k.dst)
	if err != nil {
		return nil, err
	}
	srcSR, err := proj.Parse(srcDef)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", k.src, err)
	}
	dstSR, err := proj.Parse(dstDef)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", k.dst, err)
	}
	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, fmt.Errorf("transform %s -> %s: %w", k.src, k.dst, err)
	}
	p.trans[k] = t
	return t, nil
}

func (p *Projector) TransformPoint(pt orb.Point, src, dst string) (orb.Point, error) {
	if Same(src, dst) {
		return pt, nil
	}
	t, err := p.transformer(src, dst)
	if err != nil {
		return orb.Point{}, err
	}
	x, y, err := t(pt[0], pt[1])
	if err != nil {
		return orb.Point{}, fmt.Errorf("transform point: %w", err)
	}
	return orb.Point{x, y}, nil
}

// TransformBound reprojects an envelope through its corners and edge
// midpoints and returns the envelope of the result.
func (p *Projector) TransformBound(b orb.Bound, src, dst string) (orb.Bound, error) {
	if Same(src, dst) {
		return b, nil
	}
	cx, cy := (b.Min[0]+b.Max[0])/2, (b.Min[1]+b.Max[1])/2
	pts := []orb.Point{
		b.Min, {b.Max[0], b.Min[1]}, b.Max, {b.Min[0], b.Max[1]},
		{cx, b.Min[1]}, {b.Max[0], cy}, {cx, b.Max[1]}, {b.Min[0], cy},
	}
	var out orb.Bound
	for i, pt := range pts {
		q, err := p.TransformPoint(pt, src, dst)
		if err != nil {
			return orb.Bound{}, err
		}
		if i == 0 {
			out = orb.Bound{Min: q, Max: q}
			continue
		}
		out = out.Extend(q)
	}
	return out, nil
}

// TransformGeometry reprojects point and polygonal geometries.
func (p *Projector) TransformGeometry(g orb.Geometry, src, dst string) (orb.Geometry, error) {
	if Same(src, dst) {
		return g, nil
	}
	t, err := p.transformer(src, dst)
	if err != nil {
		return nil, err
	}
	conv := func(r orb.Ring) (orb.Ring, error) {
		out := make(orb.Ring, len(r))
		for i, pt := range r {
			x, y, err := t(pt[0], pt[1])
			if err != nil {
				return nil, fmt.Errorf("transform vertex %d: %w", i, err)
			}
			out[i] = orb.Point{x, y}
		}
		return out, nil
	}
	convPoly := func(poly orb.Polygon) (orb.Polygon, error) {
		out := make(orb.Polygon, len(poly))
		for i, r := range poly {
			cr, err := conv(r)
			if err != nil {
				return nil, err
			}
			out[i] = cr
		}
		return out, nil
	}

	switch v := g.(type) {
	case orb.Point:
		return p.TransformPoint(v, src, dst)
	case orb.Polygon:
		return convPoly(v)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(v))
		for i, poly := range v {
			cp, err := convPoly(poly)
			if err != nil {
				return nil, err
			}
			out[i] = cp
		}
		return out, nil
	default:
		return nil, fmt.Errorf("transform: unsupported geometry %s", g.GeoJSONType())
	}
}
