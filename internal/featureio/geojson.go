// Package featureio reads footprint feature sets from GeoJSON and writes the
// enriched result as GeoJSON or as a SQLite table.
package featureio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/building-dims/internal/core/model"
	"github.com/mohammed-shakir/building-dims/internal/crs"
)

var ErrUnsupportedGeometry = errors.New("unsupported geometry")

// provided lists the properties read as known attributes on load.
var provided = []model.Attr{model.Storeys, model.Height, model.FloorArea}

type crsMember struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type collection struct {
	Type     string             `json:"type"`
	CRS      *crsMember         `json:"crs,omitempty"`
	Features []*geojson.Feature `json:"features"`
}

// Decode parses a GeoJSON FeatureCollection. The CRS comes from the legacy
// "crs" member when present, else defaultCRS. Feature order is kept.
func Decode(data []byte, defaultCRS string) (model.FeatureSet, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return model.FeatureSet{}, fmt.Errorf("decode feature collection: %w", err)
	}
	var head struct {
		CRS *crsMember `json:"crs"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return model.FeatureSet{}, fmt.Errorf("decode crs member: %w", err)
	}

	fs := model.FeatureSet{CRS: crs.Normalize(defaultCRS)}
	if head.CRS != nil && head.CRS.Properties.Name != "" {
		fs.CRS = crs.Normalize(head.CRS.Properties.Name)
	}

	fs.Features = make([]model.Feature, 0, len(fc.Features))
	for i, gf := range fc.Features {
		f, err := toFeature(i, gf)
		if err != nil {
			return model.FeatureSet{}, err
		}
		fs.Features = append(fs.Features, f)
	}
	return fs, nil
}

func Read(r io.Reader, defaultCRS string) (model.FeatureSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.FeatureSet{}, fmt.Errorf("read features: %w", err)
	}
	return Decode(data, defaultCRS)
}

func toFeature(i int, gf *geojson.Feature) (model.Feature, error) {
	f := model.Feature{Index: i, Geometry: gf.Geometry}
	if gf.ID != nil {
		f.ID = fmt.Sprint(gf.ID)
	}
	switch gf.Geometry.(type) {
	case orb.Point:
		f.Type = model.Point
	case orb.Polygon, orb.MultiPolygon:
		f.Type = model.Polygon
	default:
		return model.Feature{}, fmt.Errorf("feature %d: %w: %T", i, ErrUnsupportedGeometry, gf.Geometry)
	}

	props := maps.Clone(map[string]any(gf.Properties))
	for _, k := range provided {
		raw, ok := props[k.String()]
		if !ok {
			continue
		}
		if v, ok := raw.(float64); ok {
			f.Attrs = f.Attrs.With(k, v)
			delete(props, k.String())
		}
	}
	f.Props = props
	return f, nil
}

// Encode renders fs as a FeatureCollection. Attributes are written as
// properties next to the pass-through properties and take precedence.
func Encode(fs model.FeatureSet) ([]byte, error) {
	out := collection{Type: "FeatureCollection", Features: make([]*geojson.Feature, 0, len(fs.Features))}
	if fs.CRS != "" {
		m := &crsMember{Type: "name"}
		m.Properties.Name = crs.URN(fs.CRS)
		out.CRS = m
	}
	for _, f := range fs.Features {
		gf := geojson.NewFeature(f.Geometry)
		if f.ID != "" {
			gf.ID = f.ID
		}
		maps.Copy(gf.Properties, f.Props)
		for k, v := range f.Attrs.Map() {
			gf.Properties[k] = v
		}
		out.Features = append(out.Features, gf)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode feature collection: %w", err)
	}
	return data, nil
}

func Write(w io.Writer, fs model.FeatureSet) error {
	data, err := Encode(fs)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write features: %w", err)
	}
	return nil
}
