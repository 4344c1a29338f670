// Package geo parses user polygons and renders them into the forms the spatial
// store accepts. It never computes intersections.
package geo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/zoning-relay/internal/core/model"
)

const (
	EncodingGeoJSON = "geojson"
	EncodingWKT     = "wkt"
)

var ErrNotPolygon = errors.New(`GeoJSON "type" must be Polygon or MultiPolygon`)

// ParsePolygon decodes a GeoJSON Polygon or MultiPolygon, or a Feature wrapping
// one. Ring closure, winding and self-intersection are not checked.
func ParsePolygon(raw []byte) (model.UserPolygon, error) {
	raw = bytes.TrimSpace(raw)
	var hdr struct {
		Type     string          `json:"type"`
		Geometry json.RawMessage `json:"geometry"`
	}
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return model.UserPolygon{}, fmt.Errorf("parse geojson: %w", err)
	}

	switch strings.TrimSpace(hdr.Type) {
	case "Feature":
		if len(hdr.Geometry) == 0 || bytes.Equal(bytes.TrimSpace(hdr.Geometry), []byte("null")) {
			return model.UserPolygon{}, errors.New("feature has no geometry")
		}
		return ParsePolygon(hdr.Geometry)
	case "Polygon", "MultiPolygon":
	case "":
		return model.UserPolygon{}, errors.New(`missing GeoJSON "type"`)
	default:
		return model.UserPolygon{}, fmt.Errorf("%w (got %q)", ErrNotPolygon, hdr.Type)
	}

	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return model.UserPolygon{}, fmt.Errorf("parse %s coordinates: %w", hdr.Type, err)
	}
	geom := g.Geometry()
	switch t := geom.(type) {
	case orb.Polygon:
		if len(t) == 0 {
			return model.UserPolygon{}, errors.New("empty polygon")
		}
	case orb.MultiPolygon:
		if len(t) == 0 {
			return model.UserPolygon{}, errors.New("empty multipolygon")
		}
		for i, p := range t {
			if len(p) == 0 {
				return model.UserPolygon{}, fmt.Errorf("multipolygon member %d is empty", i)
			}
		}
	default:
		return model.UserPolygon{}, ErrNotPolygon
	}

	canonical, err := Canonical(geom)
	if err != nil {
		return model.UserPolygon{}, err
	}
	return model.UserPolygon{Geometry: geom, GeoJSON: canonical}, nil
}

// ParseGeometry decodes any GeoJSON geometry, used for rendering store output.
func ParseGeometry(raw []byte) (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}
	return g.Geometry(), nil
}

// Canonical encodes geom as compact GeoJSON with a stable member order.
func Canonical(geom orb.Geometry) ([]byte, error) {
	b, err := geojson.NewGeometry(geom).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	return b, nil
}

// Expression renders the SQL geometry constructor the store procedure expects.
func Expression(p model.UserPolygon, encoding string) (string, error) {
	if p.IsZero() {
		return "", errors.New("no polygon")
	}
	switch encoding {
	case "", EncodingGeoJSON:
		return "ST_GeomFromGeoJSON('" + quote(string(p.GeoJSON)) + "')", nil
	case EncodingWKT:
		return "ST_SetSRID(ST_GeomFromText('" + quote(WKT(p.Geometry)) + "'), 4326)", nil
	default:
		return "", fmt.Errorf("unsupported geometry encoding %q", encoding)
	}
}

// WKT renders geom as Well-Known Text.
func WKT(geom orb.Geometry) string {
	return wkt.MarshalString(geom)
}

// AreaSqm is the geodesic area of geom in square meters.
func AreaSqm(geom orb.Geometry) float64 {
	if geom == nil {
		return 0
	}
	return orbgeo.Area(geom)
}

// quote doubles single quotes for embedding in a SQL string literal.
func quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
