// Package model defines core domain types shared across the service.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
)

// UserPolygon is the polygon drawn by a user, already unwrapped from any
// Feature envelope. GeoJSON holds the canonical encoding of Geometry.
type UserPolygon struct {
	Geometry orb.Geometry
	GeoJSON  []byte
}

// IsZero reports whether no polygon is held.
func (p UserPolygon) IsZero() bool {
	return p.Geometry == nil
}

// IntersectionResult is one zoning region overlapping the user polygon.
type IntersectionResult struct {
	Geometry   json.RawMessage `json:"intersected_geom"`
	AreaSqm    float64         `json:"intersected_area_sqm"`
	ZoningCode string          `json:"zonasi_kode"`
	District   string          `json:"zonasi_kec"`
	Attributes Attributes      `json:"tabelpola_data"`
}

// DecodeResults decodes a store result array. A JSON null decodes to an empty list.
func DecodeResults(b []byte) ([]IntersectionResult, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return []IntersectionResult{}, nil
	}
	if b[0] != '[' {
		return nil, fmt.Errorf("decode results: expected JSON array, got %q", preview(b))
	}
	var out []IntersectionResult
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if out == nil {
		out = []IntersectionResult{}
	}
	return out, nil
}

func preview(b []byte) string {
	const n = 32
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
