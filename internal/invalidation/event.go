// Package invalidation describes zoning change events and how they evict
// cached intersection results.
package invalidation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/zoning-relay/internal/core/geo"
)

const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event announces that a zoning region changed. Either BBox or Geometry
// locates the change.
type Event struct {
	Version  int             `json:"version"`
	Op       string          `json:"op"`
	Layer    string          `json:"layer"`
	TS       time.Time       `json:"ts"`
	RegionID string          `json:"region_id,omitempty"`
	Revision uint64          `json:"revision,omitempty"`
	Source   string          `json:"source,omitempty"`
	BBox     *BBox           `json:"bbox,omitempty"`
	Geometry json.RawMessage `json:"geometry,omitempty"`
}

type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return errors.New("version must be 1")
	}
	switch e.Op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return errors.New("op must be insert|update|delete")
	}
	if strings.TrimSpace(e.Layer) == "" {
		return errors.New("layer is required")
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	if e.Revision > 0 && strings.TrimSpace(e.RegionID) == "" {
		return errors.New("revision requires region_id")
	}
	hasBBox := e.BBox != nil
	hasGeom := len(e.Geometry) > 0 && string(e.Geometry) != "null"
	if hasBBox == hasGeom {
		return errors.New("exactly one of bbox or geometry is required")
	}
	if hasBBox {
		bb := *e.BBox
		if bb.SRID != "EPSG:4326" {
			return errors.New("bbox.srid must be EPSG:4326")
		}
		if !(bb.X1 >= -180 && bb.X1 <= 180 && bb.X2 >= -180 && bb.X2 <= 180) {
			return errors.New("bbox longitude out of range")
		}
		if !(bb.Y1 >= -90 && bb.Y1 <= 90 && bb.Y2 >= -90 && bb.Y2 <= 90) {
			return errors.New("bbox latitude out of range")
		}
		if !(bb.X2 > bb.X1 && bb.Y2 > bb.Y1) {
			return errors.New("bbox must satisfy x2>x1 and y2>y1")
		}
		return nil
	}
	if _, err := geo.ParsePolygon(e.Geometry); err != nil {
		return fmt.Errorf("geometry: %w", err)
	}
	return nil
}

// Area returns the changed area as a geometry. Call Validate first.
func (e Event) Area() (orb.Geometry, error) {
	if e.BBox != nil {
		return orb.Bound{
			Min: orb.Point{e.BBox.X1, e.BBox.Y1},
			Max: orb.Point{e.BBox.X2, e.BBox.Y2},
		}, nil
	}
	p, err := geo.ParsePolygon(e.Geometry)
	if err != nil {
		return nil, fmt.Errorf("geometry: %w", err)
	}
	return p.Geometry, nil
}

// DedupeKey identifies the region for revision ordering; empty when the event
// carries no revision.
func (e Event) DedupeKey() string {
	if e.Revision == 0 || e.RegionID == "" {
		return ""
	}
	return e.Layer + "/" + e.RegionID
}
