package h3mapper

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// CellsForGeometry returns the sorted distinct cells at res covering g. For
// polygons this is every cell that overlaps the shape at any point, so two
// overlapping polygons always share a cell. Lines and points map to the cells
// of their vertices.
func (m *Mapper) CellsForGeometry(g orb.Geometry, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if g == nil {
		return nil, errors.New("nil geometry")
	}
	set := make(map[h3.Cell]struct{})
	if err := collect(set, g, res); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c.String())
	}
	sort.Strings(out)
	return out, nil
}

func collect(set map[h3.Cell]struct{}, g orb.Geometry, res int) error {
	switch t := g.(type) {
	case orb.Point:
		return addVertex(set, t, res)
	case orb.MultiPoint:
		for _, p := range t {
			if err := addVertex(set, p, res); err != nil {
				return err
			}
		}
	case orb.LineString:
		return addVertices(set, orb.Ring(t), res)
	case orb.MultiLineString:
		for _, ls := range t {
			if err := addVertices(set, orb.Ring(ls), res); err != nil {
				return err
			}
		}
	case orb.Ring:
		return collect(set, orb.Polygon{t}, res)
	case orb.Bound:
		return collect(set, t.ToPolygon(), res)
	case orb.Polygon:
		return polyfill(set, t, res)
	case orb.MultiPolygon:
		if len(t) == 0 {
			return errors.New("empty multipolygon")
		}
		for i, p := range t {
			if err := polyfill(set, p, res); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
	case orb.Collection:
		for _, sub := range t {
			if err := collect(set, sub, res); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported geometry type %T", g)
	}
	return nil
}

func polyfill(set map[h3.Cell]struct{}, p orb.Polygon, res int) error {
	if len(p) == 0 {
		return errors.New("empty polygon")
	}
	outer := toLoop(p[0])
	if len(outer) < 3 {
		return errors.New("outer ring has < 3 distinct vertices")
	}
	var holes []h3.GeoLoop
	for i := 1; i < len(p); i++ {
		h := toLoop(p[i])
		if len(h) < 3 {
			return fmt.Errorf("hole %d has < 3 distinct vertices", i-1)
		}
		holes = append(holes, h)
	}

	cells, err := h3.PolygonToCellsExperimental(h3.GeoPolygon{GeoLoop: outer, Holes: holes}, res, h3.ContainmentOverlapping)
	if err != nil {
		return fmt.Errorf("h3 polyfill: %w", err)
	}
	for _, c := range cells {
		set[c] = struct{}{}
	}
	// vertex cells too, in case edge rounding drops one
	for _, r := range p {
		if err := addVertices(set, r, res); err != nil {
			return err
		}
	}
	return nil
}

func addVertices(set map[h3.Cell]struct{}, pts []orb.Point, res int) error {
	for _, pt := range pts {
		if err := addVertex(set, pt, res); err != nil {
			return err
		}
	}
	return nil
}

func addVertex(set map[h3.Cell]struct{}, pt orb.Point, res int) error {
	c, err := h3.LatLngToCell(h3.LatLng{Lat: pt.Lat(), Lng: pt.Lon()}, res)
	if err != nil {
		return fmt.Errorf("h3 cell for %v: %w", pt, err)
	}
	set[c] = struct{}{}
	return nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// toLoop converts an orb ring (lon,lat) to an h3 loop, dropping the closing
// vertex when the ring is explicitly closed.
func toLoop(r orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(r))
	for _, pt := range r {
		loop = append(loop, h3.LatLng{Lat: pt.Lat(), Lng: pt.Lon()})
	}
	if len(loop) >= 2 {
		last, first := loop[len(loop)-1], loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}
