package h3mapper

import (
	"reflect"
	"sort"
	"testing"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

func square(x0, y0, d float64) orb.Polygon {
	return orb.Polygon{{
		{x0, y0}, {x0 + d, y0}, {x0 + d, y0 + d}, {x0, y0 + d}, {x0, y0},
	}}
}

func TestPolygon_SortedUniqueDeterministic(t *testing.T) {
	m := New()
	p := square(112.90, -7.20, 0.05)

	cells, err := m.CellsForGeometry(p, 8)
	if err != nil {
		t.Fatalf("CellsForGeometry: %v", err)
	}
	if len(cells) == 0 {
		t.Fatalf("expected non-empty cells")
	}
	if !sort.StringsAreSorted(cells) || hasDups(cells) {
		t.Fatalf("cells must be sorted + unique")
	}
	again, _ := m.CellsForGeometry(p, 8)
	if !reflect.DeepEqual(cells, again) {
		t.Fatalf("expected identical output for identical input")
	}
}

func TestSmallPolygon_StillMapsToItsVertexCells(t *testing.T) {
	m := New()
	// far smaller than a res-6 cell; polyfill alone would likely be empty
	p := square(112.9001, -7.2001, 0.0001)

	cells, err := m.CellsForGeometry(p, 6)
	if err != nil {
		t.Fatalf("CellsForGeometry: %v", err)
	}
	want, err := h3.LatLngToCell(h3.LatLng{Lat: -7.2001, Lng: 112.9001}, 6)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	if !contains(cells, want.String()) {
		t.Fatalf("cells %v missing vertex cell %s", cells, want)
	}
}

func TestOverlappingPolygonsShareCells(t *testing.T) {
	m := New()
	a, _ := m.CellsForGeometry(square(112.90, -7.20, 0.05), 8)
	b, _ := m.CellsForGeometry(square(112.93, -7.18, 0.05), 8)

	shared := false
	for _, c := range a {
		if contains(b, c) {
			shared = true
			break
		}
	}
	if !shared {
		t.Fatalf("overlapping polygons should share at least one cell")
	}
}

func rect(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{{
		{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
	}}
}

func TestCrossingThinStripsShareCells(t *testing.T) {
	m := New()
	// ~55 m wide, crossing at (112.9, -7.2); neither contains a res-8 cell centre near the crossing
	horizontal := rect(112.85, -7.20025, 112.95, -7.19975)
	vertical := rect(112.89975, -7.25, 112.90025, -7.15)

	a, err := m.CellsForGeometry(horizontal, 8)
	if err != nil {
		t.Fatalf("horizontal: %v", err)
	}
	b, err := m.CellsForGeometry(vertical, 8)
	if err != nil {
		t.Fatalf("vertical: %v", err)
	}

	crossing, err := h3.LatLngToCell(h3.LatLng{Lat: -7.2, Lng: 112.9}, 8)
	if err != nil {
		t.Fatalf("LatLngToCell: %v", err)
	}
	if !contains(a, crossing.String()) || !contains(b, crossing.String()) {
		t.Fatalf("crossing cell %s missing: horizontal=%d cells vertical=%d cells", crossing, len(a), len(b))
	}
}

func TestPolygonCoverContainsInteriorPointCells(t *testing.T) {
	m := New()
	p := rect(112.90, -7.20, 112.92, -7.1995)
	cells, err := m.CellsForGeometry(p, 9)
	if err != nil {
		t.Fatalf("CellsForGeometry: %v", err)
	}
	for lon := 112.9001; lon < 112.92; lon += 0.0007 {
		c, err := h3.LatLngToCell(h3.LatLng{Lat: -7.19975, Lng: lon}, 9)
		if err != nil {
			t.Fatalf("LatLngToCell: %v", err)
		}
		if !contains(cells, c.String()) {
			t.Fatalf("cover misses cell %s of interior point lon=%f", c, lon)
		}
	}
}

func TestMultiPolygonIsUnionOfMembers(t *testing.T) {
	m := New()
	p1 := square(112.90, -7.20, 0.02)
	p2 := square(113.10, -7.00, 0.02)

	c1, _ := m.CellsForGeometry(p1, 8)
	c2, _ := m.CellsForGeometry(p2, 8)
	both, err := m.CellsForGeometry(orb.MultiPolygon{p1, p2}, 8)
	if err != nil {
		t.Fatalf("multipolygon: %v", err)
	}
	for _, c := range append(c1, c2...) {
		if !contains(both, c) {
			t.Fatalf("union missing %s", c)
		}
	}
}

func TestBounds_InvalidResolutionAndDegenerateInput(t *testing.T) {
	m := New()
	p := square(11, 55, 1)

	if _, err := m.CellsForGeometry(p, -1); err == nil {
		t.Fatalf("expected error for res=-1")
	}
	if _, err := m.CellsForGeometry(p, 16); err == nil {
		t.Fatalf("expected error for res=16")
	}
	if _, err := m.CellsForGeometry(orb.Polygon{{}}, 8); err == nil {
		t.Fatalf("expected error for degenerate polygon")
	}
	if _, err := m.CellsForGeometry(nil, 8); err == nil {
		t.Fatalf("expected error for nil geometry")
	}
}

func TestPointMapsToOneCell(t *testing.T) {
	cells, err := New().CellsForGeometry(orb.Point{112.9234, -7.1754}, 9)
	if err != nil || len(cells) != 1 {
		t.Fatalf("cells=%v err=%v", cells, err)
	}
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func hasDups(s []string) bool {
	seen := map[string]struct{}{}
	for _, v := range s {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}
