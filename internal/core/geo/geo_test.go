package geo

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/zoning-relay/internal/core/model"
)

const square = `{"type":"Polygon","coordinates":[[[0,0],[0.01,0],[0.01,0.01],[0,0.01],[0,0]]]}`

func TestParsePolygon_TypeChecks(t *testing.T) {
	if _, err := ParsePolygon([]byte(square)); err != nil {
		t.Fatalf("polygon: unexpected err: %v", err)
	}

	mp := `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1],[0,0]]]]}`
	p, err := ParsePolygon([]byte(mp))
	if err != nil {
		t.Fatalf("multipolygon: unexpected err: %v", err)
	}
	if _, ok := p.Geometry.(orb.MultiPolygon); !ok {
		t.Fatalf("geometry type=%T want orb.MultiPolygon", p.Geometry)
	}

	_, err = ParsePolygon([]byte(`{"type":"LineString","coordinates":[[0,0],[1,1]]}`))
	if !errors.Is(err, ErrNotPolygon) {
		t.Fatalf("linestring: err=%v want ErrNotPolygon", err)
	}
}

func TestParsePolygon_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"type":`,
		"no type":        `{"coordinates":[]}`,
		"empty polygon":  `{"type":"Polygon","coordinates":[]}`,
		"bad coords":     `{"type":"Polygon","coordinates":"nope"}`,
		"feature nogeom": `{"type":"Feature","properties":{},"geometry":null}`,
		"scalar":         `42`,
	}
	for name, in := range cases {
		if _, err := ParsePolygon([]byte(in)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestParsePolygon_UnwrapsFeature(t *testing.T) {
	feat := `{"type":"Feature","properties":{"drawn":true},"geometry":` + square + `}`
	p, err := ParsePolygon([]byte(feat))
	if err != nil {
		t.Fatalf("ParsePolygon: %v", err)
	}
	if _, ok := p.Geometry.(orb.Polygon); !ok {
		t.Fatalf("geometry type=%T", p.Geometry)
	}
	if strings.Contains(string(p.GeoJSON), "Feature") {
		t.Fatalf("canonical form should be the bare geometry; got %s", p.GeoJSON)
	}
}

func TestParsePolygon_CanonicalIsStable(t *testing.T) {
	a, err := ParsePolygon([]byte(square))
	if err != nil {
		t.Fatalf("a: %v", err)
	}
	spaced := `{ "coordinates" : [[[0, 0],[0.01,0],[0.01,0.01],[0,0.01],[0,0]]], "type":"Polygon" }`
	b, err := ParsePolygon([]byte(spaced))
	if err != nil {
		t.Fatalf("b: %v", err)
	}
	if string(a.GeoJSON) != string(b.GeoJSON) {
		t.Fatalf("canonical mismatch:\n%s\n%s", a.GeoJSON, b.GeoJSON)
	}
}

func TestExpression_GeoJSON(t *testing.T) {
	p, _ := ParsePolygon([]byte(square))
	expr, err := Expression(p, EncodingGeoJSON)
	if err != nil {
		t.Fatalf("Expression: %v", err)
	}
	if !strings.HasPrefix(expr, "ST_GeomFromGeoJSON('{") || !strings.HasSuffix(expr, "}')") {
		t.Fatalf("unexpected expression %q", expr)
	}
	if !strings.Contains(expr, `"type":"Polygon"`) {
		t.Fatalf("expression should embed geometry json; got %q", expr)
	}
}

func TestExpression_WKT(t *testing.T) {
	p, _ := ParsePolygon([]byte(square))
	expr, err := Expression(p, EncodingWKT)
	if err != nil {
		t.Fatalf("Expression: %v", err)
	}
	if !strings.HasPrefix(expr, "ST_SetSRID(ST_GeomFromText('POLYGON((") || !strings.HasSuffix(expr, "'), 4326)") {
		t.Fatalf("unexpected expression %q", expr)
	}
}

func TestExpression_Errors(t *testing.T) {
	p, _ := ParsePolygon([]byte(square))
	if _, err := Expression(p, "wkb"); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
	if _, err := Expression(p, ""); err != nil {
		t.Fatalf("empty encoding should default to geojson: %v", err)
	}
	if _, err := Expression(model.UserPolygon{}, EncodingGeoJSON); err == nil {
		t.Fatal("expected error for empty polygon")
	}
}

func TestQuote_DoublesSingleQuotes(t *testing.T) {
	if got := quote(`a'b''c`); got != `a''b''''c` {
		t.Fatalf("quote=%q", got)
	}
}

func TestAreaSqm_SmallSquareAtEquator(t *testing.T) {
	p, _ := ParsePolygon([]byte(square))
	got := AreaSqm(p.Geometry)
	// 0.01 degree is roughly 1113 m at the equator
	want := 1113.19 * 1113.19
	if math.Abs(got-want)/want > 0.01 {
		t.Fatalf("area=%.1f want ~%.1f", got, want)
	}
	if AreaSqm(nil) != 0 {
		t.Fatal("nil geometry should have zero area")
	}
}
