package client

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/zoning-relay/internal/core/geo"
	"github.com/mohammed-shakir/zoning-relay/internal/core/model"
)

func decodeResults(t *testing.T, raw string) []model.IntersectionResult {
	t.Helper()
	out, err := model.DecodeResults([]byte(raw))
	require.NoError(t, err)
	return out
}

func TestWritePanel_ListsEveryResult(t *testing.T) {
	results := decodeResults(t, `[
		{"intersected_geom":null,"intersected_area_sqm":1234.5678,"zonasi_kode":"R-2","zonasi_kec":"Kamal",
		 "tabelpola_data":{"rumah_tinggal":true,"industri_besar":false,"kdb_max":60,"catatan":"boleh"}},
		{"intersected_geom":null,"intersected_area_sqm":10,"zonasi_kode":"K-1","zonasi_kec":"Socah","tabelpola_data":{}}
	]`)

	var b strings.Builder
	require.NoError(t, WritePanel(&b, results))
	out := b.String()

	assert.Contains(t, out, "Zoning segment 1")
	assert.Contains(t, out, "Area: 1234.57 m²")
	assert.Contains(t, out, "Zoning code: R-2")
	assert.Contains(t, out, "District: Kamal")
	assert.Contains(t, out, "rumah tinggal: yes")
	assert.Contains(t, out, "industri besar: no")
	assert.Contains(t, out, "kdb max: 60")
	assert.Contains(t, out, "catatan: boleh")
	assert.Contains(t, out, "Zoning segment 2")
	assert.Contains(t, out, MsgNoAttributes)

	// attribute order follows the store's payload
	assert.Less(t, strings.Index(out, "rumah tinggal"), strings.Index(out, "industri besar"))
	assert.Less(t, strings.Index(out, "kdb max"), strings.Index(out, "catatan"))
}

func TestWritePanel_Empty(t *testing.T) {
	var b strings.Builder
	require.NoError(t, WritePanel(&b, nil))
	assert.Contains(t, b.String(), MsgNoResults)
}

func TestRenderPanel_ShowsDrawnArea(t *testing.T) {
	s := NewSession(&stubRelay{results: oneResult()}, nil)

	var before strings.Builder
	require.NoError(t, s.RenderPanel(&before))
	assert.NotContains(t, before.String(), "Drawn polygon area")

	require.NoError(t, s.Draw(ShapePolygon, json.RawMessage(drawn)))
	_, err := s.Check(context.Background())
	require.NoError(t, err)

	p, err := geo.ParseGeometry(json.RawMessage(drawn))
	require.NoError(t, err)
	want := geo.AreaSqm(p)
	require.Greater(t, want, 1e6)

	var b strings.Builder
	require.NoError(t, s.RenderPanel(&b))
	out := b.String()
	assert.Contains(t, out, "Drawn polygon area: "+strconv.FormatFloat(want, 'f', 2, 64)+" m²")
	assert.Less(t, strings.Index(out, "Drawn polygon area"), strings.Index(out, "Zoning segment 1"))
}

func TestOverlays_StyledFeaturePerResult(t *testing.T) {
	relay := &stubRelay{results: decodeResults(t, `[
		{"intersected_geom":`+drawn+`,"intersected_area_sqm":1,"zonasi_kode":"R-1","zonasi_kec":"A","tabelpola_data":{}},
		{"intersected_geom":null,"intersected_area_sqm":0,"zonasi_kode":"R-2","zonasi_kec":"B","tabelpola_data":{}}
	]`)}
	s := NewSession(relay, nil)
	require.NoError(t, s.Draw(ShapePolygon, json.RawMessage(drawn)))
	_, err := s.Check(context.Background())
	require.NoError(t, err)

	fc, err := s.Overlays()
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	assert.Equal(t, "drawn", fc.Features[0].Properties["role"])
	assert.InDelta(t, 1.2e6, fc.Features[0].Properties["area_sqm"], 0.05e6)
	f := fc.Features[1]
	assert.Equal(t, "intersection", f.Properties["role"])
	assert.Equal(t, "R-1", f.Properties["zonasi_kode"])
	assert.Equal(t, "blue", f.Properties["color"])
	assert.Equal(t, "cyan", f.Properties["fillColor"])
	assert.InDelta(t, 0.3, f.Properties["fillOpacity"], 1e-9)
}

func TestOverlays_EmptySession(t *testing.T) {
	fc, err := NewSession(&stubRelay{}, nil).Overlays()
	require.NoError(t, err)
	assert.Empty(t, fc.Features)
}

func TestDefaultBaseLayer(t *testing.T) {
	assert.Contains(t, DefaultBaseLayer.TileURL, "World_Imagery")
	assert.Equal(t, 19, DefaultBaseLayer.MaxZoom)
	assert.Equal(t, 12, DefaultBaseLayer.Zoom)
}
