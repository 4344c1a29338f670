package client

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/zoning-relay/internal/core/geo"
	"github.com/mohammed-shakir/zoning-relay/internal/core/model"
)

// BaseLayer is the satellite tile layer under the overlays.
type BaseLayer struct {
	TileURL     string
	Attribution string
	MaxZoom     int
	CenterLat   float64
	CenterLng   float64
	Zoom        int
}

var DefaultBaseLayer = BaseLayer{
	TileURL:     "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
	Attribution: "Tiles &copy; Esri",
	MaxZoom:     19,
	CenterLat:   -7.1754,
	CenterLng:   112.9234,
	Zoom:        12,
}

// OverlayStyle is applied to every intersection overlay.
type OverlayStyle struct {
	Color       string
	Weight      float64
	Opacity     float64
	FillColor   string
	FillOpacity float64
}

var DefaultOverlayStyle = OverlayStyle{
	Color:       "blue",
	Weight:      3,
	Opacity:     0.7,
	FillColor:   "cyan",
	FillOpacity: 0.3,
}

// Overlays returns the drawn polygon and one styled feature per result.
// Results without a geometry are skipped.
func (s *Session) Overlays() (*geojson.FeatureCollection, error) {
	poly := s.Polygon()
	results := s.Results()

	fc := geojson.NewFeatureCollection()
	if !poly.IsZero() {
		f := geojson.NewFeature(poly.Geometry)
		f.Properties["role"] = "drawn"
		f.Properties["area_sqm"] = geo.AreaSqm(poly.Geometry)
		fc.Append(f)
	}
	st := DefaultOverlayStyle
	for i, r := range results {
		if len(r.Geometry) == 0 || string(r.Geometry) == "null" {
			continue
		}
		g, err := geo.ParseGeometry(r.Geometry)
		if err != nil {
			return nil, fmt.Errorf("result %d: %w", i+1, err)
		}
		f := geojson.NewFeature(g)
		f.Properties["role"] = "intersection"
		f.Properties["segment"] = i + 1
		f.Properties["zonasi_kode"] = r.ZoningCode
		f.Properties["zonasi_kec"] = r.District
		f.Properties["intersected_area_sqm"] = r.AreaSqm
		f.Properties["color"] = st.Color
		f.Properties["weight"] = st.Weight
		f.Properties["opacity"] = st.Opacity
		f.Properties["fillColor"] = st.FillColor
		f.Properties["fillOpacity"] = st.FillOpacity
		fc.Append(f)
	}
	return fc, nil
}

// RenderPanel writes the result side panel as plain text, headed by the area
// of the drawn polygon when there is one.
func (s *Session) RenderPanel(w io.Writer) error {
	var drawn *float64
	if p := s.Polygon(); !p.IsZero() {
		a := geo.AreaSqm(p.Geometry)
		drawn = &a
	}
	return writePanel(w, drawn, s.Results())
}

func WritePanel(w io.Writer, results []model.IntersectionResult) error {
	return writePanel(w, nil, results)
}

func writePanel(w io.Writer, drawnArea *float64, results []model.IntersectionResult) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Spatial plan check results")
	if drawnArea != nil {
		fmt.Fprintf(bw, "Drawn polygon area: %s m²\n", strconv.FormatFloat(*drawnArea, 'f', 2, 64))
	}
	if len(results) == 0 {
		fmt.Fprintln(bw, MsgNoResults)
		return bw.Flush()
	}
	for i, r := range results {
		fmt.Fprintf(bw, "\nZoning segment %d\n", i+1)
		fmt.Fprintf(bw, "  Area: %s m²\n", strconv.FormatFloat(r.AreaSqm, 'f', 2, 64))
		fmt.Fprintf(bw, "  Zoning code: %s\n", r.ZoningCode)
		fmt.Fprintf(bw, "  District: %s\n", r.District)
		if r.Attributes.Len() == 0 {
			fmt.Fprintf(bw, "  %s\n", MsgNoAttributes)
			continue
		}
		fmt.Fprintln(bw, "  Attributes:")
		r.Attributes.Each(func(key string, v model.AttributeValue) {
			fmt.Fprintf(bw, "    %s: %s\n", AttributeLabel(key), v.Display())
		})
	}
	return bw.Flush()
}

// AttributeLabel turns a column name into a display label.
func AttributeLabel(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}
