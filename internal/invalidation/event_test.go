package invalidation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/paulmach/orb"
)

func mustTS() time.Time { return time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC) }

const regionJSON = `{"type":"Polygon","coordinates":[[[112.9,-7.2],[113,-7.2],[113,-7.1],[112.9,-7.1],[112.9,-7.2]]]}`

func TestEvent_Validate_BBoxAndGeometryMutuallyExclusive(t *testing.T) {
	ev := Event{
		Version: 1, Op: OpUpdate, Layer: "zonasi", TS: mustTS(),
		BBox:     &BBox{X1: 112.9, Y1: -7.2, X2: 113, Y2: -7.1, SRID: "EPSG:4326"},
		Geometry: json.RawMessage(regionJSON),
	}
	if err := ev.Validate(); err == nil {
		t.Fatalf("expected error when both bbox and geometry are set")
	}
	ev.BBox, ev.Geometry = nil, nil
	if err := ev.Validate(); err == nil {
		t.Fatalf("expected error when neither is set")
	}
}

func TestEvent_Validate_HappyPaths(t *testing.T) {
	for name, ev := range map[string]Event{
		"bbox": {
			Version: 1, Op: OpDelete, Layer: "zonasi", TS: mustTS(),
			BBox: &BBox{X1: 112.9, Y1: -7.2, X2: 113, Y2: -7.1, SRID: "EPSG:4326"},
		},
		"geometry with revision": {
			Version: 1, Op: OpInsert, Layer: "zonasi", TS: mustTS(),
			RegionID: "R-17", Revision: 3,
			Geometry: json.RawMessage(regionJSON),
		},
	} {
		if err := ev.Validate(); err != nil {
			t.Fatalf("%s: unexpected: %v", name, err)
		}
	}
}

func TestEvent_Validate_Rejects(t *testing.T) {
	base := Event{Version: 1, Op: OpUpdate, Layer: "zonasi", TS: mustTS(), Geometry: json.RawMessage(regionJSON)}
	cases := map[string]func(*Event){
		"version":            func(e *Event) { e.Version = 2 },
		"op":                 func(e *Event) { e.Op = "upsert" },
		"layer":              func(e *Event) { e.Layer = " " },
		"ts":                 func(e *Event) { e.TS = time.Time{} },
		"revision no region": func(e *Event) { e.Revision = 4 },
		"point geometry":     func(e *Event) { e.Geometry = json.RawMessage(`{"type":"Point","coordinates":[1,2]}`) },
		"flat bbox": func(e *Event) {
			e.Geometry = nil
			e.BBox = &BBox{X1: 11, Y1: 55, X2: 11, Y2: 56, SRID: "EPSG:4326"}
		},
		"bbox srid": func(e *Event) {
			e.Geometry = nil
			e.BBox = &BBox{X1: 11, Y1: 55, X2: 12, Y2: 56, SRID: "EPSG:3857"}
		},
	}
	for name, mutate := range cases {
		ev := base
		mutate(&ev)
		if err := ev.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestEvent_JSONShape(t *testing.T) {
	raw := `{"version":1,"op":"update","layer":"zonasi","ts":"2026-03-02T08:15:00Z","region_id":"R-1","revision":7,"geometry":` + regionJSON + `}`
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ev.TS.Equal(mustTS()) || ev.DedupeKey() != "zonasi/R-1" || ev.Revision != 7 {
		t.Fatalf("decoded %+v", ev)
	}
}

func TestEvent_Area(t *testing.T) {
	ev := Event{BBox: &BBox{X1: 1, Y1: 2, X2: 3, Y2: 4}}
	g, err := ev.Area()
	if err != nil {
		t.Fatalf("Area: %v", err)
	}
	if b, ok := g.(orb.Bound); !ok || b.Min != (orb.Point{1, 2}) || b.Max != (orb.Point{3, 4}) {
		t.Fatalf("bbox area=%v", g)
	}

	ev = Event{Geometry: json.RawMessage(regionJSON)}
	g, err = ev.Area()
	if err != nil {
		t.Fatalf("Area: %v", err)
	}
	if _, ok := g.(orb.Polygon); !ok {
		t.Fatalf("geometry area type=%T", g)
	}
}

func TestRevisionDedupe(t *testing.T) {
	d := NewRevisionDedupe(2)

	if d.Stale("zonasi/R-1", 1) {
		t.Fatal("first revision cannot be stale")
	}
	d.Applied("zonasi/R-1", 5)
	if !d.Stale("zonasi/R-1", 5) || !d.Stale("zonasi/R-1", 4) {
		t.Fatal("revisions <= last applied must be stale")
	}
	if d.Stale("zonasi/R-1", 6) {
		t.Fatal("newer revision must apply")
	}
	d.Applied("zonasi/R-1", 3)
	if !d.Stale("zonasi/R-1", 4) {
		t.Fatal("an older Applied must not move the watermark back")
	}
	if d.Stale("", 1) {
		t.Fatal("events without a key are never stale")
	}
}
