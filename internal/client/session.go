// Package client is the map client: it holds the drawn polygon and the last
// check's results behind one state machine and renders them for display.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mohammed-shakir/zoning-relay/internal/core/geo"
	"github.com/mohammed-shakir/zoning-relay/internal/core/model"
)

type State int

const (
	StateEmpty State = iota
	StateDrawn
	StateChecked
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateDrawn:
		return "drawn"
	case StateChecked:
		return "checked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Shape is the kind of layer produced by the drawing tool.
type Shape string

const (
	ShapePolygon      Shape = "polygon"
	ShapeRectangle    Shape = "rectangle"
	ShapeCircle       Shape = "circle"
	ShapeCircleMarker Shape = "circlemarker"
	ShapeMarker       Shape = "marker"
	ShapePolyline     Shape = "polyline"
)

const (
	MsgNoPolygon    = "Please draw a polygon first!"
	MsgCheckFailed  = "Error checking spatial plan: "
	MsgMapCleared   = "Map cleared. Please draw a new polygon."
	MsgNoResults    = "No results, or no polygon drawn yet."
	MsgNoAttributes = "No detail attributes."
)

var (
	ErrShapeNotAllowed = errors.New("only polygons can be drawn")
	ErrNoPolygon       = errors.New("no polygon drawn")
	ErrCheckInFlight   = errors.New("a check is already running")
	ErrStale           = errors.New("map changed while the check was running")
)

// Notifier shows a message to the user.
type Notifier interface {
	Notify(msg string)
}

type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

// Relay sends a polygon to the zoning check endpoint.
type Relay interface {
	Check(ctx context.Context, polygon json.RawMessage) ([]model.IntersectionResult, error)
}

// Session is one user's map. All methods are safe for concurrent use.
type Session struct {
	relay  Relay
	notify Notifier

	mu       sync.Mutex
	state    State
	polygon  model.UserPolygon
	results  []model.IntersectionResult
	gen      uint64
	inFlight uint64 // generation of the running check, 0 when idle
}

func NewSession(relay Relay, notify Notifier) *Session {
	if notify == nil {
		notify = NotifierFunc(func(string) {})
	}
	return &Session{relay: relay, notify: notify, gen: 1}
}

// Draw replaces the current polygon with geometry. Any previous results are
// discarded. Non-polygon shapes are rejected and leave the session untouched.
func (s *Session) Draw(shape Shape, geometry json.RawMessage) error {
	if shape != ShapePolygon {
		return fmt.Errorf("%w (got %s)", ErrShapeNotAllowed, shape)
	}
	p, err := geo.ParsePolygon(geometry)
	if err != nil {
		return fmt.Errorf("drawn polygon: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.polygon = p
	s.results = nil
	s.state = StateDrawn
	return nil
}

// Check sends the drawn polygon to the relay. On failure the user is notified
// and the session keeps its previous state.
func (s *Session) Check(ctx context.Context) ([]model.IntersectionResult, error) {
	s.mu.Lock()
	if s.polygon.IsZero() {
		s.mu.Unlock()
		s.notify.Notify(MsgNoPolygon)
		return nil, ErrNoPolygon
	}
	if s.inFlight == s.gen {
		s.mu.Unlock()
		return nil, ErrCheckInFlight
	}
	gen := s.gen
	s.inFlight = gen
	poly := json.RawMessage(s.polygon.GeoJSON)
	s.mu.Unlock()

	results, err := s.relay.Check(ctx, poly)

	s.mu.Lock()
	if s.inFlight == gen {
		s.inFlight = 0
	}
	if s.gen != gen {
		s.mu.Unlock()
		return nil, ErrStale
	}
	if err != nil {
		s.mu.Unlock()
		s.notify.Notify(MsgCheckFailed + err.Error())
		return nil, err
	}
	if results == nil {
		results = []model.IntersectionResult{}
	}
	s.results = results
	s.state = StateChecked
	s.mu.Unlock()
	return results, nil
}

// Clear removes the polygon and results.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.polygon = model.UserPolygon{}
	s.results = nil
	s.state = StateEmpty
}

// Redraw clears the map and prompts the user to draw again.
func (s *Session) Redraw() {
	s.Clear()
	s.notify.Notify(MsgMapCleared)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Results returns a copy of the results held in the Checked state.
func (s *Session) Results() []model.IntersectionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.IntersectionResult, len(s.results))
	copy(out, s.results)
	return out
}

// Polygon returns the drawn polygon, zero when Empty.
func (s *Session) Polygon() model.UserPolygon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polygon
}
