// Package store defines the spatial store seam and the backend registry.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/mohammed-shakir/zoning-relay/internal/core/config"
	"github.com/mohammed-shakir/zoning-relay/internal/core/model"
)

// Interface computes the zoning regions intersecting a polygon. Implementations
// return the store's result array untouched.
type Interface interface {
	Intersect(ctx context.Context, p model.UserPolygon) (json.RawMessage, error)
}

// Pinger is implemented by backends that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer is implemented by backends holding pooled connections.
type Closer interface {
	Close()
}

// Error is a failure reported by the store itself (not a transport error).
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("store status %d: %s", e.Status, e.Message)
}

// Deps are the shared resources handed to backend factories.
type Deps struct {
	Logger *slog.Logger
	HTTP   *http.Client
}

type Factory func(ctx context.Context, cfg config.Config, deps Deps) (Interface, error)

var (
	mu  sync.RWMutex
	reg = map[string]Factory{}
)

func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	reg[name] = f
}

// New builds the backend registered under name.
func New(ctx context.Context, name string, cfg config.Config, deps Deps) (Interface, error) {
	mu.RLock()
	f, ok := reg[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no store backend registered as %q (have %v)", name, Names())
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return f(ctx, cfg, deps)
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(reg))
	for k := range reg {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
