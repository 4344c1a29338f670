// Package cached wraps a store backend with a Redis read-through cache. Each
// stored result is also registered in an H3 cell index so zoning change events
// can evict it.
package cached

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/zoning-relay/internal/cache"
	"github.com/mohammed-shakir/zoning-relay/internal/cache/cellindex"
	"github.com/mohammed-shakir/zoning-relay/internal/cache/keys"
	"github.com/mohammed-shakir/zoning-relay/internal/core/model"
	"github.com/mohammed-shakir/zoning-relay/internal/core/observability"
	mylog "github.com/mohammed-shakir/zoning-relay/internal/logger"
	"github.com/mohammed-shakir/zoning-relay/internal/mapper"
	"github.com/mohammed-shakir/zoning-relay/internal/store"
)

const (
	OutcomeHit    = "hit"
	OutcomeMiss   = "miss"
	OutcomeBypass = "bypass"
)

type Options struct {
	Function  string
	TTL       time.Duration
	OpTimeout time.Duration
	Res       int
}

type Store struct {
	next   store.Interface
	kv     cache.Interface
	idx    cellindex.CellIndex
	mapr   mapper.Interface
	opts   Options
	logger *slog.Logger
}

func New(next store.Interface, kv cache.Interface, idx cellindex.CellIndex, m mapper.Interface, opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{next: next, kv: kv, idx: idx, mapr: m, opts: opts, logger: logger}
}

// returns context with timeout if set, detached from caller cancellation
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if s.opts.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.OpTimeout)
}

func (s *Store) Intersect(ctx context.Context, p model.UserPolygon) (json.RawMessage, error) {
	key := keys.ResultKey(s.opts.Function, p.GeoJSON)

	body, found, err := s.get(ctx, key)
	switch {
	case err != nil:
		ctx = mylog.WithCacheOutcome(ctx, OutcomeBypass)
		s.logger.WarnContext(ctx, "cache get failed, using backend", "err", err, "key", key)
		observability.ObserveCacheOutcome(OutcomeBypass)
		return s.next.Intersect(ctx, p)
	case found:
		ctx = mylog.WithCacheOutcome(ctx, OutcomeHit)
		s.logger.DebugContext(ctx, "cache hit", "key", key)
		observability.ObserveCacheOutcome(OutcomeHit)
		return json.RawMessage(body), nil
	}

	ctx = mylog.WithCacheOutcome(ctx, OutcomeMiss)
	observability.ObserveCacheOutcome(OutcomeMiss)
	res, err := s.next.Intersect(ctx, p)
	if err != nil {
		return nil, err
	}
	if !cacheable(res) {
		return res, nil
	}
	if err := s.fill(ctx, key, p, res); err != nil {
		s.logger.WarnContext(ctx, "cache fill failed", "err", err, "key", key)
	}
	return res, nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, bool, error) {
	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	b, found, err := s.kv.Get(cctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cache get %q: %w", key, err)
	}
	return b, found, nil
}

// fill writes the result and its cell registrations in one transaction.
func (s *Store) fill(ctx context.Context, key string, p model.UserPolygon, res []byte) error {
	cells, err := s.mapr.CellsForGeometry(p.Geometry, s.opts.Res)
	if err != nil {
		return fmt.Errorf("map polygon to cells: %w", err)
	}

	cctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.idx.Store(cctx, cells, key, res, s.opts.TTL); err != nil {
		return fmt.Errorf("store %d cells: %w", len(cells), err)
	}
	return nil
}

// only arrays are stored; anything else is left for the relay to reject
func cacheable(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '['
}
