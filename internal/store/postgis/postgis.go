// Package postgis calls the intersection function directly over a pgx pool,
// bypassing the REST layer.
package postgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mohammed-shakir/zoning-relay/internal/core/config"
	"github.com/mohammed-shakir/zoning-relay/internal/core/geo"
	"github.com/mohammed-shakir/zoning-relay/internal/core/model"
	"github.com/mohammed-shakir/zoning-relay/internal/core/observability"
	"github.com/mohammed-shakir/zoning-relay/internal/store"
)

const upstream = "postgis"

func init() {
	store.Register(config.BackendPostGIS, func(ctx context.Context, cfg config.Config, deps store.Deps) (store.Interface, error) {
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open pgx pool: %w", err)
		}
		return New(deps.Logger, pool, cfg.Store)
	})
}

// Querier is the subset of *pgxpool.Pool used here.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type Store struct {
	logger   *slog.Logger
	db       Querier
	sql      string
	encoding string
	timeout  time.Duration
}

func New(logger *slog.Logger, db Querier, cfg config.StoreCfg) (*Store, error) {
	if !config.ValidIdentifier(cfg.Function) {
		return nil, fmt.Errorf("function name %q is not a valid identifier", cfg.Function)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logger:   logger,
		db:       db,
		sql:      Query(cfg.Function),
		encoding: cfg.Encoding,
		timeout:  cfg.Timeout,
	}, nil
}

// Query is the statement run per check; fn must already be a valid identifier.
func Query(fn string) string {
	return "SELECT COALESCE(json_agg(r), '[]'::json)::text FROM " + fn + "($1) AS r"
}

func (s *Store) Intersect(ctx context.Context, p model.UserPolygon) (json.RawMessage, error) {
	expr, err := geo.Expression(p, s.encoding)
	if err != nil {
		return nil, err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	var out string
	err = s.db.QueryRow(ctx, s.sql, expr).Scan(&out)
	observability.ObserveUpstreamLatency(upstream, time.Since(start).Seconds())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			observability.IncUpstreamError(upstream, "status")
			return nil, &store.Error{Message: pgErr.Message}
		}
		observability.IncUpstreamError(upstream, "transport")
		return nil, fmt.Errorf("query %s: %w", upstream, err)
	}
	s.logger.DebugContext(ctx, "postgis done", "bytes", len(out))
	return json.RawMessage(out), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() {
	if c, ok := s.db.(interface{ Close() }); ok {
		c.Close()
	}
}
