// Package cellindex maps H3 cells to the cached result keys whose polygon
// touches them, so a zoning change can find what to evict.
package cellindex

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mohammed-shakir/zoning-relay/internal/cache/keys"
	"github.com/mohammed-shakir/zoning-relay/internal/cache/redisstore"
)

const evictAttempts = 5

// Eviction reports what Evict removed.
type Eviction struct {
	Keys    []string // sorted result keys found under the cells
	Deleted int64    // result values that still existed
}

type CellIndex interface {
	// Store writes a result and registers its key under cells atomically.
	Store(ctx context.Context, cells []string, resultKey string, val []byte, ttl time.Duration) error
	// Evict deletes every result registered under cells and removes those
	// registrations, leaving entries added concurrently in place.
	Evict(ctx context.Context, cells []string) (Eviction, error)
}

type redisCellIndex struct {
	cli *redisstore.Client
	res int
}

func NewRedisIndex(cli *redisstore.Client, res int) CellIndex {
	return &redisCellIndex{cli: cli, res: res}
}

func (ci *redisCellIndex) Store(ctx context.Context, cells []string, resultKey string, val []byte, ttl time.Duration) error {
	if len(cells) == 0 {
		return fmt.Errorf("cellindex store %q: no cells", resultKey)
	}
	if err := ci.cli.SetIndexed(ctx, resultKey, val, ttl, keys.CellIndexKeys(ci.res, cells)); err != nil {
		return fmt.Errorf("cellindex store: %w", err)
	}
	return nil
}

func (ci *redisCellIndex) Evict(ctx context.Context, cells []string) (Eviction, error) {
	if len(cells) == 0 {
		return Eviction{}, nil
	}
	members, deleted, err := ci.cli.EvictIndexed(ctx, keys.CellIndexKeys(ci.res, cells), evictAttempts)
	if err != nil {
		return Eviction{}, fmt.Errorf("cellindex evict: %w", err)
	}
	sort.Strings(members)
	return Eviction{Keys: members, Deleted: deleted}, nil
}
