// Package cache defines the read seam behind the result cache. Writes go
// through the cell index so every stored result stays evictable.
package cache

import "context"

type Interface interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
}
