package invalidation

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RevisionDedupe remembers the newest applied revision per region so that
// replayed or reordered events are skipped.
type RevisionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func NewRevisionDedupe(size int) *RevisionDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &RevisionDedupe{lru: c}
}

// Stale reports whether rev is not newer than the last applied revision.
func (d *RevisionDedupe) Stale(key string, rev uint64) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return ok && rev <= last
}

// Applied records rev once the event's work is done.
func (d *RevisionDedupe) Applied(key string, rev uint64) {
	if key == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && rev <= last {
		return
	}
	d.lru.Add(key, rev)
}
