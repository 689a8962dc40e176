// Package dedupe tracks ids that were already processed so repeated
// submissions are applied at most once.
package dedupe

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 50_000

// Deduper records seen ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so it can be retried, e.g. after the enqueue
	// that followed SeenAndRecord failed.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// lruDeduper keeps the most recently recorded ids and evicts the least
// recently recorded once full.
type lruDeduper struct {
	maxSize int
	cache   *lru.Cache[string, struct{}]
}

// NewInMemoryDeduper creates a bounded in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &lruDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	// only fails for a non-positive size, which options rule out
	cache, _ := lru.New[string, struct{}](d.maxSize)
	d.cache = cache
	return d
}

func (d *lruDeduper) SeenAndRecord(_ context.Context, id string) bool {
	seen, _ := d.cache.ContainsOrAdd(id, struct{}{})
	return seen
}

func (d *lruDeduper) Unrecord(_ context.Context, id string) {
	d.cache.Remove(id)
}

func (d *lruDeduper) Size() int64 {
	return int64(d.cache.Len())
}
