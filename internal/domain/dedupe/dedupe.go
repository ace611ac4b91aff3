// Package dedupe tracks game ids that were already applied, so that a
// resubmitted game is acknowledged without being rated twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 100_000

// Deduper records seen game ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it if not.
	SeenAndRecord(ctx context.Context, id int64) bool

	// Unrecord forgets id so a failed submission can be retried.
	Unrecord(ctx context.Context, id int64)

	Size() int64
}

// Lister is implemented by dedupers that can enumerate what they recorded,
// so the ids can be saved and recorded again after a restart.
type Lister interface {
	// IDs returns the recorded ids, oldest first.
	IDs() []int64
}

// inMemoryDeduper keeps ids in insertion order. When bounded, the oldest id
// is evicted first.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[int64]*list.Element
	order   *list.List // front = oldest
	maxSize int        // <= 0 means unbounded
}

var _ Lister = (*inMemoryDeduper)(nil)

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[int64]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	d.seen[id] = d.order.PushBack(id)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.seen[id]; ok {
		d.order.Remove(e)
		delete(d.seen, id)
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	e := d.order.Front()
	if e == nil {
		return
	}
	d.order.Remove(e)
	delete(d.seen, e.Value.(int64))
}

func (d *inMemoryDeduper) IDs() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]int64, 0, len(d.seen))
	for e := d.order.Front(); e != nil; e = e.Next() {
		ids = append(ids, e.Value.(int64))
	}
	return ids
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
