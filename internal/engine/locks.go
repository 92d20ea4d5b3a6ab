package engine

import (
	"context"
	"sync"
)

// PriceListLocks serializes apply-rules invocations per price list. Runs
// against different price lists proceed independently; runs against the
// same list queue up so partial writes never interleave.
type PriceListLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// NewPriceListLocks creates an empty lock table.
func NewPriceListLocks() *PriceListLocks {
	return &PriceListLocks{entries: make(map[string]*lockEntry)}
}

// Acquire blocks until the lock for key is held or ctx is cancelled. On
// success the returned release function must be called exactly once.
func (l *PriceListLocks) Acquire(ctx context.Context, key string) (func(), error) {
	e := l.retain(key)

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			l.releaseEntry(key)
		}, nil
	case <-ctx.Done():
		l.releaseEntry(key)
		return nil, ctx.Err()
	}
}

func (l *PriceListLocks) retain(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *PriceListLocks) releaseEntry(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(l.entries, key)
	}
}
