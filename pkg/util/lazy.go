package util

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

const (
	lazyGetKey     = "get"
	lazyRefreshKey = "refresh"
)

// Lazy is a get-or-init cell. Concurrent callers of Get while the value is
// missing share a single call to the init function; a failed init leaves the
// cell empty so a later Get retries from scratch.
//
// Refresh and Reset bump a generation counter. A value produced by an init that
// started before the bump is handed to its waiting callers but never stored.
type Lazy[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
	gen   uint64
	group singleflight.Group
}

// Peek returns the cached value without triggering initialization.
func (l *Lazy[T]) Peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.set
}

// Get returns the cached value, running init at most once across concurrent
// callers when the cell is empty.
func (l *Lazy[T]) Get(ctx context.Context, init func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := l.Peek(); ok {
		return v, nil
	}
	return l.do(ctx, lazyGetKey, init)
}

// Refresh drops the cached value and runs init again. The old value stops being
// visible before init starts, so there is never a moment where both are current.
// On failure the cell stays empty.
func (l *Lazy[T]) Refresh(ctx context.Context, init func(ctx context.Context) (T, error)) (T, error) {
	l.Reset()
	return l.do(ctx, lazyRefreshKey, init)
}

// Reset empties the cell and discards the result of any init still in flight.
func (l *Lazy[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	l.value = zero
	l.set = false
	l.gen++
}

func (l *Lazy[T]) do(ctx context.Context, key string, init func(ctx context.Context) (T, error)) (T, error) {
	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()

	res, err, _ := l.group.Do(key, func() (interface{}, error) {
		// a concurrent flight may have filled the cell while this one was queued
		if key == lazyGetKey {
			if v, ok := l.Peek(); ok {
				return v, nil
			}
		}
		v, err := init(ctx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		if l.gen == gen {
			l.value = v
			l.set = true
		}
		l.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}
