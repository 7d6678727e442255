// Package workerpool bounds blocking work such as key generation so that a
// burst of reconciliations cannot saturate the process.
package workerpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Pool runs functions with at most size of them in flight.
type Pool struct {
	sem   *semaphore.Weighted
	group singleflight.Group
	size  int
}

// New returns a pool with size slots. Sizes below one are raised to one.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Do runs fn once a slot is free. It returns ctx.Err() if the context ends first.
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, fmt.Errorf("waiting for worker slot: %w", err)
	}
	defer p.sem.Release(1)
	return fn()
}

// DoShared is like Do but collapses concurrent calls with the same key into one.
// Callers sharing a call all receive its result.
func DoShared[T any](ctx context.Context, p *Pool, key string, fn func() (T, error)) (T, error) {
	var zero T
	ch := p.group.DoChan(key, func() (any, error) {
		return Do(ctx, p, fn)
	})
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("waiting for shared call %q: %w", key, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}
