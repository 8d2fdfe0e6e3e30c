// Package workpool bounds the number of blocking database and model calls in
// flight at once.
package workpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

const DefaultSize = 8

type Pool struct {
	size int64
	sem  *semaphore.Weighted
}

func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{size: int64(size), sem: semaphore.NewWeighted(int64(size))}
}

func (p *Pool) Size() int {
	return int(p.size)
}

// Do runs fn once a slot is free. It returns ctx's error if the context ends
// while waiting; a started fn always runs to completion.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire worker: %w", err)
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Submit runs fn in the pool and returns its value.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
