package scheduler

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Guard collapses concurrent calls into one run. Callers arriving while a run
// is in flight wait for it and share its result instead of starting another.
type Guard[T any] struct {
	g       singleflight.Group
	running atomic.Bool
	runs    atomic.Uint64
}

// Do runs fn unless a run is already in flight. shared reports whether the
// result came from a run started by another caller.
func (g *Guard[T]) Do(fn func() (T, error)) (v T, shared bool, err error) {
	res, err, shared := g.g.Do("run", func() (any, error) {
		g.running.Store(true)
		defer g.running.Store(false)
		g.runs.Add(1)
		return fn()
	})
	if res != nil {
		v = res.(T)
	}
	return v, shared, err
}

// DoContext is Do for callers that may give up waiting. fn itself keeps
// running to completion with its own context.
func (g *Guard[T]) DoContext(ctx context.Context, fn func() (T, error)) (v T, shared bool, err error) {
	ch := g.g.DoChan("run", func() (any, error) {
		g.running.Store(true)
		defer g.running.Store(false)
		g.runs.Add(1)
		return fn()
	})
	select {
	case r := <-ch:
		if r.Val != nil {
			v = r.Val.(T)
		}
		return v, r.Shared, r.Err
	case <-ctx.Done():
		return v, false, ctx.Err()
	}
}

func (g *Guard[T]) Running() bool { return g.running.Load() }

// Runs counts completed and in-flight runs.
func (g *Guard[T]) Runs() uint64 { return g.runs.Load() }
