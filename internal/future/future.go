// Package future provides a minimal promise/future pair and the atomic
// "exactly one pending operation" slot used to guarantee at most one
// in-flight load per cache entry.
package future

import (
	"context"
	"sync/atomic"
)

// Future is the read side of an asynchronous result. It completes
// exactly once.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Promise is the write side of a Future.
type Promise[T any] struct {
	f         *Future[T]
	completed atomic.Bool
}

// New returns a connected promise/future pair.
func New[T any]() (*Promise[T], *Future[T]) {
	f := &Future[T]{done: make(chan struct{})}
	return &Promise[T]{f: f}, f
}

// Completed returns a future already resolved with val.
func Completed[T any](val T) *Future[T] {
	p, f := New[T]()
	p.Complete(val)
	return f
}

// Failed returns a future already resolved with err.
func Failed[T any](err error) *Future[T] {
	p, f := New[T]()
	p.Fail(err)
	return f
}

// Complete resolves the future with a value. Only the first resolution
// takes effect.
func (p *Promise[T]) Complete(val T) {
	if !p.completed.CompareAndSwap(false, true) {
		return
	}
	p.f.val = val
	close(p.f.done)
}

// Fail resolves the future with an error.
func (p *Promise[T]) Fail(err error) {
	if !p.completed.CompareAndSwap(false, true) {
		return
	}
	p.f.err = err
	close(p.f.done)
}

// Future returns the promise's read side.
func (p *Promise[T]) Future() *Future[T] { return p.f }

// Done returns a channel closed on resolution.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Resolved reports whether the future has completed, without blocking.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves or ctx is canceled.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Value returns the resolution. Only valid after Done is closed.
func (f *Future[T]) Value() (T, error) {
	<-f.done
	return f.val, f.err
}
