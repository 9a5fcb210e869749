package future

import "sync/atomic"

// Slot is an atomic Idle | Pending cell guarding one in-flight
// operation. Concurrent Begin calls race on a compare-and-swap; exactly
// one wins and runs the operation, the rest observe the winner's future.
type Slot[T any] struct {
	pending atomic.Pointer[Future[T]]
}

// Begin tries to install a new pending operation. On the winning call it
// returns the promise to resolve, its future, and started=true. Losing
// calls get the already-pending future and started=false.
//
// The winner must eventually Clear the slot and then resolve the
// promise, in that order: a caller woken by the future always observes
// an idle slot, so a follow-up operation can begin immediately instead
// of joining the finished one.
func (s *Slot[T]) Begin() (*Promise[T], *Future[T], bool) {
	for {
		if cur := s.pending.Load(); cur != nil {
			return nil, cur, false
		}
		p, f := New[T]()
		if s.pending.CompareAndSwap(nil, f) {
			return p, f, true
		}
	}
}

// Pending returns the in-flight future, or nil when idle.
func (s *Slot[T]) Pending() *Future[T] {
	return s.pending.Load()
}

// Clear releases the slot if it still holds f.
func (s *Slot[T]) Clear(f *Future[T]) {
	s.pending.CompareAndSwap(f, nil)
}
