package genqueue

import (
	"context"
	"sync"

	"github.com/hupe1980/lodgo/pos"
	"github.com/hupe1980/lodgo/source"
)

// GeneratorFunc synthesizes the chunk updates covering one requested
// region. Used by FakeQueue.
type GeneratorFunc func(p pos.Pos, requiredStep source.GenStep) []*source.ChunkUpdate

// FakeQueue is an in-process Queue for tests and examples. Each task
// runs on its own goroutine, feeding the generator's chunks through the
// tracker. Tasks observe cancellation between chunks.
type FakeQueue struct {
	Generate GeneratorFunc

	mu        sync.Mutex
	cancels   map[pos.Pos]context.CancelFunc
	submitted []pos.Pos
}

// NewFakeQueue creates a fake queue driven by gen.
func NewFakeQueue(gen GeneratorFunc) *FakeQueue {
	return &FakeQueue{
		Generate: gen,
		cancels:  make(map[pos.Pos]context.CancelFunc),
	}
}

// SubmitGenTask implements Queue.
func (q *FakeQueue) SubmitGenTask(ctx context.Context, p pos.Pos, requiredStep source.GenStep, t Tracker) (<-chan Result, error) {
	taskCtx, cancel := context.WithCancel(ctx)

	q.mu.Lock()
	q.submitted = append(q.submitted, p)
	q.cancels[p] = cancel
	q.mu.Unlock()

	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		defer func() {
			q.mu.Lock()
			delete(q.cancels, p)
			q.mu.Unlock()
			cancel()
		}()

		updates := q.Generate(p, requiredStep)
		for _, u := range updates {
			if taskCtx.Err() != nil {
				ch <- ResultCancelled
				return
			}
			if !t.IsAlive() {
				ch <- ResultCancelled
				return
			}
			t.Consume(u)
		}
		ch <- ResultSuccess
	}()
	return ch, nil
}

// SubmittedPositions returns a snapshot of every task position in
// submission order.
func (q *FakeQueue) SubmittedPositions() []pos.Pos {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]pos.Pos, len(q.submitted))
	copy(out, q.submitted)
	return out
}

// CancelGenTasks implements Queue.
func (q *FakeQueue) CancelGenTasks(positions []pos.Pos) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range positions {
		if cancel, ok := q.cancels[p]; ok {
			cancel()
		}
	}
}

// HighestDataDetail implements Queue. The fake generates native chunks.
func (q *FakeQueue) HighestDataDetail() uint8 { return 0 }

// LowestDataDetail implements Queue.
func (q *FakeQueue) LowestDataDetail() uint8 { return source.HighDetailThreshold }
