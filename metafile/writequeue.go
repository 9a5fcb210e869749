package metafile

import (
	"sync"

	"github.com/hupe1980/lodgo/source"
)

// pending is one drained batch: whole-source samples from hierarchy
// backfill and raw chunk updates. Samples are applied first so a fresh
// chunk observation always wins over coarser sampled data.
type pending struct {
	samples []source.DataSource
	updates []*source.ChunkUpdate
}

func (p *pending) empty() bool {
	return len(p.samples) == 0 && len(p.updates) == 0
}

// opList is the concurrent-safe backing queue of pending operations.
type opList struct {
	mu  sync.Mutex
	ops pending
}

func (l *opList) pushUpdate(u *source.ChunkUpdate) {
	l.mu.Lock()
	l.ops.updates = append(l.ops.updates, u)
	l.mu.Unlock()
}

func (l *opList) pushSample(src source.DataSource) {
	l.mu.Lock()
	l.ops.samples = append(l.ops.samples, src)
	l.mu.Unlock()
}

func (l *opList) empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ops.empty()
}

// writeQueue double-buffers pending operations. Appenders share the
// outer read lock so the high-frequency append path never waits on a
// drain; the drain swaps the backing list under the write lock, which
// only blocks for the instant of the pointer swap, never for the
// duration of applying the drained updates.
type writeQueue struct {
	mu   sync.RWMutex
	list *opList
}

func newWriteQueue() *writeQueue {
	return &writeQueue{list: &opList{}}
}

// append enqueues one chunk update. Many appenders may run concurrently.
func (q *writeQueue) append(u *source.ChunkUpdate) {
	q.mu.RLock()
	q.list.pushUpdate(u)
	q.mu.RUnlock()
}

// appendSample enqueues one sampled source.
func (q *writeQueue) appendSample(src source.DataSource) {
	q.mu.RLock()
	q.list.pushSample(src)
	q.mu.RUnlock()
}

// swap replaces the live list with an empty one and returns the drained
// batch. Appends in progress complete before the swap is observed.
func (q *writeQueue) swap() pending {
	q.mu.Lock()
	old := q.list
	q.list = &opList{}
	q.mu.Unlock()

	old.mu.Lock()
	defer old.mu.Unlock()
	return old.ops
}

// empty reports whether nothing is pending.
func (q *writeQueue) empty() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.list.empty()
}
