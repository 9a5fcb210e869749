package blobstore

import (
	"context"
	"sync"
)

// Op is one recorded store operation.
type Op struct {
	Kind string // "load", "put", "has", "delete", "deleteAll", "list"
	Key  string
	Size int // record size for puts
}

// SpyStore wraps a Store and records every operation, standing in for
// the real storage in durability tests.
type SpyStore struct {
	Inner Store

	mu  sync.Mutex
	ops []Op
}

// NewSpyStore wraps inner. A nil inner defaults to a fresh MemoryStore.
func NewSpyStore(inner Store) *SpyStore {
	if inner == nil {
		inner = NewMemoryStore()
	}
	return &SpyStore{Inner: inner}
}

func (s *SpyStore) record(op Op) {
	s.mu.Lock()
	s.ops = append(s.ops, op)
	s.mu.Unlock()
}

// Ops returns a snapshot of the recorded operations.
func (s *SpyStore) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Op, len(s.ops))
	copy(out, s.ops)
	return out
}

// CountKind returns how many operations of one kind were recorded.
func (s *SpyStore) CountKind(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range s.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Reset clears the recorded operations.
func (s *SpyStore) Reset() {
	s.mu.Lock()
	s.ops = nil
	s.mu.Unlock()
}

func (s *SpyStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.record(Op{Kind: "load", Key: key})
	return s.Inner.Load(ctx, key)
}

func (s *SpyStore) Put(ctx context.Context, key string, data []byte) error {
	s.record(Op{Kind: "put", Key: key, Size: len(data)})
	return s.Inner.Put(ctx, key, data)
}

func (s *SpyStore) Has(ctx context.Context, key string) (bool, error) {
	s.record(Op{Kind: "has", Key: key})
	return s.Inner.Has(ctx, key)
}

func (s *SpyStore) Delete(ctx context.Context, key string) error {
	s.record(Op{Kind: "delete", Key: key})
	return s.Inner.Delete(ctx, key)
}

func (s *SpyStore) DeleteAll(ctx context.Context) error {
	s.record(Op{Kind: "deleteAll"})
	return s.Inner.DeleteAll(ctx)
}

func (s *SpyStore) List(ctx context.Context) ([]string, error) {
	s.record(Op{Kind: "list"})
	return s.Inner.List(ctx)
}
