package lodgo

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/lodgo/pos"
)

// diskIndex tracks which section positions are materialized in storage,
// per detail level, plus an ancestor-coverage index so the quad-tree
// descent can prune subtrees with no stored descendants without issuing
// per-child existence checks against the store.
//
// Coverage is add-only: a deleted record leaves its ancestors marked,
// which costs at worst one wasted descent, never a missed contributor.
type diskIndex struct {
	maxDetail uint8

	mu      sync.RWMutex
	stored  map[uint8]*roaring64.Bitmap
	covered map[uint8]*roaring64.Bitmap
}

func newDiskIndex(maxDetail uint8) *diskIndex {
	return &diskIndex{
		maxDetail: maxDetail,
		stored:    make(map[uint8]*roaring64.Bitmap),
		covered:   make(map[uint8]*roaring64.Bitmap),
	}
}

func (ix *diskIndex) bitmap(m map[uint8]*roaring64.Bitmap, detail uint8) *roaring64.Bitmap {
	b, ok := m[detail]
	if !ok {
		b = roaring64.New()
		m[detail] = b
	}
	return b
}

// add marks p as materialized and every ancestor up to maxDetail as
// covered.
func (ix *diskIndex) add(p pos.Pos) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.bitmap(ix.stored, p.Detail).Add(p.PackedKey())
	for d := p.Detail; d <= ix.maxDetail; d++ {
		ix.bitmap(ix.covered, d).Add(p.ConvertDetail(d).PackedKey())
	}
}

// remove unmarks a deleted record. Coverage is deliberately left as-is.
func (ix *diskIndex) remove(p pos.Pos) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if b, ok := ix.stored[p.Detail]; ok {
		b.Remove(p.PackedKey())
	}
}

// hasStored reports whether p itself is materialized.
func (ix *diskIndex) hasStored(p pos.Pos) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	b, ok := ix.stored[p.Detail]
	return ok && b.Contains(p.PackedKey())
}

// hasCoverage reports whether p or any descendant of p is materialized.
func (ix *diskIndex) hasCoverage(p pos.Pos) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	b, ok := ix.covered[p.Detail]
	return ok && b.Contains(p.PackedKey())
}

// len returns the number of materialized positions across all details.
func (ix *diskIndex) len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var n uint64
	for _, b := range ix.stored {
		n += b.GetCardinality()
	}
	return int(n)
}
