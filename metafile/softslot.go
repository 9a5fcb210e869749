package metafile

import (
	"sync"

	"github.com/hupe1980/lodgo/resource"
	"github.com/hupe1980/lodgo/source"
)

// softSlot is the explicit two-state cache slot holding a position's
// built data source: Resident(data) or Evicted. Residency is accounted
// against the shared resource controller; a denied reservation means
// the source stays evicted and is rebuilt from storage on next access.
// The slot is never "absent": evicted is a first-class state, so
// callers always get an unambiguous answer.
type softSlot struct {
	rc *resource.Controller

	mu    sync.Mutex
	ds    source.DataSource // nil when evicted
	bytes int64
}

// get returns the resident source, or ok=false when evicted.
func (s *softSlot) get() (source.DataSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return nil, false
	}
	return s.ds, true
}

// set makes ds resident, replacing any previous occupant. Returns false
// when the memory budget denies the reservation; the slot is then left
// evicted.
func (s *softSlot) set(ds source.DataSource) bool {
	size := estimateSize(ds)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ds != nil {
		s.rc.ReleaseMemory(s.bytes)
		s.ds = nil
		s.bytes = 0
	}
	if !s.rc.TryAcquireMemory(size) {
		return false
	}
	s.ds = ds
	s.bytes = size
	return true
}

// evict drops the resident source. Reports whether anything was
// resident.
func (s *softSlot) evict() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ds == nil {
		return false
	}
	s.rc.ReleaseMemory(s.bytes)
	s.ds = nil
	s.bytes = 0
	return true
}

// estimateSize approximates a source's resident footprint for memory
// accounting. Columns dominate; per-column slice headers and the
// identity map are charged flat.
func estimateSize(ds source.DataSource) int64 {
	if ds == nil {
		return 0
	}
	var bytes int64
	for z := 0; z < source.Width; z++ {
		for x := 0; x < source.Width; x++ {
			bytes += 24 + 8*int64(len(ds.Column(x, z)))
		}
	}
	bytes += int64(ds.IDMap().Len()) * 64
	return bytes
}
