package lodgo

import (
	"sync"

	"github.com/hupe1980/lodgo/metafile"
	"github.com/hupe1980/lodgo/pos"
)

// transientFileCap bounds the free list of pooled cache entries used
// only as disposable sampling sources during hierarchical builds.
const transientFileCap = 25

// filePool recycles cache entries for positions read once during a
// descent and never tracked afterwards, so sampling-heavy builds do not
// churn allocations.
type filePool struct {
	deps metafile.Deps

	mu   sync.Mutex
	free []*metafile.MetaFile
}

func newFilePool(deps metafile.Deps) *filePool {
	return &filePool{deps: deps}
}

// acquire returns an entry retargeted at p.
func (fp *filePool) acquire(p pos.Pos, existsOnDisk bool) *metafile.MetaFile {
	fp.mu.Lock()
	var m *metafile.MetaFile
	if n := len(fp.free); n > 0 {
		m = fp.free[n-1]
		fp.free[n-1] = nil
		fp.free = fp.free[:n-1]
	}
	fp.mu.Unlock()

	if m == nil {
		return metafile.New(p, existsOnDisk, fp.deps)
	}
	m.Reset(p, existsOnDisk)
	return m
}

// release returns an entry to the free list. Entries still loading or
// holding pending writes are dropped instead of pooled.
func (fp *filePool) release(m *metafile.MetaFile) {
	if !m.Idle() {
		return
	}
	fp.mu.Lock()
	if len(fp.free) < transientFileCap {
		fp.free = append(fp.free, m)
	}
	fp.mu.Unlock()
}
