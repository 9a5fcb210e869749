// Package metafile implements the cache entry owning the lifecycle of
// one position's data source: load, incremental write application,
// eviction and persistence. One meta-file exists per position ever
// touched; entries are only destroyed at provider shutdown.
package metafile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hupe1980/lodgo/blobstore"
	"github.com/hupe1980/lodgo/internal/future"
	"github.com/hupe1980/lodgo/internal/workerpool"
	"github.com/hupe1980/lodgo/persistence"
	"github.com/hupe1980/lodgo/pos"
	"github.com/hupe1980/lodgo/resource"
	"github.com/hupe1980/lodgo/source"
)

// Observer receives cache-entry events. Implementations must be safe
// for concurrent use.
type Observer interface {
	// RecordLoad is called after every load/update cycle.
	RecordLoad(duration time.Duration, err error)
	// RecordFlush is called after every persisted record.
	RecordFlush(bytes int, err error)
	// RecordEviction is called when a source is dropped from memory.
	RecordEviction()
	// RecordCorruption is called when a damaged record is deleted.
	RecordCorruption()
}

// NoopObserver discards all events.
type NoopObserver struct{}

func (NoopObserver) RecordLoad(time.Duration, error) {}
func (NoopObserver) RecordFlush(int, error)          {}
func (NoopObserver) RecordEviction()                 {}
func (NoopObserver) RecordCorruption()               {}

// Deps bundles the collaborators shared by every meta-file of one
// provider.
type Deps struct {
	Store      blobstore.Store
	IOPool     *workerpool.Pool
	RC         *resource.Controller
	Logger     *slog.Logger
	Observer   Observer
	Compressor persistence.Compressor
	// DataVersion stamps new records, bumped by the host when external
	// data (block registries, biome tables) changes meaning.
	DataVersion uint32
	// BaseCtx is the provider lifecycle context driving scheduled
	// flushes. Cancelled at shutdown.
	BaseCtx context.Context
	// OnRecordDeleted, when set, is invoked after a stored record is
	// removed, either by corruption recovery or an empty-source flush.
	OnRecordDeleted func(p pos.Pos)
}

func (d *Deps) normalize() {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Observer == nil {
		d.Observer = NoopObserver{}
	}
	if d.Compressor == nil {
		d.Compressor = persistence.LZ4Compressor{}
	}
	if d.BaseCtx == nil {
		d.BaseCtx = context.Background()
	}
}

// MetaFile owns one position's cache entry.
type MetaFile struct {
	pos  pos.Pos
	deps Deps

	// slot guarantees at most one in-flight load/update per position.
	slot future.Slot[source.DataSource]

	cached softSlot
	queue  *writeQueue

	dirty    atomic.Bool
	onDisk   atomic.Bool
	checksum atomic.Uint32
}

// New creates the entry for p. existsOnDisk seeds the on-disk flag from
// the provider's startup scan.
func New(p pos.Pos, existsOnDisk bool, deps Deps) *MetaFile {
	deps.normalize()
	m := &MetaFile{
		pos:    p,
		deps:   deps,
		cached: softSlot{rc: deps.RC},
		queue:  newWriteQueue(),
	}
	m.onDisk.Store(existsOnDisk)
	return m
}

// Pos returns the entry's position.
func (m *MetaFile) Pos() pos.Pos { return m.pos }

// ExistsOnDisk reports whether a record is currently persisted.
func (m *MetaFile) ExistsOnDisk() bool { return m.onDisk.Load() }

// Checksum returns the checksum of the last record read or written.
func (m *MetaFile) Checksum() uint32 { return m.checksum.Load() }

// IsResident reports whether a built source is currently in memory.
func (m *MetaFile) IsResident() bool {
	_, ok := m.cached.get()
	return ok
}

// HasPendingWrites reports whether updates await the next flush.
func (m *MetaFile) HasPendingWrites() bool {
	return !m.queue.empty() || m.dirty.Load()
}

// Idle reports whether no load is in flight and nothing is pending.
// Only idle entries may be pooled or reset.
func (m *MetaFile) Idle() bool {
	return m.slot.Pending() == nil && !m.HasPendingWrites()
}

// GetOrLoad returns the entry's data source. The in-flight future is
// shared by all concurrent callers; a fresh cached source with no
// pending writes is returned immediately; otherwise exactly one
// load-from-storage (or create-if-absent) cycle starts.
//
// Callers passing shouldCache=false participate in the load but do not
// force the result into the long-lived slot, so disposable sampling
// reads cannot defeat eviction.
func (m *MetaFile) GetOrLoad(ctx context.Context, shouldCache bool) *future.Future[source.DataSource] {
	if f := m.slot.Pending(); f != nil {
		return f
	}
	if m.queue.empty() && !m.dirty.Load() {
		if ds, ok := m.cached.get(); ok {
			return future.Completed(ds)
		}
	}

	p, f, started := m.slot.Begin()
	if !started {
		return f
	}
	if err := m.deps.IOPool.Submit(ctx, func() { m.runCycle(ctx, p, f, shouldCache) }); err != nil {
		m.slot.Clear(f)
		p.Fail(err)
		return f
	}
	return f
}

// AddToWriteQueue enqueues one raw chunk update and schedules a flush.
// Safe for many concurrent appenders.
func (m *MetaFile) AddToWriteQueue(u *source.ChunkUpdate) {
	m.queue.append(u)
	m.dirty.Store(true)
	// Fire-and-forget: the slot deduplicates concurrent cycles.
	m.GetOrLoad(m.deps.BaseCtx, true)
}

// AddSampleSource enqueues a finer-detail source whose columns are to be
// folded into this entry's source on the next drain. Samples apply
// before chunk updates in the same batch, so fresh observations win.
func (m *MetaFile) AddSampleSource(src source.DataSource) {
	if !m.pos.Contains(src.SectionPos()) {
		panic(fmt.Sprintf("metafile: sample source %v outside section %v", src.SectionPos(), m.pos))
	}
	m.queue.appendSample(src)
	m.dirty.Store(true)
}

// FlushAndSave forces pending updates to storage. When nothing is
// pending the returned future resolves immediately, carrying the
// resident source or nil when the entry is not in memory.
func (m *MetaFile) FlushAndSave(ctx context.Context) *future.Future[source.DataSource] {
	if !m.HasPendingWrites() {
		if f := m.slot.Pending(); f != nil {
			return f
		}
		ds, _ := m.cached.get()
		return future.Completed(ds)
	}
	return m.GetOrLoad(ctx, true)
}

// Reset retargets a pooled entry at a new position, dropping any
// resident source. Only valid on an idle entry: no load in flight and
// no pending writes. Violations are programming errors.
func (m *MetaFile) Reset(p pos.Pos, existsOnDisk bool) {
	if m.slot.Pending() != nil || m.HasPendingWrites() {
		panic("metafile: reset of an active entry")
	}
	m.cached.evict()
	m.pos = p
	m.dirty.Store(false)
	m.onDisk.Store(existsOnDisk)
	m.checksum.Store(0)
}

// Evict drops the resident source. The entry reloads from storage on
// next access.
func (m *MetaFile) Evict() {
	if m.cached.evict() {
		m.deps.Observer.RecordEviction()
	}
}

// runCycle is the single in-flight load/update cycle: load or create
// the base source, drain the write queue into it, attempt promotion,
// persist when anything changed, then publish the result.
func (m *MetaFile) runCycle(ctx context.Context, p *future.Promise[source.DataSource], f *future.Future[source.DataSource], shouldCache bool) {
	start := time.Now()

	ds, created, fromCache, err := m.loadBase(ctx)
	if err != nil {
		m.deps.Observer.RecordLoad(time.Since(start), err)
		m.slot.Clear(f)
		p.Fail(err)
		return
	}

	batch := m.queue.swap()
	m.dirty.Store(false)
	if !batch.empty() && fromCache {
		// Earlier callers may still read the resident source; mutate a
		// copy so their view never changes underneath them.
		ds = ds.Clone()
	}
	for _, src := range batch.samples {
		ds.SampleFrom(src)
	}
	for _, u := range batch.updates {
		ds.Update(u)
	}
	ds = ds.TryPromote()

	changed := created || !batch.empty()
	persistErr := error(nil)
	if changed {
		persistErr = m.persist(ctx, ds)
	}

	// A changed cycle replaces a stale resident source even when the
	// caller did not ask for caching, so cache and record never
	// diverge.
	if shouldCache || (fromCache && changed) {
		if !m.cached.set(ds) {
			m.deps.Observer.RecordEviction()
		}
	}
	m.deps.Observer.RecordLoad(time.Since(start), persistErr)

	// Clear before resolving so a caller woken by the future always
	// observes an idle entry.
	m.slot.Clear(f)
	if persistErr != nil {
		// Transient save failure: keep the updates' effect in memory,
		// stay dirty for a retry, and surface the failure to waiters.
		m.dirty.Store(true)
		p.Fail(persistErr)
	} else {
		p.Complete(ds)
	}

	// Updates appended after the drain swap joined this cycle's future
	// without a cycle of their own; schedule the follow-up flush.
	if !m.queue.empty() {
		m.GetOrLoad(m.deps.BaseCtx, true)
	}
}

// loadBase returns the entry's current base source, reading storage if
// nothing is resident. created reports that a fresh empty source was
// synthesized (and therefore needs persisting once populated).
func (m *MetaFile) loadBase(ctx context.Context) (ds source.DataSource, created, fromCache bool, err error) {
	if ds, ok := m.cached.get(); ok {
		return ds, false, true, nil
	}
	if !m.onDisk.Load() {
		return source.NewIncomplete(m.pos), true, false, nil
	}

	key := m.pos.Key()
	record, err := m.deps.Store.Load(ctx, key)
	if errors.Is(err, blobstore.ErrNotFound) {
		m.onDisk.Store(false)
		return source.NewIncomplete(m.pos), true, false, nil
	}
	if err != nil {
		return nil, false, false, err
	}

	sum, payload, err := persistence.DecodeRecord(record)
	if err == nil {
		ds, err = source.Decode(ctx, sum, m.pos, payload)
	}
	if err != nil {
		if isCancellation(err) {
			// Shutdown, not damage: abort without touching the record.
			return nil, false, false, err
		}
		// Corrupted record: delete and recreate from scratch. The
		// normal sampling/generation path repopulates it; the error
		// stops here.
		m.deps.Observer.RecordCorruption()
		m.deps.Logger.Warn("deleting corrupted section record",
			"pos", m.pos, "err", err)
		if delErr := m.deps.Store.Delete(ctx, key); delErr != nil && !isCancellation(delErr) {
			m.deps.Logger.Warn("deleting corrupted section record failed",
				"pos", m.pos, "err", delErr)
		}
		m.onDisk.Store(false)
		if m.deps.OnRecordDeleted != nil {
			m.deps.OnRecordDeleted(m.pos)
		}
		return source.NewIncomplete(m.pos), true, false, nil
	}

	m.checksum.Store(sum.Checksum)
	return ds, false, false, nil
}

// persist writes the source to storage, or deletes the stored record
// when the source is empty. Cancellation during serialization is a
// silent abort: the entry stays dirty and the next session's flush
// retries.
func (m *MetaFile) persist(ctx context.Context, ds source.DataSource) error {
	key := m.pos.Key()

	if ds.IsEmpty() {
		if !m.onDisk.Load() {
			return nil
		}
		if err := m.deps.Store.Delete(ctx, key); err != nil {
			if isCancellation(err) {
				m.dirty.Store(true)
				return nil
			}
			return err
		}
		m.onDisk.Store(false)
		if m.deps.OnRecordDeleted != nil {
			m.deps.OnRecordDeleted(m.pos)
		}
		return nil
	}

	payload, err := source.EncodePayload(ds)
	if err != nil {
		return err
	}
	record, err := persistence.EncodeRecord(persistence.Summary{
		DataType:    ds.Tag(),
		Detail:      m.pos.Detail,
		GenStep:     uint8(ds.GenStep()),
		DataVersion: m.deps.DataVersion,
	}, payload, m.deps.Compressor)
	if err != nil {
		return err
	}

	if err := m.deps.RC.AcquireIO(ctx, len(record)); err != nil {
		if isCancellation(err) {
			m.dirty.Store(true)
			return nil
		}
		return err
	}
	if err := m.deps.Store.Put(ctx, key, record); err != nil {
		if isCancellation(err) {
			m.dirty.Store(true)
			return nil
		}
		m.deps.Observer.RecordFlush(len(record), err)
		return err
	}

	m.checksum.Store(persistence.Checksum(record[persistence.SummarySize:]))
	m.onDisk.Store(true)
	m.deps.Observer.RecordFlush(len(record), nil)
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
