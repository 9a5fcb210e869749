package lodgo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/lodgo/blobstore"
	"github.com/hupe1980/lodgo/genqueue"
	"github.com/hupe1980/lodgo/internal/future"
	"github.com/hupe1980/lodgo/internal/workerpool"
	"github.com/hupe1980/lodgo/metafile"
	"github.com/hupe1980/lodgo/pos"
	"github.com/hupe1980/lodgo/resource"
	"github.com/hupe1980/lodgo/source"
)

// Provider is the hierarchical section provider: it owns one cache
// entry per position ever touched, builds coarse sections by recursive
// quad-tree sampling of materialized finer sections, fans chunk updates
// out into every tracked detail level, and bridges missing areas to the
// generation queue.
//
// All methods are safe for concurrent use.
type Provider struct {
	store   blobstore.Store
	queue   genqueue.Queue
	logger  *Logger
	metrics MetricsCollector
	rc      *resource.Controller
	ioPool  *workerpool.Pool

	deps      metafile.Deps
	maxDetail uint8
	buildSem  *semaphore.Weighted // nil when unbounded

	mu    sync.Mutex
	files map[pos.Pos]*metafile.MetaFile

	index   *diskIndex
	pending *pendingSet
	pool    *filePool

	lifecycle context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
}

// New creates a provider over the given store. The store is scanned
// once to build the materialized-position index driving descent
// pruning; unparseable keys are skipped and logged.
func New(store blobstore.Store, optFns ...Option) (*Provider, error) {
	opts := applyOptions(optFns)

	var rc *resource.Controller
	if opts.resourceCfg != nil {
		rc = resource.NewController(*opts.resourceCfg)
	}
	ioPool := workerpool.New(opts.ioWorkers)
	lifecycle, cancel := context.WithCancel(context.Background())

	pr := &Provider{
		store:     store,
		queue:     opts.queue,
		logger:    opts.logger,
		metrics:   opts.metrics,
		rc:        rc,
		ioPool:    ioPool,
		maxDetail: opts.maxDetail,
		files:     make(map[pos.Pos]*metafile.MetaFile),
		index:     newDiskIndex(opts.maxDetail),
		pending:   newPendingSet(),
		lifecycle: lifecycle,
		cancel:    cancel,
	}
	if opts.buildWorkers > 0 {
		pr.buildSem = semaphore.NewWeighted(int64(opts.buildWorkers))
	}
	pr.deps = metafile.Deps{
		Store:       store,
		IOPool:      ioPool,
		RC:          rc,
		Logger:      opts.logger.Logger,
		Observer:    metafileObserver{mc: opts.metrics},
		Compressor:  opts.compressor,
		DataVersion: opts.dataVersion,
		BaseCtx:     lifecycle,
		// Keep the descent index honest when corruption recovery or an
		// empty-source flush removes a record. Ancestor coverage stays.
		OnRecordDeleted: pr.index.remove,
	}
	pr.pool = newFilePool(pr.deps)

	keys, err := store.List(lifecycle)
	if err != nil {
		cancel()
		ioPool.Close()
		return nil, fmt.Errorf("lodgo: scanning storage: %w", err)
	}
	skipped := 0
	for _, key := range keys {
		p, err := pos.ParseKey(key)
		if err != nil {
			skipped++
			continue
		}
		pr.index.add(p)
	}
	pr.logger.LogStartupScan(lifecycle, pr.index.len(), skipped)
	return pr, nil
}

// GetOrBuild returns the section's data source, synthesizing it from
// every already-materialized finer section that geometrically
// contributes when the cached data is incomplete. The result may still
// be incomplete: with a generation queue configured, the missing areas
// are requested asynchronously and a later call picks them up.
func (pr *Provider) GetOrBuild(ctx context.Context, p pos.Pos) (source.DataSource, error) {
	start := time.Now()
	ds, err := pr.getOrBuild(ctx, p)
	pr.metrics.RecordBuild(time.Since(start), err)
	pr.logger.LogBuild(ctx, p, err == nil && ds.IsComplete(), err)
	return ds, err
}

func (pr *Provider) getOrBuild(ctx context.Context, p pos.Pos) (source.DataSource, error) {
	if pr.closed.Load() {
		return nil, ErrClosed
	}
	if p.Detail < source.SizeOffset || p.Detail > pr.maxDetail {
		return nil, &ErrDetailOutOfRange{Detail: p.Detail, Min: source.SizeOffset, Max: pr.maxDetail}
	}

	f := pr.file(p)
	ds, err := f.GetOrLoad(ctx, true).Wait(ctx)
	if err != nil {
		return nil, err
	}
	if ds.IsComplete() {
		pr.metrics.RecordCacheHit()
		return ds, nil
	}
	pr.metrics.RecordCacheMiss()

	contribs, missing, err := pr.collect(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(contribs) > 0 {
		for _, src := range contribs {
			f.AddSampleSource(src)
		}
		ds, err = f.FlushAndSave(ctx).Wait(ctx)
		if err != nil {
			return nil, err
		}
		if f.ExistsOnDisk() {
			pr.index.add(p)
		}
	}
	if !ds.IsComplete() {
		pr.requestGeneration(missing)
	}
	return ds, nil
}

// collect walks p's subtree gathering one contributing source per
// materialized branch, pruning at the first level with no stored
// descendant. The returned missing positions are the pruned leaves,
// candidates for generation.
func (pr *Provider) collect(ctx context.Context, p pos.Pos) ([]source.DataSource, []pos.Pos, error) {
	if p.Detail <= source.SizeOffset {
		// Nothing finer than the minimum section detail exists.
		return nil, []pos.Pos{p}, nil
	}

	var (
		results      [pos.ChildCount]source.DataSource
		childMissing [pos.ChildCount][]pos.Pos
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < pos.ChildCount; i++ {
		c := p.Child(i)
		switch {
		case pr.index.hasStored(c) || pr.hasLiveFile(c):
			g.Go(func() error {
				src, err := pr.loadForSampling(gctx, c)
				if err != nil {
					return err
				}
				if src != nil && !src.IsEmpty() {
					results[i] = src
				} else {
					childMissing[i] = []pos.Pos{c}
				}
				return nil
			})
		case pr.index.hasCoverage(c):
			g.Go(func() error {
				subContribs, subMissing, err := pr.collect(gctx, c)
				if err != nil {
					return err
				}
				if len(subContribs) > 0 {
					agg := source.NewIncomplete(c)
					for _, s := range subContribs {
						agg.SampleFrom(s)
					}
					results[i] = agg.TryPromote()
				}
				childMissing[i] = subMissing
				return nil
			})
		default:
			childMissing[i] = []pos.Pos{c}
		}
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		contribs []source.DataSource
		missing  []pos.Pos
	)
	for i := 0; i < pos.ChildCount; i++ {
		if results[i] != nil {
			contribs = append(contribs, results[i])
		}
		missing = append(missing, childMissing[i]...)
	}
	return contribs, missing, nil
}

// loadForSampling reads one materialized position as a disposable
// sampling source. Untracked positions go through the transient file
// pool so the read does not defeat eviction or grow the entry map.
func (pr *Provider) loadForSampling(ctx context.Context, p pos.Pos) (source.DataSource, error) {
	if pr.buildSem != nil {
		if err := pr.buildSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer pr.buildSem.Release(1)
	}

	if f, ok := pr.liveFile(p); ok {
		ds, err := f.GetOrLoad(ctx, false).Wait(ctx)
		if err != nil {
			return nil, err
		}
		// The live file keeps draining updates into its source; sample
		// from a copy so the descent sees a consistent snapshot.
		return ds.Clone(), nil
	}
	tf := pr.pool.acquire(p, true)
	ds, err := tf.GetOrLoad(ctx, false).Wait(ctx)
	pr.pool.release(tf)
	return ds, err
}

// ApplyChunkUpdate folds one freshly observed chunk into every tracked
// section containing it, one per detail level, and schedules their
// flushes. The update must be at the native chunk detail; anything else
// is a programming error.
func (pr *Provider) ApplyChunkUpdate(u *source.ChunkUpdate) error {
	if pr.closed.Load() {
		return ErrClosed
	}
	if u.Pos.Detail != source.ChunkDetail {
		panic(fmt.Sprintf("lodgo: chunk update at detail %d, want %d", u.Pos.Detail, source.ChunkDetail))
	}

	for d := uint8(source.SizeOffset); d <= pr.maxDetail; d++ {
		sp := u.Pos.ConvertDetail(d)
		pr.file(sp).AddToWriteQueue(u)
		// Mark eagerly: the record lands as soon as the queued flush
		// runs, and descents must already see the branch.
		pr.index.add(sp)
	}
	return nil
}

// FlushAndSave forces every entry with pending writes to storage and
// waits for the results.
func (pr *Provider) FlushAndSave(ctx context.Context) error {
	if pr.closed.Load() {
		return ErrClosed
	}
	return pr.flushAll(ctx)
}

func (pr *Provider) flushAll(ctx context.Context) error {
	pr.mu.Lock()
	files := make([]*metafile.MetaFile, 0, len(pr.files))
	for _, f := range pr.files {
		files = append(files, f)
	}
	pr.mu.Unlock()

	futures := make([]*future.Future[source.DataSource], len(files))
	for i, f := range files {
		if f.HasPendingWrites() {
			futures[i] = f.FlushAndSave(ctx)
		}
	}

	var errs []error
	flushed := 0
	for i, fut := range futures {
		if fut == nil {
			continue
		}
		flushed++
		if _, err := fut.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", files[i].Pos(), err))
			continue
		}
		if files[i].ExistsOnDisk() {
			pr.index.add(files[i].Pos())
		}
	}
	err := errors.Join(errs...)
	pr.logger.LogFlush(ctx, flushed, err)
	return err
}

// Close cancels outstanding generation tasks, flushes pending writes
// and shuts the worker pool down. Idempotent; operations on a closed
// provider return ErrClosed.
func (pr *Provider) Close() error {
	if !pr.closed.CompareAndSwap(false, true) {
		return nil
	}

	if pr.queue != nil {
		if outstanding := pr.pending.snapshot(); len(outstanding) > 0 {
			pr.queue.CancelGenTasks(outstanding)
		}
	}
	pr.wg.Wait()

	err := pr.flushAll(context.Background())
	pr.cancel()
	pr.ioPool.Close()
	return err
}

// MemoryUsage returns the tracked resident-source memory in bytes.
func (pr *Provider) MemoryUsage() int64 {
	return pr.rc.MemoryUsage()
}

// file returns the tracked entry for p, creating it on first touch.
// Entries are never destroyed before Close.
func (pr *Provider) file(p pos.Pos) *metafile.MetaFile {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	f, ok := pr.files[p]
	if !ok {
		f = metafile.New(p, pr.index.hasStored(p), pr.deps)
		pr.files[p] = f
	}
	return f
}

func (pr *Provider) hasLiveFile(p pos.Pos) bool {
	_, ok := pr.liveFile(p)
	return ok
}

func (pr *Provider) liveFile(p pos.Pos) (*metafile.MetaFile, bool) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	f, ok := pr.files[p]
	return f, ok
}

// requestGeneration relays missing leaf positions to the generation
// queue, deduplicating against tasks already in flight.
func (pr *Provider) requestGeneration(missing []pos.Pos) {
	if pr.queue == nil || pr.closed.Load() {
		return
	}
	for _, p := range missing {
		if p.Detail < pr.queue.HighestDataDetail() || p.Detail > pr.queue.LowestDataDetail() {
			continue
		}
		if !pr.pending.add(p) {
			continue
		}
		ch, err := pr.queue.SubmitGenTask(pr.lifecycle, p, source.GenStepLight, &genTracker{pr: pr})
		if err != nil {
			pr.pending.remove(p)
			pr.logger.WarnContext(pr.lifecycle, "generation task submission failed",
				"pos", p.Key(), "error", err)
			continue
		}
		pr.wg.Add(1)
		go pr.watchGenTask(p, ch)
	}
}

// watchGenTask waits for one generation task and, on success, folds the
// delivered chunks into the target entry.
func (pr *Provider) watchGenTask(p pos.Pos, ch <-chan genqueue.Result) {
	defer pr.wg.Done()

	result, ok := <-ch
	if !ok {
		result = genqueue.ResultCancelled
	}
	pr.pending.remove(p)
	pr.metrics.RecordGenTask(result)
	pr.logger.LogGenTask(pr.lifecycle, p, result)

	if result != genqueue.ResultSuccess || pr.closed.Load() {
		return
	}
	f := pr.file(p)
	if _, err := f.FlushAndSave(pr.lifecycle).Value(); err != nil {
		return
	}
	if f.ExistsOnDisk() {
		pr.index.add(p)
	}
}

// genTracker is the consumer handed to the generation queue. Delivered
// chunks flow through the regular update fan-out; liveness is tied to
// the provider lifecycle since entries are never destroyed before
// shutdown.
type genTracker struct {
	pr *Provider
}

func (t *genTracker) Consume(u *source.ChunkUpdate) {
	_ = t.pr.ApplyChunkUpdate(u)
}

func (t *genTracker) IsAlive() bool {
	return !t.pr.closed.Load()
}

// pendingSet tracks generation positions in flight, one bitmap per
// detail level.
type pendingSet struct {
	mu       sync.Mutex
	byDetail map[uint8]*roaring64.Bitmap
}

func newPendingSet() *pendingSet {
	return &pendingSet{byDetail: make(map[uint8]*roaring64.Bitmap)}
}

// add marks p as in flight. Returns false when it already was.
func (s *pendingSet) add(p pos.Pos) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byDetail[p.Detail]
	if !ok {
		b = roaring64.New()
		s.byDetail[p.Detail] = b
	}
	return b.CheckedAdd(p.PackedKey())
}

func (s *pendingSet) remove(p pos.Pos) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.byDetail[p.Detail]; ok {
		b.Remove(p.PackedKey())
	}
}

// snapshot returns every in-flight position.
func (s *pendingSet) snapshot() []pos.Pos {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []pos.Pos
	for detail, b := range s.byDetail {
		it := b.Iterator()
		for it.HasNext() {
			k := it.Next()
			out = append(out, pos.New(detail, int32(uint32(k>>32)), int32(uint32(k))))
		}
	}
	return out
}
