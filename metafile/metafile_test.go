package metafile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lodgo/blobstore"
	"github.com/hupe1980/lodgo/column"
	"github.com/hupe1980/lodgo/idmap"
	"github.com/hupe1980/lodgo/internal/workerpool"
	"github.com/hupe1980/lodgo/pos"
	"github.com/hupe1980/lodgo/source"
)

type recordingObserver struct {
	mu          sync.Mutex
	loads       int
	loadErrs    int
	flushes     int
	flushBytes  int
	evictions   int
	corruptions int
}

func (r *recordingObserver) RecordLoad(_ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	if err != nil {
		r.loadErrs++
	}
}

func (r *recordingObserver) RecordFlush(bytes int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	if err == nil {
		r.flushBytes += bytes
	}
}

func (r *recordingObserver) RecordEviction() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions++
}

func (r *recordingObserver) RecordCorruption() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corruptions++
}

func (r *recordingObserver) snapshot() recordingObserver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recordingObserver{
		loads:       r.loads,
		loadErrs:    r.loadErrs,
		flushes:     r.flushes,
		flushBytes:  r.flushBytes,
		evictions:   r.evictions,
		corruptions: r.corruptions,
	}
}

func newTestDeps(t *testing.T, store blobstore.Store, obs Observer) Deps {
	t.Helper()
	ioPool := workerpool.New(4)
	t.Cleanup(ioPool.Close)
	return Deps{
		Store:    store,
		IOPool:   ioPool,
		Observer: obs,
	}
}

// testChunk builds an update whose columns all carry an id unique to the
// chunk coordinate, so downsampled results are traceable to the chunk
// that produced them.
func testChunk(ids *idmap.Map, cx, cz int32, step source.GenStep) *source.ChunkUpdate {
	u := &source.ChunkUpdate{
		Pos:     pos.New(source.ChunkDetail, cx, cz),
		GenStep: step,
		IDMap:   ids,
	}
	id := ids.AddIfAbsent("minecraft:plains", fmt.Sprintf("minecraft:stone/%d,%d", cx, cz))
	for z := 0; z < source.ChunkWidth; z++ {
		for x := 0; x < source.ChunkWidth; x++ {
			u.SetColumn(x, z, column.Column{column.Pack(id, 0, 64, 15, 0)})
		}
	}
	return u
}

func waitResolved[T any](t *testing.T, f interface {
	Wait(ctx context.Context) (T, error)
}) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestGetOrLoadCreatesEmptySource(t *testing.T) {
	spy := blobstore.NewSpyStore(nil)
	m := New(pos.New(10, 0, 0), false, newTestDeps(t, spy, nil))

	ds, err := waitResolved[source.DataSource](t, m.GetOrLoad(context.Background(), true))
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.True(t, ds.IsEmpty())
	assert.False(t, ds.IsComplete())
	assert.Equal(t, pos.New(10, 0, 0), ds.SectionPos())

	// An empty source is never persisted.
	assert.Zero(t, spy.CountKind("put"))
	assert.Zero(t, spy.CountKind("delete"))
	assert.False(t, m.ExistsOnDisk())
}

func TestWriteQueueFlushPersistsAndReloads(t *testing.T) {
	spy := blobstore.NewSpyStore(nil)
	obs := &recordingObserver{}
	sectionPos := pos.New(10, 0, 0)

	m := New(sectionPos, false, newTestDeps(t, spy, obs))
	ids := idmap.New()
	m.AddToWriteQueue(testChunk(ids, 3, 5, source.GenStepSurface))

	_, err := waitResolved[source.DataSource](t, m.FlushAndSave(context.Background()))
	require.NoError(t, err)
	require.GreaterOrEqual(t, spy.CountKind("put"), 1)
	assert.True(t, m.ExistsOnDisk())
	assert.NotZero(t, m.Checksum())
	assert.Positive(t, obs.snapshot().flushBytes)

	// A fresh entry over the same store sees the persisted data. At
	// detail 10 each chunk covers exactly one column.
	reload := New(sectionPos, true, newTestDeps(t, spy.Inner, nil))
	ds, err := waitResolved[source.DataSource](t, reload.GetOrLoad(context.Background(), true))
	require.NoError(t, err)
	require.True(t, ds.HasColumn(3, 5))
	assert.Equal(t, source.GenStepSurface, ds.GenStep())

	col := ds.Column(3, 5)
	require.Len(t, col, 1)
	entry, ok := ds.IDMap().Get(col[0].ID())
	require.True(t, ok)
	assert.Equal(t, "minecraft:stone/3,5", entry.Block)
}

func TestConcurrentAppendsAllSurviveFlush(t *testing.T) {
	spy := blobstore.NewSpyStore(nil)
	sectionPos := pos.New(10, 0, 0)
	m := New(sectionPos, false, newTestDeps(t, spy, nil))

	const side = 8
	var wg sync.WaitGroup
	for i := 0; i < side*side; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids := idmap.New()
			m.AddToWriteQueue(testChunk(ids, int32(i%side), int32(i/side), source.GenStepFeatures))
		}(i)
	}
	wg.Wait()

	_, err := waitResolved[source.DataSource](t, m.FlushAndSave(context.Background()))
	require.NoError(t, err)

	reload := New(sectionPos, true, newTestDeps(t, spy.Inner, nil))
	ds, err := waitResolved[source.DataSource](t, reload.GetOrLoad(context.Background(), true))
	require.NoError(t, err)

	for cz := 0; cz < side; cz++ {
		for cx := 0; cx < side; cx++ {
			require.True(t, ds.HasColumn(cx, cz), "column (%d,%d) lost", cx, cz)
			col := ds.Column(cx, cz)
			require.Len(t, col, 1)
			entry, ok := ds.IDMap().Get(col[0].ID())
			require.True(t, ok)
			assert.Equal(t, fmt.Sprintf("minecraft:stone/%d,%d", cx, cz), entry.Block)
		}
	}
}

func TestCorruptRecordDeletedAndRecreated(t *testing.T) {
	spy := blobstore.NewSpyStore(nil)
	obs := &recordingObserver{}
	sectionPos := pos.New(10, 2, -1)

	garbage := []byte("definitely not a section record")
	require.NoError(t, spy.Inner.Put(context.Background(), sectionPos.Key(), garbage))

	deps := newTestDeps(t, spy, obs)
	var deleted []pos.Pos
	deps.OnRecordDeleted = func(p pos.Pos) { deleted = append(deleted, p) }
	m := New(sectionPos, true, deps)
	ds, err := waitResolved[source.DataSource](t, m.GetOrLoad(context.Background(), true))
	require.NoError(t, err)
	assert.True(t, ds.IsEmpty())

	assert.Equal(t, 1, spy.CountKind("delete"))
	assert.Equal(t, 1, obs.snapshot().corruptions)
	assert.False(t, m.ExistsOnDisk())
	assert.Equal(t, []pos.Pos{sectionPos}, deleted)

	has, err := spy.Inner.Has(context.Background(), sectionPos.Key())
	require.NoError(t, err)
	assert.False(t, has)
}

// gatedStore blocks loads until released and honors context
// cancellation, exposing in-flight load windows to tests.
type gatedStore struct {
	blobstore.Store
	gate chan struct{}
}

func (g *gatedStore) Load(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Store.Load(ctx, key)
}

func TestConcurrentCallersShareOneLoad(t *testing.T) {
	inner := blobstore.NewMemoryStore()
	sectionPos := pos.New(10, 0, 0)

	// Seed a record so the gated load path is exercised.
	seed := New(sectionPos, false, newTestDeps(t, inner, nil))
	ids := idmap.New()
	seed.AddToWriteQueue(testChunk(ids, 0, 0, source.GenStepLight))
	_, err := waitResolved[source.DataSource](t, seed.FlushAndSave(context.Background()))
	require.NoError(t, err)

	gated := &gatedStore{Store: inner, gate: make(chan struct{})}
	m := New(sectionPos, true, newTestDeps(t, gated, nil))

	first := m.GetOrLoad(context.Background(), true)
	for i := 0; i < 8; i++ {
		assert.Same(t, first, m.GetOrLoad(context.Background(), false))
	}

	close(gated.gate)
	ds, err := waitResolved[source.DataSource](t, first)
	require.NoError(t, err)
	assert.True(t, ds.HasColumn(0, 0))
}

func TestCancelledLoadFailsFutureAndClearsSlot(t *testing.T) {
	inner := blobstore.NewMemoryStore()
	sectionPos := pos.New(10, 0, 0)

	seed := New(sectionPos, false, newTestDeps(t, inner, nil))
	ids := idmap.New()
	seed.AddToWriteQueue(testChunk(ids, 1, 1, source.GenStepNoise))
	_, err := waitResolved[source.DataSource](t, seed.FlushAndSave(context.Background()))
	require.NoError(t, err)

	gated := &gatedStore{Store: inner, gate: make(chan struct{})}
	m := New(sectionPos, true, newTestDeps(t, gated, nil))

	ctx, cancel := context.WithCancel(context.Background())
	f := m.GetOrLoad(ctx, true)
	cancel()
	_, err = waitResolved[source.DataSource](t, f)
	require.ErrorIs(t, err, context.Canceled)

	// The slot is free again: a later caller loads successfully.
	close(gated.gate)
	ds, err := waitResolved[source.DataSource](t, m.GetOrLoad(context.Background(), true))
	require.NoError(t, err)
	assert.True(t, ds.HasColumn(1, 1))
}

// putGateStore stalls the first Put until released, holding a persist
// in flight so tests can append updates behind its back.
type putGateStore struct {
	blobstore.Store
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (s *putGateStore) Put(ctx context.Context, key string, data []byte) error {
	s.once.Do(func() {
		close(s.entered)
		<-s.gate
	})
	return s.Store.Put(ctx, key, data)
}

func TestAppendDuringPersistGetsFollowUpFlush(t *testing.T) {
	inner := blobstore.NewMemoryStore()
	gated := &putGateStore{
		Store:   inner,
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	sectionPos := pos.New(10, 0, 0)
	m := New(sectionPos, false, newTestDeps(t, gated, nil))

	ids := idmap.New()
	m.AddToWriteQueue(testChunk(ids, 1, 1, source.GenStepLight))

	select {
	case <-gated.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first persist never reached the store")
	}

	// The running cycle already drained the queue; this update lands in
	// the fresh buffer and joins the in-flight future.
	m.AddToWriteQueue(testChunk(ids, 2, 2, source.GenStepLight))
	close(gated.gate)

	require.Eventually(t, func() bool { return !m.HasPendingWrites() },
		5*time.Second, 10*time.Millisecond)

	reload := New(sectionPos, true, newTestDeps(t, inner, nil))
	ds, err := waitResolved[source.DataSource](t, reload.GetOrLoad(context.Background(), true))
	require.NoError(t, err)
	assert.True(t, ds.HasColumn(1, 1))
	assert.True(t, ds.HasColumn(2, 2))
}

func TestEvictAndReload(t *testing.T) {
	spy := blobstore.NewSpyStore(nil)
	obs := &recordingObserver{}
	sectionPos := pos.New(10, 0, 0)

	m := New(sectionPos, false, newTestDeps(t, spy, obs))
	ids := idmap.New()
	m.AddToWriteQueue(testChunk(ids, 7, 7, source.GenStepBiomes))
	_, err := waitResolved[source.DataSource](t, m.FlushAndSave(context.Background()))
	require.NoError(t, err)
	require.True(t, m.IsResident())

	m.Evict()
	assert.False(t, m.IsResident())
	assert.Equal(t, 1, obs.snapshot().evictions)

	loadsBefore := spy.CountKind("load")
	ds, err := waitResolved[source.DataSource](t, m.GetOrLoad(context.Background(), true))
	require.NoError(t, err)
	assert.True(t, ds.HasColumn(7, 7))
	assert.Greater(t, spy.CountKind("load"), loadsBefore)
	assert.True(t, m.IsResident())
}

func TestShouldCacheFalseStaysEvicted(t *testing.T) {
	spy := blobstore.NewSpyStore(nil)
	m := New(pos.New(10, 0, 0), false, newTestDeps(t, spy, nil))

	_, err := waitResolved[source.DataSource](t, m.GetOrLoad(context.Background(), false))
	require.NoError(t, err)
	assert.False(t, m.IsResident())
}

func TestFlushIsNoopWhenClean(t *testing.T) {
	spy := blobstore.NewSpyStore(nil)
	sectionPos := pos.New(10, 0, 0)
	m := New(sectionPos, false, newTestDeps(t, spy, nil))

	ids := idmap.New()
	m.AddToWriteQueue(testChunk(ids, 0, 0, source.GenStepSurface))
	_, err := waitResolved[source.DataSource](t, m.FlushAndSave(context.Background()))
	require.NoError(t, err)
	require.False(t, m.HasPendingWrites())

	puts := spy.CountKind("put")
	for i := 0; i < 3; i++ {
		_, err := waitResolved[source.DataSource](t, m.FlushAndSave(context.Background()))
		require.NoError(t, err)
	}
	assert.Equal(t, puts, spy.CountKind("put"))
}

func TestPromotionThroughWriteQueue(t *testing.T) {
	spy := blobstore.NewSpyStore(nil)
	sectionPos := pos.New(10, 0, 0)
	m := New(sectionPos, false, newTestDeps(t, spy, nil))

	ids := idmap.New()
	for cz := int32(0); cz < 64; cz++ {
		for cx := int32(0); cx < 64; cx++ {
			m.AddToWriteQueue(testChunk(ids, cx, cz, source.GenStepLight))
		}
	}
	ds, err := waitResolved[source.DataSource](t, m.FlushAndSave(context.Background()))
	require.NoError(t, err)
	require.NotNil(t, ds)
	assert.True(t, ds.IsComplete())

	reload := New(sectionPos, true, newTestDeps(t, spy.Inner, nil))
	rds, err := waitResolved[source.DataSource](t, reload.GetOrLoad(context.Background(), true))
	require.NoError(t, err)
	assert.True(t, rds.IsComplete())
	assert.IsType(t, &source.Complete{}, rds)
}
