package lodgo

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/lodgo/genqueue"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    buildCounter   prometheus.Counter
//	    buildHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordBuild(duration time.Duration, err error) {
//	    p.buildCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordBuild is called after each GetOrBuild operation.
	// duration is the total time taken, err is nil if successful.
	RecordBuild(duration time.Duration, err error)

	// RecordCacheHit is called when a build is satisfied by a resident
	// complete source.
	RecordCacheHit()

	// RecordCacheMiss is called when a build has to sample or generate.
	RecordCacheMiss()

	// RecordLoad is called after each storage load/update cycle.
	RecordLoad(duration time.Duration, err error)

	// RecordFlush is called after each persisted record.
	// bytes is the record size on success.
	RecordFlush(bytes int, err error)

	// RecordEviction is called when a resident source is dropped.
	RecordEviction()

	// RecordCorruption is called when a damaged record is deleted and
	// its section recreated.
	RecordCorruption()

	// RecordGenTask is called when a generation task finishes.
	RecordGenTask(result genqueue.Result)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBuild(time.Duration, error) {}
func (NoopMetricsCollector) RecordCacheHit()                  {}
func (NoopMetricsCollector) RecordCacheMiss()                 {}
func (NoopMetricsCollector) RecordLoad(time.Duration, error)  {}
func (NoopMetricsCollector) RecordFlush(int, error)           {}
func (NoopMetricsCollector) RecordEviction()                  {}
func (NoopMetricsCollector) RecordCorruption()                {}
func (NoopMetricsCollector) RecordGenTask(genqueue.Result)    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BuildCount      atomic.Int64
	BuildErrors     atomic.Int64
	BuildTotalNanos atomic.Int64
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
	LoadCount       atomic.Int64
	LoadErrors      atomic.Int64
	LoadTotalNanos  atomic.Int64
	FlushCount      atomic.Int64
	FlushErrors     atomic.Int64
	FlushBytes      atomic.Int64
	Evictions       atomic.Int64
	Corruptions     atomic.Int64
	GenSuccesses    atomic.Int64
	GenFailures     atomic.Int64
	GenCancelled    atomic.Int64
}

// RecordBuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBuild(duration time.Duration, err error) {
	b.BuildCount.Add(1)
	b.BuildTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BuildErrors.Add(1)
	}
}

// RecordCacheHit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheHit() {
	b.CacheHits.Add(1)
}

// RecordCacheMiss implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheMiss() {
	b.CacheMisses.Add(1)
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(bytes int, err error) {
	b.FlushCount.Add(1)
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushBytes.Add(int64(bytes))
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction() {
	b.Evictions.Add(1)
}

// RecordCorruption implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCorruption() {
	b.Corruptions.Add(1)
}

// RecordGenTask implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGenTask(result genqueue.Result) {
	switch result {
	case genqueue.ResultSuccess:
		b.GenSuccesses.Add(1)
	case genqueue.ResultCancelled:
		b.GenCancelled.Add(1)
	default:
		b.GenFailures.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BuildCount:     b.BuildCount.Load(),
		BuildErrors:    b.BuildErrors.Load(),
		BuildAvgNanos:  b.getAvgBuildNanos(),
		CacheHits:      b.CacheHits.Load(),
		CacheMisses:    b.CacheMisses.Load(),
		LoadCount:      b.LoadCount.Load(),
		LoadErrors:     b.LoadErrors.Load(),
		FlushCount:     b.FlushCount.Load(),
		FlushErrors:    b.FlushErrors.Load(),
		FlushBytes:     b.FlushBytes.Load(),
		Evictions:      b.Evictions.Load(),
		Corruptions:    b.Corruptions.Load(),
		GenSuccesses:   b.GenSuccesses.Load(),
		GenFailures:    b.GenFailures.Load(),
		GenCancelled:   b.GenCancelled.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgBuildNanos() int64 {
	count := b.BuildCount.Load()
	if count == 0 {
		return 0
	}
	return b.BuildTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BuildCount    int64
	BuildErrors   int64
	BuildAvgNanos int64
	CacheHits     int64
	CacheMisses   int64
	LoadCount     int64
	LoadErrors    int64
	FlushCount    int64
	FlushErrors   int64
	FlushBytes    int64
	Evictions     int64
	Corruptions   int64
	GenSuccesses  int64
	GenFailures   int64
	GenCancelled  int64
}

// metafileObserver bridges the cache-entry event hooks onto the
// provider's metrics collector.
type metafileObserver struct {
	mc MetricsCollector
}

func (o metafileObserver) RecordLoad(duration time.Duration, err error) {
	o.mc.RecordLoad(duration, err)
}

func (o metafileObserver) RecordFlush(bytes int, err error) {
	o.mc.RecordFlush(bytes, err)
}

func (o metafileObserver) RecordEviction() {
	o.mc.RecordEviction()
}

func (o metafileObserver) RecordCorruption() {
	o.mc.RecordCorruption()
}
