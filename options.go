package lodgo

import (
	"log/slog"

	"github.com/hupe1980/lodgo/genqueue"
	"github.com/hupe1980/lodgo/persistence"
	"github.com/hupe1980/lodgo/resource"
	"github.com/hupe1980/lodgo/source"
)

// DefaultMaxDetail is the coarsest section detail tracked when
// WithMaxDetail is not given. Every chunk update fans out into one
// section file per tracked detail level.
const DefaultMaxDetail = 12

type options struct {
	logger       *Logger
	metrics      MetricsCollector
	compressor   persistence.Compressor
	dataVersion  uint32
	ioWorkers    int
	buildWorkers int
	resourceCfg  *resource.Config
	queue        genqueue.Queue
	maxDetail    uint8
}

// Option configures Provider construction.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := lodgo.NewJSONLogger(slog.LevelInfo)
//	provider, _ := lodgo.New(store, lodgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &lodgo.BasicMetricsCollector{}
//	provider, _ := lodgo.New(store, lodgo.WithMetricsCollector(metrics))
//	// ... use provider ...
//	stats := metrics.GetStats()
//	fmt.Printf("Builds: %d, Cache hits: %d\n", stats.BuildCount, stats.CacheHits)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithCompressor configures the payload compression codec for newly
// written records. Stored records carry their codec tag, so mixed
// stores read back fine. Defaults to LZ4.
func WithCompressor(c persistence.Compressor) Option {
	return func(o *options) {
		if c == nil {
			c = persistence.LZ4Compressor{}
		}
		o.compressor = c
	}
}

// WithDataVersion stamps new records with the host's data version.
// Bump it when external data (block registries, biome tables) changes
// meaning.
func WithDataVersion(v uint32) Option {
	return func(o *options) {
		o.dataVersion = v
	}
}

// WithIOWorkers sets the size of the storage worker pool.
// Non-positive values default to GOMAXPROCS.
func WithIOWorkers(n int) Option {
	return func(o *options) {
		o.ioWorkers = n
	}
}

// WithBuildWorkers caps the goroutines used for parallel child loading
// during hierarchical builds. Non-positive values leave it unbounded
// (the quad-tree fan-out bounds it naturally).
func WithBuildWorkers(n int) Option {
	return func(o *options) {
		o.buildWorkers = n
	}
}

// WithResourceLimits configures memory, background-worker and flush IO
// budgets. Without it, residency is tracked but never denied.
func WithResourceLimits(cfg resource.Config) Option {
	return func(o *options) {
		o.resourceCfg = &cfg
	}
}

// WithGenerationQueue plugs in the collaborator that computes missing
// terrain. Without it, incomplete sections stay incomplete until the
// host feeds the missing chunks through ApplyChunkUpdate.
func WithGenerationQueue(q genqueue.Queue) Option {
	return func(o *options) {
		o.queue = q
	}
}

// WithMaxDetail sets the coarsest tracked section detail. Values below
// the minimum section detail are raised to it.
func WithMaxDetail(detail uint8) Option {
	return func(o *options) {
		if detail < source.SizeOffset {
			detail = source.SizeOffset
		}
		o.maxDetail = detail
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:     NoopLogger(),
		metrics:    NoopMetricsCollector{},
		compressor: persistence.LZ4Compressor{},
		maxDetail:  DefaultMaxDetail,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
