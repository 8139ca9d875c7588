package arenamap

import (
	"log/slog"
)

type options struct {
	chunkCapacity    int
	segmentSize      int
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures map construction behavior. Most callers use the fluent
// Builder, which assembles these internally; the functional form exists so
// ambient concerns stay composable without exploding the builder surface.
type Option func(*options)

// WithChunkCapacity configures the number of entry slots per index chunk.
// Larger chunks mean fewer rebalances but coarser copy-on-write publishes.
// If n <= 0, the default (128) is used.
func WithChunkCapacity(n int) Option {
	return func(o *options) {
		o.chunkCapacity = n
	}
}

// WithSegmentSize configures the size in bytes of each off-heap segment.
// The value is rounded to a power of two and clamped to the capacity budget.
// If n <= 0, the default (32 MiB) is used.
func WithSegmentSize(n int) Option {
	return func(o *options) {
		o.segmentSize = n
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &arenamap.BasicMetricsCollector{}
//	m, _ := arenamap.Uint64Keys[string](serializer.String{}).
//	    Capacity(64 << 20).
//	    Metrics(metrics).
//	    Build()
//	// ... use m ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
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

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
