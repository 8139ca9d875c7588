package arenamap

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; a
// VictoriaMetrics-backed implementation ships in metrics/victoriametrics.
type MetricsCollector interface {
	// RecordGet is called after each point lookup. hit reports whether the
	// key was present, err is nil on success.
	RecordGet(duration time.Duration, hit bool, err error)

	// RecordPut is called after each put-family write (put, putIfAbsent,
	// putIfAbsentComputeIfPresent).
	RecordPut(duration time.Duration, err error)

	// RecordRemove is called after each remove operation.
	RecordRemove(duration time.Duration, err error)

	// RecordCompute is called after each computeIfPresent invocation.
	// applied reports whether the transformation ran.
	RecordCompute(duration time.Duration, applied bool, err error)

	// RecordScan is called when an iterator is closed or exhausted.
	// entries is the number of entries it produced.
	RecordScan(entries int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(time.Duration, bool, error)     {}
func (NoopMetricsCollector) RecordPut(time.Duration, error)           {}
func (NoopMetricsCollector) RecordRemove(time.Duration, error)        {}
func (NoopMetricsCollector) RecordCompute(time.Duration, bool, error) {}
func (NoopMetricsCollector) RecordScan(int, time.Duration)            {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetCount       atomic.Int64
	GetHits        atomic.Int64
	GetErrors      atomic.Int64
	GetTotalNanos  atomic.Int64
	PutCount       atomic.Int64
	PutErrors      atomic.Int64
	PutTotalNanos  atomic.Int64
	RemoveCount    atomic.Int64
	RemoveErrors   atomic.Int64
	ComputeCount   atomic.Int64
	ComputeApplied atomic.Int64
	ComputeErrors  atomic.Int64
	ScanCount      atomic.Int64
	ScanEntries    atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, hit bool, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if hit {
		b.GetHits.Add(1)
	}
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordPut implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPut(duration time.Duration, err error) {
	b.PutCount.Add(1)
	b.PutTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PutErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(duration time.Duration, err error) {
	b.RemoveCount.Add(1)
	if err != nil {
		b.RemoveErrors.Add(1)
	}
}

// RecordCompute implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCompute(duration time.Duration, applied bool, err error) {
	b.ComputeCount.Add(1)
	if applied {
		b.ComputeApplied.Add(1)
	}
	if err != nil {
		b.ComputeErrors.Add(1)
	}
}

// RecordScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScan(entries int, duration time.Duration) {
	b.ScanCount.Add(1)
	b.ScanEntries.Add(int64(entries))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GetCount:       b.GetCount.Load(),
		GetHits:        b.GetHits.Load(),
		GetErrors:      b.GetErrors.Load(),
		GetAvgNanos:    avgNanos(b.GetTotalNanos.Load(), b.GetCount.Load()),
		PutCount:       b.PutCount.Load(),
		PutErrors:      b.PutErrors.Load(),
		PutAvgNanos:    avgNanos(b.PutTotalNanos.Load(), b.PutCount.Load()),
		RemoveCount:    b.RemoveCount.Load(),
		RemoveErrors:   b.RemoveErrors.Load(),
		ComputeCount:   b.ComputeCount.Load(),
		ComputeApplied: b.ComputeApplied.Load(),
		ComputeErrors:  b.ComputeErrors.Load(),
		ScanCount:      b.ScanCount.Load(),
		ScanEntries:    b.ScanEntries.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GetCount       int64
	GetHits        int64
	GetErrors      int64
	GetAvgNanos    int64
	PutCount       int64
	PutErrors      int64
	PutAvgNanos    int64
	RemoveCount    int64
	RemoveErrors   int64
	ComputeCount   int64
	ComputeApplied int64
	ComputeErrors  int64
	ScanCount      int64
	ScanEntries    int64
}
