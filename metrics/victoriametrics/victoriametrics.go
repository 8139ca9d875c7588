// Package victoriametrics provides an arenamap.MetricsCollector backed by
// github.com/VictoriaMetrics/metrics, exposing operation counters and
// latency summaries in Prometheus text format.
package victoriametrics

import (
	"io"
	"time"

	vm "github.com/VictoriaMetrics/metrics"

	"github.com/hupe1980/arenamap"
)

// Collector implements arenamap.MetricsCollector on a private metrics set,
// so multiple maps can export side by side without name collisions.
type Collector struct {
	set *vm.Set

	gets        *vm.Counter
	getHits     *vm.Counter
	getErrors   *vm.Counter
	getDuration *vm.Summary

	puts        *vm.Counter
	putErrors   *vm.Counter
	putDuration *vm.Summary

	removes      *vm.Counter
	removeErrors *vm.Counter

	computes       *vm.Counter
	computeApplied *vm.Counter
	computeErrors  *vm.Counter

	scans        *vm.Counter
	scanEntries  *vm.Counter
	scanDuration *vm.Summary
}

var _ arenamap.MetricsCollector = (*Collector)(nil)

// New creates a collector. All metric names carry the arenamap_ prefix.
func New() *Collector {
	set := vm.NewSet()
	return &Collector{
		set:            set,
		gets:           set.GetOrCreateCounter(`arenamap_gets_total`),
		getHits:        set.GetOrCreateCounter(`arenamap_get_hits_total`),
		getErrors:      set.GetOrCreateCounter(`arenamap_get_errors_total`),
		getDuration:    set.GetOrCreateSummary(`arenamap_get_duration_seconds`),
		puts:           set.GetOrCreateCounter(`arenamap_puts_total`),
		putErrors:      set.GetOrCreateCounter(`arenamap_put_errors_total`),
		putDuration:    set.GetOrCreateSummary(`arenamap_put_duration_seconds`),
		removes:        set.GetOrCreateCounter(`arenamap_removes_total`),
		removeErrors:   set.GetOrCreateCounter(`arenamap_remove_errors_total`),
		computes:       set.GetOrCreateCounter(`arenamap_computes_total`),
		computeApplied: set.GetOrCreateCounter(`arenamap_computes_applied_total`),
		computeErrors:  set.GetOrCreateCounter(`arenamap_compute_errors_total`),
		scans:          set.GetOrCreateCounter(`arenamap_scans_total`),
		scanEntries:    set.GetOrCreateCounter(`arenamap_scan_entries_total`),
		scanDuration:   set.GetOrCreateSummary(`arenamap_scan_duration_seconds`),
	}
}

// RecordGet implements arenamap.MetricsCollector.
func (c *Collector) RecordGet(duration time.Duration, hit bool, err error) {
	c.gets.Inc()
	c.getDuration.Update(duration.Seconds())
	if hit {
		c.getHits.Inc()
	}
	if err != nil {
		c.getErrors.Inc()
	}
}

// RecordPut implements arenamap.MetricsCollector.
func (c *Collector) RecordPut(duration time.Duration, err error) {
	c.puts.Inc()
	c.putDuration.Update(duration.Seconds())
	if err != nil {
		c.putErrors.Inc()
	}
}

// RecordRemove implements arenamap.MetricsCollector.
func (c *Collector) RecordRemove(duration time.Duration, err error) {
	c.removes.Inc()
	if err != nil {
		c.removeErrors.Inc()
	}
}

// RecordCompute implements arenamap.MetricsCollector.
func (c *Collector) RecordCompute(duration time.Duration, applied bool, err error) {
	c.computes.Inc()
	if applied {
		c.computeApplied.Inc()
	}
	if err != nil {
		c.computeErrors.Inc()
	}
}

// RecordScan implements arenamap.MetricsCollector.
func (c *Collector) RecordScan(entries int, duration time.Duration) {
	c.scans.Inc()
	c.scanEntries.Add(entries)
	c.scanDuration.Update(duration.Seconds())
}

// WritePrometheus writes the collector's metrics in Prometheus text
// exposition format, for wiring into an HTTP handler.
func (c *Collector) WritePrometheus(w io.Writer) {
	c.set.WritePrometheus(w)
}
