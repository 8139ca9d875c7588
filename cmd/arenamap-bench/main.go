// Command arenamap-bench is a load generator and soak tool for arenamap.
//
// It drives a single off-heap map with configurable writer, reader and
// scanner goroutines, and reports throughput plus arena statistics. Use it
// to size capacity budgets and chunk capacities for a workload before
// wiring the map into an application.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/arenamap"
	"github.com/hupe1980/arenamap/metrics/victoriametrics"
	"github.com/hupe1980/arenamap/serializer"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "arenamap-bench",
	Short: "load generator for arenamap off-heap maps",
	Long: fmt.Sprintf(`arenamap-bench (v%s)

Drives an off-heap ordered map with a configurable mix of writers, readers
and range scanners, then reports throughput and memory statistics.`, version),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of arenamap-bench",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("arenamap-bench v%s\n", version)
	},
}

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "bulk-load entries, then verify them with point reads and a full scan",
	RunE:  runFill,
}

var soakCmd = &cobra.Command{
	Use:   "soak",
	Short: "run a mixed read/write/scan workload for a fixed duration",
	RunE:  runSoak,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.Int64("capacity-mb", 256, "off-heap capacity budget in MiB")
	pf.Int("value-size", 128, "value payload size in bytes")
	pf.Int("chunk-capacity", 0, "entry slots per index chunk (0 = default)")
	pf.Bool("metrics", false, "print Prometheus metrics on exit")
	pf.Bool("verbose", false, "enable debug logging")

	fillCmd.Flags().Int("entries", 1_000_000, "number of entries to load")
	fillCmd.Flags().Int("writers", 4, "concurrent load goroutines")

	soakCmd.Flags().Duration("duration", 30*time.Second, "workload duration")
	soakCmd.Flags().Int("keys", 100_000, "key space size")
	soakCmd.Flags().Int("writers", 4, "writer goroutines (put/remove/compute mix)")
	soakCmd.Flags().Int("readers", 4, "reader goroutines")
	soakCmd.Flags().Int("scanners", 1, "range scanner goroutines")

	rootCmd.AddCommand(versionCmd, fillCmd, soakCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildMap(cmd *cobra.Command) (*arenamap.Map[uint64, []byte], *victoriametrics.Collector, error) {
	capacityMB, _ := cmd.Flags().GetInt64("capacity-mb")
	chunkCap, _ := cmd.Flags().GetInt("chunk-capacity")
	verbose, _ := cmd.Flags().GetBool("verbose")

	collector := victoriametrics.New()
	b := arenamap.Uint64Keys[[]byte](serializer.Bytes{}).
		Capacity(capacityMB << 20).
		Metrics(collector)
	if chunkCap > 0 {
		b = b.ChunkCapacity(chunkCap)
	}
	if verbose {
		b = b.Logger(arenamap.NewTextLogger(slog.LevelDebug))
	}

	m, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	return m, collector, nil
}

func value(size int, key uint64) []byte {
	buf := make([]byte, size)
	rand.New(rand.NewSource(int64(key))).Read(buf)
	return buf
}

func report(cmd *cobra.Command, m *arenamap.Map[uint64, []byte], collector *victoriametrics.Collector) {
	stats := m.Stats()
	fmt.Printf("entries=%d chunks=%d live=%dMiB free=%dMiB reserved=%dMiB segments=%d pending=%d reclaimed=%d\n",
		stats.Entries, stats.Chunks,
		stats.BytesLive>>20, stats.BytesFree>>20, stats.BytesReserved>>20,
		stats.Segments, stats.RetiredPending, stats.Reclaimed)

	if show, _ := cmd.Flags().GetBool("metrics"); show {
		collector.WritePrometheus(os.Stdout)
	}
}

func runFill(cmd *cobra.Command, _ []string) error {
	entries, _ := cmd.Flags().GetInt("entries")
	writers, _ := cmd.Flags().GetInt("writers")
	valueSize, _ := cmd.Flags().GetInt("value-size")

	m, collector, err := buildMap(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	fmt.Printf("loading %d entries with %d writers...\n", entries, writers)
	start := time.Now()

	var eg errgroup.Group
	per := entries / writers
	for w := 0; w < writers; w++ {
		lo := uint64(w * per)
		hi := uint64((w + 1) * per)
		if w == writers-1 {
			hi = uint64(entries)
		}
		eg.Go(func() error {
			for k := lo; k < hi; k++ {
				if err := m.Put(k, value(valueSize, k)); err != nil {
					return fmt.Errorf("put %d: %w", k, err)
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	loadDur := time.Since(start)
	fmt.Printf("loaded in %s (%.0f ops/s)\n", loadDur, float64(entries)/loadDur.Seconds())

	// point-read verification
	start = time.Now()
	for k := uint64(0); k < uint64(entries); k++ {
		_, found, err := m.Get(k)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("verify key %d: %w", k, arenamap.ErrNotFound)
		}
	}
	fmt.Printf("verified %d point reads in %s\n", entries, time.Since(start))

	// ordered full scan
	start = time.Now()
	it := m.Iterator()
	defer it.Close()
	var count int
	var prev uint64
	for it.Next() {
		k := it.Key()
		if count > 0 && k <= prev {
			return fmt.Errorf("scan out of order: %d after %d", k, prev)
		}
		prev = k
		count++
	}
	if err := it.Err(); err != nil {
		return err
	}
	if count != entries {
		return fmt.Errorf("scan returned %d entries, want %d", count, entries)
	}
	fmt.Printf("scanned %d entries in %s\n", count, time.Since(start))

	report(cmd, m, collector)
	return nil
}

func runSoak(cmd *cobra.Command, _ []string) error {
	duration, _ := cmd.Flags().GetDuration("duration")
	keys, _ := cmd.Flags().GetInt("keys")
	writers, _ := cmd.Flags().GetInt("writers")
	readers, _ := cmd.Flags().GetInt("readers")
	scanners, _ := cmd.Flags().GetInt("scanners")
	valueSize, _ := cmd.Flags().GetInt("value-size")

	m, collector, err := buildMap(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	fmt.Printf("soaking for %s: %d writers, %d readers, %d scanners over %d keys\n",
		duration, writers, readers, scanners, keys)

	deadline := time.Now().Add(duration)
	var ops atomic.Int64

	var eg errgroup.Group
	for w := 0; w < writers; w++ {
		seed := int64(w)
		eg.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				k := uint64(rng.Intn(keys))
				switch rng.Intn(10) {
				case 0:
					if err := m.Remove(k); err != nil {
						return err
					}
				case 1:
					if _, err := m.ComputeIfPresent(k, func(v []byte) []byte {
						v[0]++
						return v
					}); err != nil {
						return err
					}
				default:
					if err := m.Put(k, value(valueSize, k)); err != nil {
						return err
					}
				}
				ops.Add(1)
			}
			return nil
		})
	}
	for r := 0; r < readers; r++ {
		seed := int64(1000 + r)
		eg.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				if _, _, err := m.Get(uint64(rng.Intn(keys))); err != nil {
					return err
				}
				ops.Add(1)
			}
			return nil
		})
	}
	for s := 0; s < scanners; s++ {
		seed := int64(2000 + s)
		eg.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				lo := uint64(rng.Intn(keys))
				desc := rng.Intn(2) == 0
				opts := []func(*arenamap.IterOptions[uint64]){
					arenamap.From(lo),
					arenamap.Below(lo + 1000),
				}
				if desc {
					opts = append(opts, arenamap.Descending[uint64]())
				}
				it := m.Iterator(opts...)
				for it.Next() {
				}
				err := it.Err()
				it.Close()
				if err != nil {
					return err
				}
				ops.Add(1)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	fmt.Printf("total ops: %d (%.0f ops/s)\n", ops.Load(), float64(ops.Load())/duration.Seconds())
	report(cmd, m, collector)
	return nil
}
