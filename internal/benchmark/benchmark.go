// Package benchmark measures local write latency and remote sync latency for
// a synthetic goal set, so backends can be compared on real hardware.
//
// A run seeds a throwaway local store, hammers it with concurrent writers,
// then pushes, merges and pulls the snapshot under a dedicated benchmark
// identity. The user's own data and remote row are never touched.
package benchmark

import (
	"fmt"
	"io"
	"log"
	"runtime"
	"sort"
	"time"

	"github.com/goalritual/goalritual/internal/remote"
)

// BenchEmail is the identity every run syncs as.
const BenchEmail = "bench@goalritual.local"

// Config defines the parameters for a benchmark run.
type Config struct {
	// Goals is the number of goals seeded into the local store
	Goals int

	// MilestonesPerGoal is the number of milestones on each goal
	MilestonesPerGoal int

	// Writers is the number of concurrent local writers
	Writers int

	// WritesPerWriter is how many dataset writes each writer performs
	WritesPerWriter int

	// Pushes is how many full snapshot pushes are timed
	Pushes int

	// Dir holds the throwaway local store (and the default remote).
	// Empty means a fresh temporary directory.
	Dir string

	// Remote is the backend to sync against. An empty DSN means a sqlite
	// file inside Dir.
	Remote remote.Config

	// Logger receives sync engine output (default: discarded)
	Logger *log.Logger `json:"-"`
}

// DefaultConfig returns a benchmark configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Goals:             100,
		MilestonesPerGoal: 5,
		Writers:           8,
		WritesPerWriter:   25,
		Pushes:            10,
	}
}

// Result captures all metrics from a benchmark run.
type Result struct {
	// Configuration used for this run
	Config Config

	// Write is the latency of one read-modify-write of the goals dataset
	Write LatencyMetrics

	// Push is the latency of one full snapshot push
	Push LatencyMetrics

	// Merge and Pull are single timed operations
	Merge time.Duration
	Pull  time.Duration

	// Throughput of local writes
	Throughput ThroughputMetrics

	// Resource usage
	Resources ResourceMetrics

	// Snapshot size and setup cost
	Snapshot SnapshotMetrics

	TotalDuration time.Duration
	ErrorCount    int
	ErrorRate     float64
	Success       bool
}

// LatencyMetrics captures latency statistics.
type LatencyMetrics struct {
	Min  time.Duration
	P50  time.Duration // Median
	Mean time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration

	// Raw durations for analysis
	Durations []time.Duration
}

// ThroughputMetrics captures writes-per-second metrics.
type ThroughputMetrics struct {
	WritesPerSecond float64
	TotalWrites     int
}

// ResourceMetrics captures memory usage.
type ResourceMetrics struct {
	MemoryBeforeBytes uint64
	MemoryAfterBytes  uint64
	MemoryPeakBytes   uint64
	MemoryDeltaBytes  uint64
}

// SnapshotMetrics describes the data being synced.
type SnapshotMetrics struct {
	Bytes       int
	SeedTimeMs  int64
	GoalCount   int
	Milestones  int
	LocalDBSize int64
}

// ComputeStats calculates statistics from raw durations.
func ComputeStats(durations []time.Duration) LatencyMetrics {
	if len(durations) == 0 {
		return LatencyMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyMetrics{
		Min:       sorted[0],
		P50:       sorted[len(sorted)*50/100],
		Mean:      sum / time.Duration(len(sorted)),
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		Max:       sorted[len(sorted)-1],
		Durations: sorted,
	}
}

// GetMemoryStats returns current memory usage statistics.
func GetMemoryStats() ResourceMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ResourceMetrics{
		MemoryBeforeBytes: m.Alloc,
		MemoryAfterBytes:  m.Alloc,
		MemoryPeakBytes:   m.Sys,
	}
}

// CompareMemoryStats computes the delta between before and after memory stats.
func CompareMemoryStats(before, after ResourceMetrics) ResourceMetrics {
	var delta uint64
	if after.MemoryAfterBytes > before.MemoryBeforeBytes {
		delta = after.MemoryAfterBytes - before.MemoryBeforeBytes
	}

	return ResourceMetrics{
		MemoryBeforeBytes: before.MemoryBeforeBytes,
		MemoryAfterBytes:  after.MemoryAfterBytes,
		MemoryPeakBytes:   after.MemoryPeakBytes,
		MemoryDeltaBytes:  delta,
	}
}

// FormatBytes formats bytes into a human-readable string.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration into a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func printLatency(w io.Writer, title string, l LatencyMetrics) {
	fmt.Fprintf(w, "%s:\n", title)
	fmt.Fprintf(w, "  Min:       %s\n", FormatDuration(l.Min))
	fmt.Fprintf(w, "  P50:       %s\n", FormatDuration(l.P50))
	fmt.Fprintf(w, "  Mean:      %s\n", FormatDuration(l.Mean))
	fmt.Fprintf(w, "  P95:       %s\n", FormatDuration(l.P95))
	fmt.Fprintf(w, "  P99:       %s\n", FormatDuration(l.P99))
	fmt.Fprintf(w, "  Max:       %s\n", FormatDuration(l.Max))
	fmt.Fprintf(w, "\n")
}

// PrintResult writes a formatted benchmark result.
func PrintResult(w io.Writer, result *Result) {
	fmt.Fprintf(w, "\n=== Benchmark Results (%s backend) ===\n\n", result.Config.Remote.Backend)

	fmt.Fprintf(w, "Configuration:\n")
	fmt.Fprintf(w, "  Goals:              %d\n", result.Config.Goals)
	fmt.Fprintf(w, "  Milestones/goal:    %d\n", result.Config.MilestonesPerGoal)
	fmt.Fprintf(w, "  Writers:            %d\n", result.Config.Writers)
	fmt.Fprintf(w, "  Writes per writer:  %d\n", result.Config.WritesPerWriter)
	fmt.Fprintf(w, "  Pushes:             %d\n", result.Config.Pushes)
	fmt.Fprintf(w, "\n")

	printLatency(w, "Local write latency", result.Write)
	printLatency(w, "Push latency", result.Push)

	fmt.Fprintf(w, "Sync:\n")
	fmt.Fprintf(w, "  Merge:             %s\n", FormatDuration(result.Merge))
	fmt.Fprintf(w, "  Pull:              %s\n", FormatDuration(result.Pull))
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Throughput:\n")
	fmt.Fprintf(w, "  Writes/sec:        %.2f\n", result.Throughput.WritesPerSecond)
	fmt.Fprintf(w, "  Total Writes:      %d\n", result.Throughput.TotalWrites)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Resources:\n")
	fmt.Fprintf(w, "  Memory Before:     %s\n", FormatBytes(result.Resources.MemoryBeforeBytes))
	fmt.Fprintf(w, "  Memory After:      %s\n", FormatBytes(result.Resources.MemoryAfterBytes))
	fmt.Fprintf(w, "  Memory Peak:       %s\n", FormatBytes(result.Resources.MemoryPeakBytes))
	fmt.Fprintf(w, "  Memory Delta:      %s\n", FormatBytes(result.Resources.MemoryDeltaBytes))
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Snapshot:\n")
	fmt.Fprintf(w, "  Size:              %s\n", FormatBytes(uint64(result.Snapshot.Bytes)))
	fmt.Fprintf(w, "  Local DB:          %s\n", FormatBytes(uint64(result.Snapshot.LocalDBSize)))
	fmt.Fprintf(w, "  Seed Time:         %dms\n", result.Snapshot.SeedTimeMs)
	fmt.Fprintf(w, "  Goals:             %d\n", result.Snapshot.GoalCount)
	fmt.Fprintf(w, "  Milestones:        %d\n", result.Snapshot.Milestones)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Overall:\n")
	fmt.Fprintf(w, "  Total Duration:    %s\n", FormatDuration(result.TotalDuration))
	fmt.Fprintf(w, "  Errors:            %d (%.2f%%)\n", result.ErrorCount, result.ErrorRate*100)
	fmt.Fprintf(w, "  Success:           %v\n", result.Success)
	fmt.Fprintf(w, "\n")
}
