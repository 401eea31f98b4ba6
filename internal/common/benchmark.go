package common

import (
	"fmt"
	"math"
	"runtime"
	"slices"
	"time"
)

// MemoryStats is the subset of runtime.MemStats the bench command reports.
type MemoryStats struct {
	Alloc       uint64
	TotalAlloc  uint64
	Sys         uint64
	HeapObjects uint64
	NumGC       uint32
}

// GetMemoryStats reads the current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		Alloc:       m.Alloc,
		TotalAlloc:  m.TotalAlloc,
		Sys:         m.Sys,
		HeapObjects: m.HeapObjects,
		NumGC:       m.NumGC,
	}
}

func (m MemoryStats) String() string {
	return fmt.Sprintf("heap %d KB, %d objects, sys %d KB, %d GCs",
		m.Alloc/1024, m.HeapObjects, m.Sys/1024, m.NumGC)
}

// BenchmarkResult collects the latencies of repeated runs of one operation.
type BenchmarkResult struct {
	Name         string
	Samples      []time.Duration
	MemoryBefore MemoryStats
	MemoryAfter  MemoryStats
	Error        error
}

// Add records one run.
func (r *BenchmarkResult) Add(d time.Duration) {
	r.Samples = append(r.Samples, d)
}

// Iterations is the number of recorded runs.
func (r BenchmarkResult) Iterations() int { return len(r.Samples) }

// Total is the summed latency of all runs.
func (r BenchmarkResult) Total() time.Duration {
	var total time.Duration
	for _, d := range r.Samples {
		total += d
	}
	return total
}

// Mean is the average latency, zero without samples.
func (r BenchmarkResult) Mean() time.Duration {
	if len(r.Samples) == 0 {
		return 0
	}
	return r.Total() / time.Duration(len(r.Samples))
}

// Percentile returns the nearest-rank p-th percentile (0 < p <= 100).
func (r BenchmarkResult) Percentile(p float64) time.Duration {
	n := len(r.Samples)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(r.Samples)
	slices.Sort(sorted)
	rank := int(math.Ceil(p / 100 * float64(n)))
	return sorted[min(max(rank, 1), n)-1]
}

// Min is the fastest run.
func (r BenchmarkResult) Min() time.Duration {
	if len(r.Samples) == 0 {
		return 0
	}
	return slices.Min(r.Samples)
}

// Max is the slowest run.
func (r BenchmarkResult) Max() time.Duration {
	if len(r.Samples) == 0 {
		return 0
	}
	return slices.Max(r.Samples)
}

// AllocatedPerRun is the average number of bytes allocated by one run.
func (r BenchmarkResult) AllocatedPerRun() uint64 {
	if len(r.Samples) == 0 || r.MemoryAfter.TotalAlloc < r.MemoryBefore.TotalAlloc {
		return 0
	}
	return (r.MemoryAfter.TotalAlloc - r.MemoryBefore.TotalAlloc) / uint64(len(r.Samples))
}

func (r BenchmarkResult) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: ERROR after %d iterations - %v", r.Name, len(r.Samples), r.Error)
	}
	return fmt.Sprintf("%s: %d iterations, mean %v, p50 %v, p95 %v, min %v, max %v, %d KB/run",
		r.Name, len(r.Samples), r.Mean(), r.Percentile(50), r.Percentile(95),
		r.Min(), r.Max(), r.AllocatedPerRun()/1024)
}
