package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyWindow is the number of most recent latencies kept per operation.
const LatencyWindow = 1024

// Tracks performance metrics across the system
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount uint64
	errorCount   uint64

	// Maps operation name to its recent latencies
	operationTimes map[string]*latencyRing

	systemStartTime time.Time
}

// latencyRing holds the last LatencyWindow latencies in nanoseconds.
type latencyRing struct {
	total   int
	samples []int64
	next    int
}

func (r *latencyRing) add(ns int64) {
	r.total++
	if len(r.samples) < LatencyWindow {
		r.samples = append(r.samples, ns)
		return
	}
	r.samples[r.next] = ns
	r.next = (r.next + 1) % LatencyWindow
}

// OperationStats summarizes one operation. Count covers every call; the
// latency figures cover the last Samples calls.
type OperationStats struct {
	Count   int           `json:"count"`
	Samples int           `json:"samples"`
	Mean    time.Duration `json:"mean"`
	P50     time.Duration `json:"p50"`
	Max     time.Duration `json:"max"`
}

// MetricsSnapshot is a point-in-time copy of the collector.
type MetricsSnapshot struct {
	Uptime     time.Duration             `json:"uptime"`
	Requests   uint64                    `json:"requests"`
	Errors     uint64                    `json:"errors"`
	Operations map[string]OperationStats `json:"operations"`
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		operationTimes:  make(map[string]*latencyRing),
		systemStartTime: time.Now(),
	}
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.requestCount++
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.errorCount++
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	ring, exists := mc.operationTimes[operationName]
	if !exists {
		ring = &latencyRing{}
		mc.operationTimes[operationName] = ring
	}
	ring.add(duration.Nanoseconds())
}

// Track records one finished operation: a request, its latency and, when err
// is non-nil, an error.
func (mc *MetricsCollector) Track(operationName string, start time.Time, err error) {
	mc.IncrementRequests()
	mc.AddOperationLatency(operationName, time.Since(start))
	if err != nil {
		mc.IncrementErrors()
	}
}

func (mc *MetricsCollector) Snapshot() MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snap := MetricsSnapshot{
		Uptime:     time.Since(mc.systemStartTime),
		Requests:   mc.requestCount,
		Errors:     mc.errorCount,
		Operations: make(map[string]OperationStats, len(mc.operationTimes)),
	}

	for name, ring := range mc.operationTimes {
		if len(ring.samples) == 0 {
			continue
		}
		sorted := append([]int64(nil), ring.samples...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var total int64
		for _, t := range sorted {
			total += t
		}
		snap.Operations[name] = OperationStats{
			Count:   ring.total,
			Samples: len(sorted),
			Mean:    time.Duration(total / int64(len(sorted))),
			P50:     time.Duration(sorted[len(sorted)/2]),
			Max:     time.Duration(sorted[len(sorted)-1]),
		}
	}

	return snap
}
