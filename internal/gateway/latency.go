package gateway

import (
	"sort"
	"sync"
)

// LatencyTracker keeps a bounded window of tick-to-broadcast latency
// samples and summarizes them as percentiles for the state payload.
// Thread-safe.
type LatencyTracker struct {
	mu   sync.Mutex
	buf  []float64 // milliseconds; grows to capacity, then overwrites oldest
	next int
	full bool
}

// NewLatencyTracker keeps the most recent capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 4096
	}
	return &LatencyTracker{buf: make([]float64, 0, capacity)}
}

// Record adds a sample in milliseconds, evicting the oldest once the
// window is full.
func (lt *LatencyTracker) Record(ms float64) {
	lt.mu.Lock()
	if lt.full {
		lt.buf[lt.next] = ms
		lt.next = (lt.next + 1) % cap(lt.buf)
	} else {
		lt.buf = append(lt.buf, ms)
		lt.full = len(lt.buf) == cap(lt.buf)
	}
	lt.mu.Unlock()
}

// Count returns the number of samples currently in the window.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return len(lt.buf)
}

// Percentiles returns p50, p95 and p99 in milliseconds, or zeros for an
// empty window. Arrival order inside the window does not matter for the
// summary, so the ring is sorted as-is without unrolling.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	sorted := lt.snapshot()
	if len(sorted) == 0 {
		return 0, 0, 0
	}
	return quantile(sorted, 0.50), quantile(sorted, 0.95), quantile(sorted, 0.99)
}

// snapshot copies the window and sorts it ascending.
func (lt *LatencyTracker) snapshot() []float64 {
	lt.mu.Lock()
	out := append([]float64(nil), lt.buf...)
	lt.mu.Unlock()
	sort.Float64s(out)
	return out
}

// quantile interpolates linearly between the neighboring order
// statistics of a sorted, non-empty sample. q is in [0,1].
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	i := int(pos)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (pos-float64(i))*(sorted[i+1]-sorted[i])
}
