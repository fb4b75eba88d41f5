package gateway

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLatencyTracker_Empty(t *testing.T) {
	lt := NewLatencyTracker(16)
	p50, p95, p99 := lt.Percentiles()
	if p50 != 0 || p95 != 0 || p99 != 0 {
		t.Errorf("empty tracker: got %v %v %v, want zeros", p50, p95, p99)
	}
	if lt.Count() != 0 {
		t.Errorf("count: got %d, want 0", lt.Count())
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(16)
	lt.Record(42.5)
	p50, p95, p99 := lt.Percentiles()
	if p50 != 42.5 || p95 != 42.5 || p99 != 42.5 {
		t.Errorf("single sample: got %v %v %v, want 42.5 across the board", p50, p95, p99)
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(128)
	for i := 1; i <= 100; i++ {
		lt.Record(float64(i))
	}

	p50, p95, p99 := lt.Percentiles()
	if !almostEqual(p50, 50.5) {
		t.Errorf("p50: got %v, want 50.5", p50)
	}
	if !almostEqual(p95, 95.05) {
		t.Errorf("p95: got %v, want 95.05", p95)
	}
	if !almostEqual(p99, 99.01) {
		t.Errorf("p99: got %v, want 99.01", p99)
	}
}

func TestLatencyTracker_WrapsAtCapacity(t *testing.T) {
	lt := NewLatencyTracker(4)
	for i := 1; i <= 8; i++ {
		lt.Record(float64(i * 10))
	}

	if got := lt.Count(); got != 4 {
		t.Fatalf("count after wrap: got %d, want 4", got)
	}
	// Only 50,60,70,80 survive.
	p50, _, p99 := lt.Percentiles()
	if p50 < 50 || p99 > 80 {
		t.Errorf("percentiles outside surviving window: p50=%v p99=%v", p50, p99)
	}
	if !almostEqual(p50, 65) {
		t.Errorf("p50 of {50,60,70,80}: got %v, want 65", p50)
	}
}

func TestLatencyTracker_DefaultCapacity(t *testing.T) {
	lt := NewLatencyTracker(0)
	lt.Record(1)
	if lt.Count() != 1 {
		t.Errorf("count: got %d, want 1", lt.Count())
	}
}
