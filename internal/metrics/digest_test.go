package metrics

import (
	"testing"
	"time"
)

func TestDigestQuantilesOnUniformSamples(t *testing.T) {
	d := NewDigest()
	for i := 1; i <= 100; i++ {
		d.Observe("job", time.Duration(i)*time.Millisecond)
	}
	p50, p95, p99 := d.Quantiles("job")
	if p50 < 45*time.Millisecond || p50 > 55*time.Millisecond {
		t.Fatalf("p50 = %v, want near 50ms", p50)
	}
	if p95 < p50 || p99 < p95 {
		t.Fatalf("expected p50 <= p95 <= p99, got %v %v %v", p50, p95, p99)
	}
}

func TestDigestEmptyJobIsZero(t *testing.T) {
	d := NewDigest()
	p50, p95, p99 := d.Quantiles("never-observed")
	if p50 != 0 || p95 != 0 || p99 != 0 {
		t.Fatalf("expected zero quantiles for unobserved job, got %v %v %v", p50, p95, p99)
	}
}

func TestDigestReservoirCapsMemory(t *testing.T) {
	d := NewDigest()
	for i := 0; i < reservoirSize*4; i++ {
		d.Observe("busy", time.Duration(i)*time.Millisecond)
	}
	d.mu.Lock()
	n := len(d.samples["busy"])
	d.mu.Unlock()
	if n != reservoirSize {
		t.Fatalf("reservoir size = %d, want %d", n, reservoirSize)
	}
}
