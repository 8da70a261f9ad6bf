package metrics

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// reservoirSize bounds memory per job; large enough that p50/p95/p99 stay
// stable across thousands of observations without storing every sample.
const reservoirSize = 512

// Digest is a per-job reservoir sample of execution durations for ad-hoc
// job_duration_ms quantile queries. The sample is uniform over every
// observation since the Digest was created; it is not a sliding window, so
// old durations are never aged out. No HTTP handler reads it.
type Digest struct {
	mu      sync.Mutex
	samples map[string][]time.Duration
	count   map[string]int
	rng     *rand.Rand
}

// NewDigest returns an empty Digest.
func NewDigest() *Digest {
	return &Digest{
		samples: make(map[string][]time.Duration),
		count:   make(map[string]int),
		rng:     rand.New(rand.NewSource(1)),
	}
}

// Observe records one execution duration for job, using reservoir sampling
// once the per-job reservoir fills.
func (d *Digest) Observe(job string, dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.count[job]++
	n := d.count[job]

	bucket := d.samples[job]
	if len(bucket) < reservoirSize {
		d.samples[job] = append(bucket, dur)
		return
	}
	if j := d.rng.Intn(n); j < reservoirSize {
		bucket[j] = dur
	}
}

// Quantiles returns the p50/p95/p99 of job's current reservoir, in that
// order. All three are zero if no samples have been observed.
func (d *Digest) Quantiles(job string) (p50, p95, p99 time.Duration) {
	d.mu.Lock()
	bucket := append([]time.Duration(nil), d.samples[job]...)
	d.mu.Unlock()

	if len(bucket) == 0 {
		return 0, 0, 0
	}
	sort.Slice(bucket, func(i, j int) bool { return bucket[i] < bucket[j] })

	return percentile(bucket, 0.50), percentile(bucket, 0.95), percentile(bucket, 0.99)
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
