// Package metrics implements the process-wide accumulator: monotonic
// named counters plus a bounded latency reservoir with a percentile
// snapshot, shared by every concurrent request.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// MaxSamples is the latency reservoir's hard append cap. Samples beyond
// it are dropped, not replaced, per the design invariant.
const MaxSamples = 10_000

// histogramMinMicros/histogramMaxMicros bound the recordable latency
// range: 1 microsecond to 60 seconds, which comfortably covers both the
// HTTP executor's default timeout and the shell executor's simulated
// delays.
const (
	histogramMinMicros = 1
	histogramMaxMicros = 60_000_000
	histogramSigFigs   = 3
)

// Accumulator is the process-wide metrics state. Counter increments are
// atomic; the reservoir append is guarded by a mutex so the MaxSamples
// cap holds under concurrent writers.
type Accumulator struct {
	total   int64
	success int64
	failed  int64
	retried int64

	invalid     int64
	badExecutor int64

	mu        sync.Mutex
	histogram *hdrhistogram.Histogram
	samples   int64
}

// New builds an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{
		histogram: hdrhistogram.New(histogramMinMicros, histogramMaxMicros, histogramSigFigs),
	}
}

// RecordRequest updates the terminal-outcome counters for one completed
// dispatch: total always, success or failed exactly one of the two, and
// retried iff the request took more than one attempt.
func (a *Accumulator) RecordRequest(succeeded bool, attempts int) {
	atomic.AddInt64(&a.total, 1)
	if succeeded {
		atomic.AddInt64(&a.success, 1)
	} else {
		atomic.AddInt64(&a.failed, 1)
	}
	if attempts > 1 {
		atomic.AddInt64(&a.retried, 1)
	}
}

// RecordInvalid increments the requests.invalid counter, for validation
// rejections that never reach the retry controller.
func (a *Accumulator) RecordInvalid() {
	atomic.AddInt64(&a.invalid, 1)
}

// RecordBadExecutor increments the requests.badexecutor counter, for
// unrecognized X-Executor-Type values.
func (a *Accumulator) RecordBadExecutor() {
	atomic.AddInt64(&a.badExecutor, 1)
}

// RecordLatency appends one total-request-latency sample to the
// reservoir, dropping it silently once MaxSamples has been reached.
func (a *Accumulator) RecordLatency(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.samples >= MaxSamples {
		return
	}
	a.samples++
	_ = a.histogram.RecordValue(d.Microseconds())
}

// Snapshot is the JSON-serializable view returned by GET /metrics.
type Snapshot struct {
	Total        int64   `json:"total"`
	Success      int64   `json:"success"`
	Failed       int64   `json:"failed"`
	Retried      int64   `json:"retried"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
}

// Snapshot computes the current counter values and latency percentiles.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	mean := a.histogram.Mean()
	p95 := float64(a.histogram.ValueAtQuantile(95))
	a.mu.Unlock()

	return Snapshot{
		Total:        atomic.LoadInt64(&a.total),
		Success:      atomic.LoadInt64(&a.success),
		Failed:       atomic.LoadInt64(&a.failed),
		Retried:      atomic.LoadInt64(&a.retried),
		AvgLatencyMs: mean / 1000,
		P95LatencyMs: p95 / 1000,
	}
}

// Invalid returns the current requests.invalid counter value.
func (a *Accumulator) Invalid() int64 { return atomic.LoadInt64(&a.invalid) }

// BadExecutor returns the current requests.badexecutor counter value.
func (a *Accumulator) BadExecutor() int64 { return atomic.LoadInt64(&a.badExecutor) }
