// Package metrics is a self-contained counter/gauge/meter/histogram registry
// modeled on go-ethereum's own metrics package. Every constructor is safe to
// call with a nil *Registry (it then returns a fresh, unregistered
// instrument), and
// every instrument is safe to read/write concurrently.
package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// Counter is a monotonic or bidirectional running total.
type Counter struct {
	count atomic.Int64
}

// NewCounter returns a zeroed Counter.
func NewCounter() *Counter { return &Counter{} }

// Inc adds delta (may be negative) to the counter.
func (c *Counter) Inc(delta int64) { c.count.Add(delta) }

// Dec subtracts delta from the counter.
func (c *Counter) Dec(delta int64) { c.count.Add(-delta) }

// Clear resets the counter to zero.
func (c *Counter) Clear() { c.count.Store(0) }

// Snapshot returns the counter's current value (it IS the snapshot since the
// underlying value is already atomic).
func (c *Counter) Snapshot() *Counter {
	s := &Counter{}
	s.count.Store(c.count.Load())
	return s
}

// Count returns the counter's value.
func (c *Counter) Count() int64 { return c.count.Load() }

// Gauge holds an instantaneous integer value.
type Gauge struct {
	value atomic.Int64
}

// NewGauge returns a zeroed Gauge.
func NewGauge() *Gauge { return &Gauge{} }

// Update sets the gauge's value.
func (g *Gauge) Update(v int64) { g.value.Store(v) }

// Inc adds delta to the gauge (useful for inflight counters).
func (g *Gauge) Inc(delta int64) { g.value.Add(delta) }

// Dec subtracts delta from the gauge.
func (g *Gauge) Dec(delta int64) { g.value.Add(-delta) }

// Value returns the gauge's current value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// GaugeFloat64 holds an instantaneous float value, guarded by a mutex since
// there is no atomic float64 in the standard library.
type GaugeFloat64 struct {
	mu    sync.Mutex
	value float64
}

// NewGaugeFloat64 returns a zeroed GaugeFloat64.
func NewGaugeFloat64() *GaugeFloat64 { return &GaugeFloat64{} }

// Update sets the gauge's value.
func (g *GaugeFloat64) Update(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Value returns the gauge's current value.
func (g *GaugeFloat64) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Meter tracks a rate of events (count plus EWMA-style snapshot is omitted
// for simplicity; callers needing rates should divide Count by elapsed
// wall-time themselves, which is what every caller in this module does).
type Meter struct {
	count atomic.Int64
}

// NewMeter returns a zeroed Meter.
func NewMeter() *Meter { return &Meter{} }

// Mark records n occurrences.
func (m *Meter) Mark(n int64) { m.count.Add(n) }

// Count returns the total number of marked occurrences.
func (m *Meter) Count() int64 { return m.count.Load() }

// EWMA is an exponentially weighted moving average, used by the SLA metrics
// engine (C3) to track traps/QoS ratios between job observations.
type EWMA struct {
	mu          sync.Mutex
	alpha       float64
	initialized bool
	rate        float64
}

// NewEWMA returns an EWMA with the given smoothing factor alpha in (0,1].
func NewEWMA(alpha float64) *EWMA {
	return &EWMA{alpha: alpha}
}

// Update folds in a new observation.
func (e *EWMA) Update(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		e.rate = v
		e.initialized = true
		return
	}
	e.rate += e.alpha * (v - e.rate)
}

// Value returns the current EWMA value.
func (e *EWMA) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

// Histogram is a fixed-bucket-edge histogram with overflow bucket, used for
// latency distributions (SLA metrics, HTTP instrumentation).
type Histogram struct {
	mu      sync.Mutex
	edges   []float64 // ascending, inclusive upper bounds
	buckets []int64   // len(edges)+1, last is overflow
	sum     float64
	count   int64
}

// NewHistogram returns a Histogram with the given ascending bucket edges.
func NewHistogram(edges []float64) *Histogram {
	return &Histogram{
		edges:   append([]float64{}, edges...),
		buckets: make([]int64, len(edges)+1),
	}
}

// Observe records a single sample.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := sort.SearchFloat64s(h.edges, v)
	h.buckets[idx]++
	h.sum += v
	h.count++
}

// Count returns the total number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Mean returns the arithmetic mean of observed values, or 0 if empty.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// Quantile estimates the q-th quantile (0<q<1) via linear interpolation
// within the bucket that contains it, treating each bucket's mass as
// uniformly distributed between its lower and upper edge.
func (h *Histogram) Quantile(q float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	target := q * float64(h.count)
	var cum int64
	lower := 0.0
	for i, c := range h.buckets {
		upper := math.Inf(1)
		if i < len(h.edges) {
			upper = h.edges[i]
		}
		if float64(cum+c) >= target {
			if c == 0 || math.IsInf(upper, 1) {
				return lower
			}
			frac := (target - float64(cum)) / float64(c)
			return lower + frac*(upper-lower)
		}
		cum += c
		lower = upper
	}
	return lower
}

// Snapshot returns the bucket counts at the time of the call (copy).
func (h *Histogram) Snapshot() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.buckets))
	copy(out, h.buckets)
	return out
}

// Timer combines a Histogram of durations (in milliseconds) with a count,
// used by RequestTimer below.
type Timer struct {
	hist *Histogram
}

// NewTimer returns a Timer using the given latency bucket edges (ms).
func NewTimer(edgesMS []float64) *Timer {
	return &Timer{hist: NewHistogram(edgesMS)}
}

// UpdateMS records a duration in milliseconds.
func (t *Timer) UpdateMS(ms float64) { t.hist.Observe(ms) }

// Histogram exposes the underlying histogram for quantile queries.
func (t *Timer) Histogram() *Histogram { return t.hist }

// Registry is a named collection of instruments, keyed by a caller-chosen
// string (commonly "component.instrument" or "method.endpoint"). A nil
// *Registry is valid and simply allocates unregistered instruments on every
// call (no-op sharing, but never a nil-pointer panic).
type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	gaugesF    map[string]*GaugeFloat64
	meters     map[string]*Meter
	histograms map[string]*Histogram
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		gaugesF:    make(map[string]*GaugeFloat64),
		meters:     make(map[string]*Meter),
		histograms: make(map[string]*Histogram),
	}
}

// GetOrRegisterCounter returns the named counter, creating it if absent.
func (r *Registry) GetOrRegisterCounter(name string) *Counter {
	if r == nil {
		return NewCounter()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := NewCounter()
	r.counters[name] = c
	return c
}

// GetOrRegisterGauge returns the named gauge, creating it if absent.
func (r *Registry) GetOrRegisterGauge(name string) *Gauge {
	if r == nil {
		return NewGauge()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := NewGauge()
	r.gauges[name] = g
	return g
}

// GetOrRegisterGaugeFloat64 returns the named float gauge, creating it if absent.
func (r *Registry) GetOrRegisterGaugeFloat64(name string) *GaugeFloat64 {
	if r == nil {
		return NewGaugeFloat64()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gaugesF[name]; ok {
		return g
	}
	g := NewGaugeFloat64()
	r.gaugesF[name] = g
	return g
}

// GetOrRegisterMeter returns the named meter, creating it if absent.
func (r *Registry) GetOrRegisterMeter(name string) *Meter {
	if r == nil {
		return NewMeter()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.meters[name]; ok {
		return m
	}
	m := NewMeter()
	r.meters[name] = m
	return m
}

// GetOrRegisterHistogram returns the named histogram, creating it (with the
// given edges) if absent.
func (r *Registry) GetOrRegisterHistogram(name string, edges []float64) *Histogram {
	if r == nil {
		return NewHistogram(edges)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	h := NewHistogram(edges)
	r.histograms[name] = h
	return h
}

// DefaultLatencyEdgesMS are the bucket edges (milliseconds) used for HTTP and
// proof-verification latency histograms across the module: a fixed,
// monotonically increasing sequence used by every RequestTimer and by the
// SLA tracker when it is given no edges of its own.
var DefaultLatencyEdgesMS = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
