package metrics

import (
	"context"
	"time"
)

// RequestTimer records latency, in-flight state, and an ok/error outcome
// counter around a unit of work — the pattern C9 (retrieval API) and C7
// (DAS proof verification) both need.
type RequestTimer struct {
	inflight *Gauge
	latency  *Timer
	ok       *Counter
	errs     *Counter
}

// NewRequestTimer builds a RequestTimer registered under the given name
// prefix (e.g. "http.POST./da/blob" or "das.verify").
func NewRequestTimer(reg *Registry, name string) *RequestTimer {
	return &RequestTimer{
		inflight: reg.GetOrRegisterGauge(name + ".inflight"),
		latency:  &Timer{hist: reg.GetOrRegisterHistogram(name+".latency_ms", DefaultLatencyEdgesMS)},
		ok:       reg.GetOrRegisterCounter(name + ".ok"),
		errs:     reg.GetOrRegisterCounter(name + ".error"),
	}
}

// Observe runs fn, tracking in-flight state and recording latency plus an
// ok/error outcome label based on whether fn returned a non-nil error.
func (rt *RequestTimer) Observe(_ context.Context, fn func() error) error {
	rt.inflight.Inc(1)
	start := time.Now()
	err := fn()
	rt.latency.UpdateMS(float64(time.Since(start).Microseconds()) / 1000.0)
	rt.inflight.Dec(1)
	if err != nil {
		rt.errs.Inc(1)
	} else {
		rt.ok.Inc(1)
	}
	return err
}

// Inflight exposes the in-flight gauge (e.g. for a sampler active-job gauge).
func (rt *RequestTimer) Inflight() *Gauge { return rt.inflight }

// Latency exposes the latency timer for direct quantile queries.
func (rt *RequestTimer) Latency() *Timer { return rt.latency }
