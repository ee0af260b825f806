// Package sla implements per-provider SLA aggregates (C3): a rolling window
// of job measurements feeding a success rate, EWMA traps/QoS ratios, a
// latency histogram with percentile interpolation, and heartbeat-coverage
// availability.
package sla

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/animicaorg/animica/internal/metrics"
)

// JobMeasure is one observed job outcome.
type JobMeasure struct {
	Success      bool
	TrapsRatio   *float64 // nil if not applicable to this job
	QoS          *float64
	LatencyMs    float64
	TimestampS   int64
	RewardAmount *uint256.Int // payout owed for this job, nil if not applicable
}

// Config parametrizes a Tracker.
type Config struct {
	WindowSeconds   int64
	EWMAAlpha       float64
	HeartbeatTTLSec int64
	LatencyEdgesMS  []float64
}

// Snapshot is a point-in-time view of a provider's rolling aggregates.
type Snapshot struct {
	SuccessRate  float64
	TrapsMean    float64
	QoSMean      float64
	LatencyP50   float64
	LatencyP95   float64
	LatencyP99   float64
	Availability float64
	TotalPayout  *uint256.Int // sum of RewardAmount over jobs currently in the window
}

// Tracker holds one provider's rolling measurements.
type Tracker struct {
	cfg Config

	jobs       []JobMeasure
	heartbeats []int64

	trapsEWMA *metrics.EWMA
	qosEWMA   *metrics.EWMA
}

// NewTracker returns a Tracker using cfg. A zero LatencyEdgesMS falls back
// to metrics.DefaultLatencyEdgesMS.
func NewTracker(cfg Config) *Tracker {
	if cfg.LatencyEdgesMS == nil {
		cfg.LatencyEdgesMS = metrics.DefaultLatencyEdgesMS
	}
	return &Tracker{
		cfg:       cfg,
		trapsEWMA: metrics.NewEWMA(cfg.EWMAAlpha),
		qosEWMA:   metrics.NewEWMA(cfg.EWMAAlpha),
	}
}

// RecordJob clamps traps/QoS ratios to [0,1], appends the measurement, and
// folds any present ratio into its EWMA.
func (t *Tracker) RecordJob(jm JobMeasure) {
	if jm.TrapsRatio != nil {
		v := clamp01(*jm.TrapsRatio)
		jm.TrapsRatio = &v
		t.trapsEWMA.Update(v)
	}
	if jm.QoS != nil {
		v := clamp01(*jm.QoS)
		jm.QoS = &v
		t.qosEWMA.Update(v)
	}
	t.jobs = append(t.jobs, jm)
}

// Heartbeat records a liveness ping at time t.
func (t *Tracker) Heartbeat(tSec int64) {
	t.heartbeats = append(t.heartbeats, tSec)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Snapshot prunes measurements outside [now-W, now] and computes the
// rolling aggregates.
func (t *Tracker) Snapshot(now int64) Snapshot {
	lo := now - t.cfg.WindowSeconds

	var inWindow []JobMeasure
	for _, j := range t.jobs {
		if j.TimestampS >= lo && j.TimestampS <= now {
			inWindow = append(inWindow, j)
		}
	}
	t.jobs = inWindow

	var successes int
	var trapsSum, qosSum float64
	var trapsN, qosN int
	totalPayout := uint256.NewInt(0)
	hist := metrics.NewHistogram(t.cfg.LatencyEdgesMS)
	for _, j := range inWindow {
		if j.Success {
			successes++
		}
		if j.TrapsRatio != nil {
			trapsSum += *j.TrapsRatio
			trapsN++
		}
		if j.QoS != nil {
			qosSum += *j.QoS
			qosN++
		}
		if j.RewardAmount != nil {
			totalPayout.Add(totalPayout, j.RewardAmount)
		}
		hist.Observe(j.LatencyMs)
	}

	var successRate float64
	if len(inWindow) > 0 {
		successRate = float64(successes) / float64(len(inWindow))
	}

	trapsMean := t.trapsEWMA.Value()
	if trapsN > 0 {
		trapsMean = trapsSum / float64(trapsN)
	}
	qosMean := t.qosEWMA.Value()
	if qosN > 0 {
		qosMean = qosSum / float64(qosN)
	}

	return Snapshot{
		SuccessRate:  successRate,
		TrapsMean:    trapsMean,
		QoSMean:      qosMean,
		LatencyP50:   hist.Quantile(0.50),
		LatencyP95:   hist.Quantile(0.95),
		LatencyP99:   hist.Quantile(0.99),
		Availability: t.availability(now, lo),
		TotalPayout:  totalPayout,
	}
}

// availability computes the union length of [t, t+ttl] heartbeat intervals
// intersected with [lo, now], divided by the window length.
func (t *Tracker) availability(now, lo int64) float64 {
	windowLen := now - lo
	if windowLen <= 0 {
		return 0
	}

	type interval struct{ start, end int64 }
	var intervals []interval
	for _, hb := range t.heartbeats {
		start := hb
		end := hb + t.cfg.HeartbeatTTLSec
		if start < lo {
			start = lo
		}
		if end > now {
			end = now
		}
		if start < end {
			intervals = append(intervals, interval{start, end})
		}
	}
	if len(intervals) == 0 {
		return 0
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start < intervals[j].start })

	var covered int64
	curStart, curEnd := intervals[0].start, intervals[0].end
	for _, iv := range intervals[1:] {
		if iv.start <= curEnd {
			if iv.end > curEnd {
				curEnd = iv.end
			}
			continue
		}
		covered += curEnd - curStart
		curStart, curEnd = iv.start, iv.end
	}
	covered += curEnd - curStart

	return float64(covered) / float64(windowLen)
}
