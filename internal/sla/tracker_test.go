package sla

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestSuccessRateAndClamping(t *testing.T) {
	tr := NewTracker(Config{WindowSeconds: 3600, EWMAAlpha: 0.3, HeartbeatTTLSec: 60})
	tr.RecordJob(JobMeasure{Success: true, TrapsRatio: floatPtr(1.5), LatencyMs: 10, TimestampS: 100})
	tr.RecordJob(JobMeasure{Success: false, TrapsRatio: floatPtr(-0.5), LatencyMs: 20, TimestampS: 110})

	snap := tr.Snapshot(120)
	if snap.SuccessRate != 0.5 {
		t.Fatalf("SuccessRate = %v, want 0.5", snap.SuccessRate)
	}
	// (1.0 + 0.0) / 2 after clamping to [0,1].
	if snap.TrapsMean != 0.5 {
		t.Fatalf("TrapsMean = %v, want 0.5 (clamped)", snap.TrapsMean)
	}
}

func TestSnapshotPrunesOutOfWindowJobs(t *testing.T) {
	tr := NewTracker(Config{WindowSeconds: 100, EWMAAlpha: 0.5, HeartbeatTTLSec: 60})
	tr.RecordJob(JobMeasure{Success: true, LatencyMs: 5, TimestampS: 0})
	tr.RecordJob(JobMeasure{Success: true, LatencyMs: 5, TimestampS: 950})

	snap := tr.Snapshot(1000)
	if snap.SuccessRate != 1.0 {
		t.Fatalf("SuccessRate after pruning = %v, want 1.0 (only the in-window job remains)", snap.SuccessRate)
	}
}

func TestEWMAFallbackWhenWindowEmptyOfRatios(t *testing.T) {
	tr := NewTracker(Config{WindowSeconds: 3600, EWMAAlpha: 0.5, HeartbeatTTLSec: 60})
	tr.RecordJob(JobMeasure{Success: true, TrapsRatio: floatPtr(0.8), LatencyMs: 1, TimestampS: 0})
	// Second job has no TrapsRatio; it is left out of the in-window mean
	// rather than counted as 0, so the mean stays at the first job's 0.8.
	tr.RecordJob(JobMeasure{Success: true, LatencyMs: 1, TimestampS: 1})
	snap := tr.Snapshot(10)
	if snap.TrapsMean != 0.8 {
		t.Fatalf("TrapsMean with one missing ratio = %v, want 0.8", snap.TrapsMean)
	}

	tr2 := NewTracker(Config{WindowSeconds: 3600, EWMAAlpha: 0.5, HeartbeatTTLSec: 60})
	// No jobs with TrapsRatio recorded at all: falls back to EWMA's zero value.
	tr2.RecordJob(JobMeasure{Success: true, LatencyMs: 1, TimestampS: 0})
	snap2 := tr2.Snapshot(10)
	if snap2.TrapsMean != 0 {
		t.Fatalf("TrapsMean with no ratio observations = %v, want 0 (EWMA default)", snap2.TrapsMean)
	}
}

func TestLatencyPercentiles(t *testing.T) {
	tr := NewTracker(Config{WindowSeconds: 3600, EWMAAlpha: 0.5, HeartbeatTTLSec: 60, LatencyEdgesMS: []float64{10, 20, 30, 40, 50}})
	for i := 1; i <= 50; i++ {
		tr.RecordJob(JobMeasure{Success: true, LatencyMs: float64(i), TimestampS: int64(i)})
	}
	snap := tr.Snapshot(100)
	if snap.LatencyP50 < 20 || snap.LatencyP50 > 30 {
		t.Fatalf("p50 = %v, expected roughly mid-range for a uniform 1..50 distribution", snap.LatencyP50)
	}
	if snap.LatencyP99 < snap.LatencyP50 {
		t.Fatalf("p99 (%v) should be >= p50 (%v)", snap.LatencyP99, snap.LatencyP50)
	}
}

func TestAvailabilityUnionOfHeartbeatIntervals(t *testing.T) {
	tr := NewTracker(Config{WindowSeconds: 100, EWMAAlpha: 0.5, HeartbeatTTLSec: 30})
	// Heartbeats at t=0 and t=20 overlap (covers [0,30] and [20,50] -> union [0,50]).
	tr.Heartbeat(0)
	tr.Heartbeat(20)
	snap := tr.Snapshot(100)
	want := 50.0 / 100.0
	if math.Abs(snap.Availability-want) > 1e-9 {
		t.Fatalf("Availability = %v, want %v", snap.Availability, want)
	}
}

func TestAvailabilityZeroWithNoHeartbeats(t *testing.T) {
	tr := NewTracker(Config{WindowSeconds: 100, EWMAAlpha: 0.5, HeartbeatTTLSec: 30})
	snap := tr.Snapshot(100)
	assert.Zero(t, snap.Availability, "availability with no heartbeats")
}

func TestTotalPayoutSumsRewardAmounts(t *testing.T) {
	tr := NewTracker(Config{WindowSeconds: 100, EWMAAlpha: 0.5, HeartbeatTTLSec: 30})
	tr.RecordJob(JobMeasure{Success: true, LatencyMs: 1, TimestampS: 0, RewardAmount: uint256.NewInt(100)})
	tr.RecordJob(JobMeasure{Success: true, LatencyMs: 1, TimestampS: 1, RewardAmount: uint256.NewInt(250)})
	tr.RecordJob(JobMeasure{Success: true, LatencyMs: 1, TimestampS: 2}) // nil RewardAmount

	snap := tr.Snapshot(10)
	assert.Equal(t, 0, snap.TotalPayout.Cmp(uint256.NewInt(350)), "TotalPayout should sum only the non-nil reward amounts")
}

func TestTotalPayoutExcludesPrunedJobs(t *testing.T) {
	tr := NewTracker(Config{WindowSeconds: 10, EWMAAlpha: 0.5, HeartbeatTTLSec: 30})
	tr.RecordJob(JobMeasure{Success: true, LatencyMs: 1, TimestampS: 0, RewardAmount: uint256.NewInt(100)})
	tr.RecordJob(JobMeasure{Success: true, LatencyMs: 1, TimestampS: 95, RewardAmount: uint256.NewInt(5)})

	snap := tr.Snapshot(100)
	assert.Equal(t, 0, snap.TotalPayout.Cmp(uint256.NewInt(5)), "payout from a pruned job should not be counted")
}
