package ratelimit

import (
	"testing"
	"time"

	"github.com/animicaorg/animica/internal/common"
)

// TestRateLimitIsolation checks that two peers P1, P2 with
// rate=2, burst=3. After P1 consumes 3, the next P1 consume fails; P2 still
// succeeds up to 3. After 0.5s, both have ~1 extra token.
func TestRateLimitIsolation(t *testing.T) {
	clock := &common.FixedClock{At: time.Unix(0, 0)}
	lim := NewLimiter(clock, Config{PeerRate: 2, PeerBurst: 3})

	for i := 0; i < 3; i++ {
		if !lim.Allow("P1", 1) {
			t.Fatalf("P1 consume %d should succeed (within burst)", i)
		}
	}
	if lim.Allow("P1", 1) {
		t.Fatal("P1's 4th consume should fail, bucket exhausted")
	}

	for i := 0; i < 3; i++ {
		if !lim.Allow("P2", 1) {
			t.Fatalf("P2 consume %d should succeed independently of P1", i)
		}
	}

	clock.At = clock.At.Add(500 * time.Millisecond)
	if !lim.Allow("P1", 1) {
		t.Fatal("P1 should have ~1 extra token after 0.5s at rate=2/s")
	}
	if lim.Allow("P1", 1) {
		t.Fatal("P1 should not have a second extra token yet")
	}
}

func TestGlobalBucketGatesAllPeers(t *testing.T) {
	clock := &common.FixedClock{At: time.Unix(0, 0)}
	lim := NewLimiter(clock, Config{PeerRate: 100, PeerBurst: 100, GlobalRate: 1, GlobalBurst: 2})

	if !lim.Allow("A", 1) || !lim.Allow("B", 1) {
		t.Fatal("first two global-budget consumes should succeed across peers")
	}
	if lim.Allow("C", 1) {
		t.Fatal("global bucket should be exhausted regardless of per-peer headroom")
	}
}

func TestDualLimiterRequiresBothDimensions(t *testing.T) {
	clock := &common.FixedClock{At: time.Unix(0, 0)}
	d := NewDualLimiter(clock,
		Config{PeerRate: 1000, PeerBurst: 1000}, // generous byte budget
		Config{PeerRate: 1, PeerBurst: 1},        // tight tx-count budget
	)
	if !d.Allow("P1", 500) {
		t.Fatal("first message should be admitted")
	}
	if d.Allow("P1", 1) {
		t.Fatal("second message should be rejected by the exhausted tx-count bucket")
	}
}

func TestConsumeRefillsMonotonically(t *testing.T) {
	clock := &common.FixedClock{At: time.Unix(0, 0)}
	b := NewBucket(clock, 1, 5)
	b.Consume(5)
	if b.Consume(1) {
		t.Fatal("bucket should be empty")
	}
	clock.At = clock.At.Add(2 * time.Second)
	if !b.Consume(2) {
		t.Fatal("2 seconds at rate=1 should refill 2 tokens")
	}
}
