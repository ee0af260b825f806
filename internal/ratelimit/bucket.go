// Package ratelimit implements token-bucket admission control (C11): a
// per-peer bucket map with an optional global bucket in series, both driven
// by an injected monotonic clock rather than wall-clock time so tests can
// advance time deterministically.
package ratelimit

import (
	"sync"

	"github.com/animicaorg/animica/internal/common"
)

// Bucket is a single token bucket: tokens refill continuously at rate
// tokens/sec up to burst, and consume(n) either deducts n tokens or rejects.
type Bucket struct {
	mu         sync.Mutex
	clock      common.Clock
	rate       float64 // tokens per second
	burst      float64
	tokens     float64
	lastRefill int64 // unix nanos
}

// NewBucket returns a Bucket starting full, driven by clock.
func NewBucket(clock common.Clock, rate, burst float64) *Bucket {
	return &Bucket{
		clock:      clock,
		rate:       rate,
		burst:      burst,
		tokens:     burst,
		lastRefill: clock.Now().UnixNano(),
	}
}

// Consume attempts to deduct n tokens, refilling first. Returns true if the
// bucket had enough tokens.
func (b *Bucket) Consume(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Tokens returns the current token count after refilling.
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

func (b *Bucket) refillLocked() {
	now := b.clock.Now().UnixNano()
	elapsed := float64(now-b.lastRefill) / 1e9
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now
}

// Limiter is a per-peer map of buckets with an optional global bucket that
// must also admit the request, checked ahead of the per-peer bucket.
type Limiter struct {
	mu     sync.Mutex
	clock  common.Clock
	rate   float64
	burst  float64
	global *Bucket
	peers  map[string]*Bucket
}

// Config configures a Limiter's per-peer rate/burst and optional global cap.
type Config struct {
	PeerRate    float64
	PeerBurst   float64
	GlobalRate  float64 // 0 disables the global bucket
	GlobalBurst float64
}

// NewLimiter returns a Limiter driven by clock. A GlobalRate of 0 disables
// the global (series) bucket.
func NewLimiter(clock common.Clock, cfg Config) *Limiter {
	l := &Limiter{
		clock: clock,
		rate:  cfg.PeerRate,
		burst: cfg.PeerBurst,
		peers: make(map[string]*Bucket),
	}
	if cfg.GlobalRate > 0 {
		l.global = NewBucket(clock, cfg.GlobalRate, cfg.GlobalBurst)
	}
	return l
}

// Allow attempts to admit n units (bytes or tx count) for peerID. The global
// bucket, if configured, is checked first; a global rejection never consumes
// from the per-peer bucket.
func (l *Limiter) Allow(peerID string, n float64) bool {
	if l.global != nil && !l.global.Consume(n) {
		return false
	}
	return l.peerBucket(peerID).Consume(n)
}

func (l *Limiter) peerBucket(peerID string) *Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.peers[peerID]
	if !ok {
		b = NewBucket(l.clock, l.rate, l.burst)
		l.peers[peerID] = b
	}
	return b
}

// PeerTokens returns peerID's current token count, for diagnostics and
// tests. For a peer with no bucket yet it creates a full one as a side effect.
func (l *Limiter) PeerTokens(peerID string) float64 {
	return l.peerBucket(peerID).Tokens()
}
