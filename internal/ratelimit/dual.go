package ratelimit

import "github.com/animicaorg/animica/internal/common"

// DualLimiter pairs an independent byte-rate Limiter and tx-count-rate
// Limiter so bytes and tx-count can use independent buckets. A peer is
// admitted only if both dimensions admit it.
type DualLimiter struct {
	Bytes *Limiter
	Txs   *Limiter
}

// NewDualLimiter builds a DualLimiter from independent byte and tx-count
// configs, sharing the same clock.
func NewDualLimiter(clock common.Clock, byteCfg, txCfg Config) *DualLimiter {
	return &DualLimiter{
		Bytes: NewLimiter(clock, byteCfg),
		Txs:   NewLimiter(clock, txCfg),
	}
}

// Allow admits a message of nBytes for peerID as 1 tx-count unit, checking
// both dimensions. The byte bucket is checked first; if it rejects, the
// tx-count bucket is left untouched.
func (d *DualLimiter) Allow(peerID string, nBytes float64) bool {
	if !d.Bytes.Allow(peerID, nBytes) {
		return false
	}
	return d.Txs.Allow(peerID, 1)
}
