// Package template maintains the current work template (C15): the
// (head_hash, head_height, mix_seed, timestamp) tuple handed out to
// providers, rolled over on head change, TTL expiry, or explicit refresh.
package template

import (
	"encoding/binary"
	"sync"

	"github.com/animicaorg/animica/internal/common"
)

const identityDomainTag byte = 0x20

// Template is an immutable snapshot of work to build against.
type Template struct {
	HeadHash   common.Hash
	HeadHeight uint64
	MixSeed    common.Hash
	Timestamp  int64
	CreatedAt  int64
	Identity   common.Hash
}

func newIdentity(headHash common.Hash, headHeight uint64, mixSeed common.Hash, timestamp int64) common.Hash {
	var heightBuf, tsBuf [8]byte
	binary.BigEndian.PutUint64(heightBuf[:], headHeight)
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestamp))
	return common.Sum256(identityDomainTag, headHash.Bytes(), heightBuf[:], mixSeed.Bytes(), tsBuf[:])
}

// Manager tracks the current Template and rolls it over on expiry.
type Manager struct {
	mu      sync.Mutex
	clock   common.Clock
	ttl     int64 // seconds
	current *Template
}

// NewManager returns a Manager with no current template; the first call to
// OnHead or Refresh populates one.
func NewManager(clock common.Clock, ttlSeconds int64) *Manager {
	return &Manager{clock: clock, ttl: ttlSeconds}
}

// OnHead notifies the manager of the chain head. If headHash or headHeight
// differ from the current template's binding fields, a new template is
// built immediately (head-change rollover).
func (m *Manager) OnHead(headHash common.Hash, headHeight uint64, mixSeed common.Hash) *Template {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.HeadHash != headHash || m.current.HeadHeight != headHeight {
		m.buildLocked(headHash, headHeight, mixSeed)
	}
	return m.current
}

// Current returns the current template, rebuilding it first if its TTL has
// expired (now >= created_at + ttl). If no template has ever been built,
// Current returns nil.
func (m *Manager) Current() *Template {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	now := m.clock.Now().Unix()
	if m.ttl > 0 && now >= m.current.CreatedAt+m.ttl {
		m.buildLocked(m.current.HeadHash, m.current.HeadHeight, m.current.MixSeed)
	}
	return m.current
}

// Refresh forces a new template for the current binding fields, even if
// neither the head nor the TTL has changed.
func (m *Manager) Refresh() *Template {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	m.buildLocked(m.current.HeadHash, m.current.HeadHeight, m.current.MixSeed)
	return m.current
}

func (m *Manager) buildLocked(headHash common.Hash, headHeight uint64, mixSeed common.Hash) {
	now := m.clock.Now().Unix()
	m.current = &Template{
		HeadHash:   headHash,
		HeadHeight: headHeight,
		MixSeed:    mixSeed,
		Timestamp:  now,
		CreatedAt:  now,
		Identity:   newIdentity(headHash, headHeight, mixSeed, now),
	}
}
