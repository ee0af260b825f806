// Package commitreveal implements the windowed commit-reveal beacon (C14):
// participants commit to a hidden (salt, payload) pair, then must reveal it
// within a fixed window; any mutation of address, salt, or payload fails
// verification against the stored commitment hash.
package commitreveal

import (
	"sync"

	"github.com/animicaorg/animica/internal/common"
)

const commitDomainTag byte = 0x10

// Window describes a round's phase lengths, in the same time unit the
// caller passes to Commit/Reveal (commonly seconds).
type Window struct {
	CommitLen int64
	RevealLen int64
	SettleLen int64
}

// TotalLen returns the sum of all three phases.
func (w Window) TotalLen() int64 { return w.CommitLen + w.RevealLen + w.SettleLen }

func commitmentHash(address string, salt, payload []byte) common.Hash {
	return common.Sum256(commitDomainTag, []byte(address), salt, payload)
}

type roundKey struct {
	Round   uint64
	Address string
}

type commitment struct {
	hash       common.Hash
	commitTime int64
	revealed   bool
	revealTime int64
}

// Manager tracks commitments and reveals across rounds of a fixed Window.
type Manager struct {
	window Window

	mu          sync.Mutex
	commitments map[roundKey]*commitment
}

// NewManager returns a Manager enforcing window on every round.
func NewManager(window Window) *Manager {
	return &Manager{window: window, commitments: make(map[roundKey]*commitment)}
}

// Commit registers address's commitment to (salt, payload) at time t
// (offset from the round start). t must fall within [0, CommitLen).
func (m *Manager) Commit(round uint64, address string, salt, payload []byte, t int64) error {
	if t < 0 || t >= m.window.CommitLen {
		return common.NewValidationError("commitreveal.Commit", errOutsideCommitWindow)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := roundKey{Round: round, Address: address}
	if _, exists := m.commitments[key]; exists {
		return common.NewConflictError("commitreveal.Commit", errDuplicateCommit)
	}
	m.commitments[key] = &commitment{hash: commitmentHash(address, salt, payload), commitTime: t}
	return nil
}

// Reveal validates a (salt, payload) reveal against the stored commitment
// for (round, address) at time t:
//   - t must fall within [CommitLen, CommitLen+RevealLen),
//   - t must be >= the original commit time,
//   - H(address, salt, payload) must equal the stored commitment hash.
//
// Any mutation of address, salt, or payload changes the recomputed hash and
// is rejected as an IntegrityError.
func (m *Manager) Reveal(round uint64, address string, salt, payload []byte, t int64) error {
	revealStart := m.window.CommitLen
	revealEnd := m.window.CommitLen + m.window.RevealLen
	if t < revealStart || t >= revealEnd {
		return common.NewValidationError("commitreveal.Reveal", errOutsideRevealWindow)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := roundKey{Round: round, Address: address}
	c, ok := m.commitments[key]
	if !ok {
		return common.NewNotFoundError("commitment", address)
	}
	if c.revealed {
		return common.NewConflictError("commitreveal.Reveal", errAlreadyRevealed)
	}
	if t < c.commitTime {
		return common.NewValidationError("commitreveal.Reveal", errRevealBeforeCommit)
	}

	if commitmentHash(address, salt, payload) != c.hash {
		return common.NewIntegrityError("commitreveal.Reveal", errHashMismatch)
	}

	c.revealed = true
	c.revealTime = t
	return nil
}

// Revealed reports whether (round, address) has a verified reveal, and the
// time it occurred.
func (m *Manager) Revealed(round uint64, address string) (t int64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, exists := m.commitments[roundKey{Round: round, Address: address}]
	if !exists || !c.revealed {
		return 0, false
	}
	return c.revealTime, true
}

type beaconError struct{ msg string }

func (e beaconError) Error() string { return e.msg }

var (
	errOutsideCommitWindow = beaconError{"commit time outside commit window"}
	errOutsideRevealWindow = beaconError{"reveal time outside reveal window"}
	errRevealBeforeCommit  = beaconError{"reveal time precedes commit time"}
	errDuplicateCommit     = beaconError{"duplicate commitment for round/address"}
	errAlreadyRevealed     = beaconError{"commitment already revealed"}
	errHashMismatch        = beaconError{"revealed salt/payload does not match stored commitment"}
)
