package commitreveal

import "testing"

// TestCommitRevealTiming checks a window
// (commit=60, reveal=60, settle=30). Commit at t=10 over (addr, "s1", "p1").
// Reveal at t=30 is rejected (before reveal window). Reveal at t=80 with the
// correct salt is accepted. Reveal at t=80 with salt="s2" is rejected.
func TestCommitRevealTiming(t *testing.T) {
	m := NewManager(Window{CommitLen: 60, RevealLen: 60, SettleLen: 30})
	const addr = "addr1"

	if err := m.Commit(1, addr, []byte("s1"), []byte("p1"), 10); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := m.Reveal(1, addr, []byte("s1"), []byte("p1"), 30); err == nil {
		t.Fatal("reveal at t=30 should be rejected (before reveal window opens at t=60)")
	}

	if err := m.Reveal(1, addr, []byte("s2"), []byte("p1"), 80); err == nil {
		t.Fatal("reveal with wrong salt should be rejected")
	}

	if err := m.Reveal(1, addr, []byte("s1"), []byte("p1"), 80); err != nil {
		t.Fatalf("reveal with correct salt at t=80 should be accepted: %v", err)
	}

	revealT, ok := m.Revealed(1, addr)
	if !ok || revealT != 80 {
		t.Fatalf("Revealed = (%d, %v), want (80, true)", revealT, ok)
	}
}

func TestRevealAfterWindowCloses(t *testing.T) {
	m := NewManager(Window{CommitLen: 10, RevealLen: 10, SettleLen: 5})
	if err := m.Commit(1, "a", []byte("s"), []byte("p"), 0); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := m.Reveal(1, "a", []byte("s"), []byte("p"), 25); err == nil {
		t.Fatal("reveal after the window closes should be rejected")
	}
}

func TestRevealAfterLateCommitSucceeds(t *testing.T) {
	// A commit made late in the commit window (t=90) can be revealed as soon
	// as the reveal window opens (t=100), which is after its commit time.
	m := NewManager(Window{CommitLen: 100, RevealLen: 50, SettleLen: 0})
	if err := m.Commit(1, "a", []byte("s"), []byte("p"), 90); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := m.Reveal(1, "a", []byte("s"), []byte("p"), 100); err != nil {
		t.Fatalf("reveal right at window open, after commit time, should succeed: %v", err)
	}
}

func TestDuplicateCommitRejected(t *testing.T) {
	m := NewManager(Window{CommitLen: 60, RevealLen: 60, SettleLen: 30})
	if err := m.Commit(1, "a", []byte("s"), []byte("p"), 5); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := m.Commit(1, "a", []byte("s2"), []byte("p2"), 6); err == nil {
		t.Fatal("second commitment for the same round/address should be rejected")
	}
}

func TestDoubleRevealRejected(t *testing.T) {
	m := NewManager(Window{CommitLen: 60, RevealLen: 60, SettleLen: 30})
	if err := m.Commit(1, "a", []byte("s"), []byte("p"), 5); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := m.Reveal(1, "a", []byte("s"), []byte("p"), 70); err != nil {
		t.Fatalf("first reveal: %v", err)
	}
	if err := m.Reveal(1, "a", []byte("s"), []byte("p"), 75); err == nil {
		t.Fatal("second reveal for an already-revealed commitment should be rejected")
	}
}
