package template

import (
	"testing"
	"time"

	"github.com/animicaorg/animica/internal/common"
)

func TestOnHeadBuildsInitialTemplate(t *testing.T) {
	clock := &common.FixedClock{At: time.Unix(1000, 0)}
	m := NewManager(clock, 30)
	head := common.Sum256(0, []byte("head1"))
	mix := common.Sum256(0, []byte("mix1"))

	tpl := m.OnHead(head, 10, mix)
	if tpl == nil {
		t.Fatal("expected a template after the first OnHead")
	}
	if tpl.HeadHash != head || tpl.HeadHeight != 10 {
		t.Fatalf("template binding fields mismatch: %+v", tpl)
	}
	if tpl.Identity.IsZero() {
		t.Fatal("identity hash should not be zero")
	}
}

func TestOnHeadRolloverOnChange(t *testing.T) {
	clock := &common.FixedClock{At: time.Unix(1000, 0)}
	m := NewManager(clock, 30)
	head1 := common.Sum256(0, []byte("head1"))
	mix := common.Sum256(0, []byte("mix"))
	first := m.OnHead(head1, 10, mix)

	// Same head, same height -> no rollover, identical identity.
	same := m.OnHead(head1, 10, mix)
	if same.Identity != first.Identity {
		t.Fatal("repeated OnHead with unchanged head should not roll over")
	}

	head2 := common.Sum256(0, []byte("head2"))
	changed := m.OnHead(head2, 11, mix)
	if changed.Identity == first.Identity {
		t.Fatal("head change should produce a new template identity")
	}
}

func TestCurrentExpiresOnTTL(t *testing.T) {
	clock := &common.FixedClock{At: time.Unix(1000, 0)}
	m := NewManager(clock, 30)
	head := common.Sum256(0, []byte("head"))
	mix := common.Sum256(0, []byte("mix"))
	first := m.OnHead(head, 1, mix)

	clock.At = clock.At.Add(10 * time.Second)
	stillFresh := m.Current()
	if stillFresh.Identity != first.Identity {
		t.Fatal("template should not expire before its TTL elapses")
	}

	clock.At = clock.At.Add(25 * time.Second) // now 35s after creation, past ttl=30
	expired := m.Current()
	if expired.Identity == first.Identity {
		t.Fatal("template should roll over once its TTL has elapsed")
	}
	if expired.HeadHash != head || expired.HeadHeight != 1 {
		t.Fatal("TTL rollover should preserve the same binding fields")
	}
}

func TestExplicitRefreshChangesIdentity(t *testing.T) {
	clock := &common.FixedClock{At: time.Unix(1000, 0)}
	m := NewManager(clock, 30)
	head := common.Sum256(0, []byte("head"))
	mix := common.Sum256(0, []byte("mix"))
	first := m.OnHead(head, 1, mix)

	clock.At = clock.At.Add(1 * time.Second)
	refreshed := m.Refresh()
	if refreshed.Identity == first.Identity {
		t.Fatal("explicit refresh at a new timestamp should change identity")
	}
}
