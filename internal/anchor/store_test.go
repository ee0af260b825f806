package anchor

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anchor.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestBlockAnchorIdempotence checks that inserting a claim
// (height=12345, job="job_abc", provider="prov_01", amount=120000), then
// insert again with amount=130000. Result: a single row with amount=130000.
func TestBlockAnchorIdempotence(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	claim := Claim{Height: 12345, JobID: "job_abc", ProviderID: "prov_01", Amount: 120000}
	if err := s.RecordProofClaim(ctx, claim, 1000); err != nil {
		t.Fatalf("first RecordProofClaim: %v", err)
	}
	claim.Amount = 130000
	if err := s.RecordProofClaim(ctx, claim, 1001); err != nil {
		t.Fatalf("second RecordProofClaim: %v", err)
	}

	claims, err := s.ListClaimsInRange(ctx, 12345, 12345)
	if err != nil {
		t.Fatalf("ListClaimsInRange: %v", err)
	}
	if len(claims) != 1 {
		t.Fatalf("expected exactly 1 row after idempotent upsert, got %d", len(claims))
	}
	if claims[0].Amount != 130000 {
		t.Fatalf("amount = %d, want 130000 (last write wins)", claims[0].Amount)
	}
}

// TestReorgPrune checks pruning of 3 claims at heights
// {100,101,102} and 2 settlements at heights {101,103}. prune_above(101)
// leaves 2 claims (100,101) and 1 settlement (101), returning (1, 1).
func TestReorgPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, h := range []uint64{100, 101, 102} {
		claim := Claim{Height: h, JobID: "job", ProviderID: "p"}
		claim.JobID = claim.JobID + string(rune('a'+i))
		if err := s.RecordProofClaim(ctx, claim, 0); err != nil {
			t.Fatalf("RecordProofClaim at height %d: %v", h, err)
		}
	}
	for i, h := range []uint64{101, 103} {
		st := Settlement{SettlementID: "s" + string(rune('a'+i)), Height: h, TotalAmount: 0}
		if err := s.RecordSettlement(ctx, st, 0); err != nil {
			t.Fatalf("RecordSettlement at height %d: %v", h, err)
		}
	}

	claimsDeleted, settlementsDeleted, err := s.PruneAbove(ctx, 101)
	if err != nil {
		t.Fatalf("PruneAbove: %v", err)
	}
	if claimsDeleted != 1 || settlementsDeleted != 1 {
		t.Fatalf("PruneAbove returned (%d,%d), want (1,1)", claimsDeleted, settlementsDeleted)
	}

	remainingClaims, err := s.ListClaimsInRange(ctx, 0, 1000)
	if err != nil {
		t.Fatalf("ListClaimsInRange: %v", err)
	}
	if len(remainingClaims) != 2 {
		t.Fatalf("expected 2 remaining claims, got %d", len(remainingClaims))
	}

	remainingSettlements, err := s.ListSettlementsAtHeight(ctx, 101)
	if err != nil {
		t.Fatalf("ListSettlementsAtHeight: %v", err)
	}
	if len(remainingSettlements) != 1 {
		t.Fatalf("expected 1 remaining settlement at height 101, got %d", len(remainingSettlements))
	}

	above, err := s.ListSettlementsAtHeight(ctx, 103)
	if err != nil {
		t.Fatalf("ListSettlementsAtHeight(103): %v", err)
	}
	if len(above) != 0 {
		t.Fatalf("expected settlement at height 103 to be pruned, got %d", len(above))
	}
}

func TestSettlementItemsCascadeOnPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := Settlement{
		SettlementID: "s1",
		Height:       200,
		TotalAmount:  100,
		Payouts:      []Payout{{PayoutID: "p1", ProviderID: "prov_01", Amount: 100}},
	}
	if err := s.RecordSettlement(ctx, st, 0); err != nil {
		t.Fatalf("RecordSettlement: %v", err)
	}

	if _, _, err := s.PruneAbove(ctx, 100); err != nil {
		t.Fatalf("PruneAbove: %v", err)
	}

	_, found, err := s.FindSettlementByPayout(ctx, "p1")
	if err != nil {
		t.Fatalf("FindSettlementByPayout: %v", err)
	}
	if found {
		t.Fatal("settlement_items should cascade-delete when its settlement is pruned")
	}
}

func TestFindSettlementByPayout(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := Settlement{
		SettlementID: "s1",
		Height:       1,
		TotalAmount:  50,
		Payouts:      []Payout{{PayoutID: "p1", ProviderID: "prov_01", Amount: 50}},
	}
	if err := s.RecordSettlement(ctx, st, 0); err != nil {
		t.Fatalf("RecordSettlement: %v", err)
	}

	found, ok, err := s.FindSettlementByPayout(ctx, "p1")
	if err != nil {
		t.Fatalf("FindSettlementByPayout: %v", err)
	}
	if !ok || found.SettlementID != "s1" {
		t.Fatalf("expected to find settlement s1, got %+v (ok=%v)", found, ok)
	}
}
