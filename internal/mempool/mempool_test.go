package mempool

import (
	"math"
	"testing"

	"github.com/holiman/uint256"
)

// TestMempoolBudgets checks senders A, B, C each with
// nonces 0..2, gas=50000/tx, equal priority. Budget gas=210000, bytes=inf.
// Expected: exactly 4 txs, A0,B0,C0,A1 in that pop order, gas_used=200000.
func TestMempoolBudgets(t *testing.T) {
	const gasPerTx = 50000
	mk := func(sender string, nonce uint64, txid string) Tx {
		return Tx{TxID: txid, Sender: sender, Nonce: nonce, Gas: gasPerTx, Bytes: 300, Priority: 2.0}
	}
	txs := []Tx{
		mk("A", 0, "1"), mk("B", 0, "2"), mk("C", 0, "3"),
		mk("A", 1, "4"), mk("B", 1, "5"), mk("C", 1, "6"),
		mk("A", 2, "7"), mk("B", 2, "8"), mk("C", 2, "9"),
	}

	selected := Select(txs, Budget{Gas: 210000, Bytes: math.MaxUint64})

	if len(selected) != 4 {
		t.Fatalf("got %d selected txs, want 4: %+v", len(selected), selected)
	}
	wantOrder := []struct {
		sender string
		nonce  uint64
	}{{"A", 0}, {"B", 0}, {"C", 0}, {"A", 1}}
	for i, w := range wantOrder {
		if selected[i].Sender != w.sender || selected[i].Nonce != w.nonce {
			t.Fatalf("position %d = %s%d, want %s%d", i, selected[i].Sender, selected[i].Nonce, w.sender, w.nonce)
		}
	}
	var gasUsed uint64
	for _, tx := range selected {
		gasUsed += tx.Gas
	}
	if gasUsed != 200000 {
		t.Fatalf("gas_used = %d, want 200000", gasUsed)
	}
}

func TestSelectRespectsNonceOrderWithinSender(t *testing.T) {
	txs := []Tx{
		{TxID: "2", Sender: "A", Nonce: 1, Gas: 100, Bytes: 10, Priority: 10},
		{TxID: "1", Sender: "A", Nonce: 0, Gas: 100, Bytes: 10, Priority: 1},
	}
	// Nonce 1 has higher priority but cannot be selected before nonce 0.
	selected := Select(txs, Budget{Gas: 1000, Bytes: 1000})
	if len(selected) != 2 || selected[0].Nonce != 0 || selected[1].Nonce != 1 {
		t.Fatalf("expected nonce-ordered selection, got %+v", selected)
	}
}

func TestSelectSkipsNonFittingWithoutStalling(t *testing.T) {
	txs := []Tx{
		{TxID: "1", Sender: "A", Nonce: 0, Gas: 100, Bytes: 10, Priority: 5},
		{TxID: "2", Sender: "B", Nonce: 0, Gas: 10, Bytes: 10, Priority: 1},
	}
	// Budget fits only B0 (gas=10), not A0 (gas=100); A's head never advances.
	selected := Select(txs, Budget{Gas: 10, Bytes: 1000})
	if len(selected) != 1 || selected[0].Sender != "B" {
		t.Fatalf("expected only B0 selected, got %+v", selected)
	}
}

func TestPriorityComposite(t *testing.T) {
	p := Priority(uint256.NewInt(2), 1.5, 0.1, 10)
	if p != 2.0*1.5+0.1*10 {
		t.Fatalf("Priority composite mismatch: got %v", p)
	}
}
