// Package mempool implements pending-transaction selection (C13): a
// per-sender nonce-ordered queue feeding a global priority heap, packed
// against dual gas/byte budgets.
package mempool

import (
	"container/heap"
	"math/big"

	"github.com/holiman/uint256"
)

// Tx is a candidate transaction for selection.
type Tx struct {
	TxID      string
	Sender    string
	Nonce     uint64
	Gas       uint64
	Bytes     uint64
	FeePerGas *uint256.Int // 256-bit fee rate this tx was submitted with
	Priority  float64      // fee_per_gas * sender_bias + age_weight * age, precomputed by the caller
}

// Priority computes the composite priority:
// fee_per_gas * sender_bias + age_weight * age.
func Priority(feePerGas *uint256.Int, senderBias, ageWeight, age float64) float64 {
	fee := float64(0)
	if feePerGas != nil {
		fee, _ = new(big.Float).SetInt(feePerGas.ToBig()).Float64()
	}
	return fee*senderBias + ageWeight*age
}

// senderQueue holds one sender's pending txs sorted by ascending nonce.
type senderQueue struct {
	txs []Tx // ascending nonce, txs[0] is the next-expected
}

func (q *senderQueue) popHead() (Tx, bool) {
	if len(q.txs) == 0 {
		return Tx{}, false
	}
	head := q.txs[0]
	q.txs = q.txs[1:]
	return head, true
}

// Budget bounds a selection round by total gas and total byte size.
type Budget struct {
	Gas   uint64
	Bytes uint64
}

// Select runs the global selection algorithm: per-sender queues feed a
// global max-heap keyed by (-priority, gas, txid); repeatedly
// pop the best eligible head, include it if it fits the remaining budget and
// push that sender's next head, otherwise drop it (the sender's remaining
// txs never advance past a nonce gap). Returns the selected txs in pop
// order, which is the commit order.
func Select(txs []Tx, budget Budget) []Tx {
	bySender := make(map[string]*senderQueue)
	order := make([]string, 0) // first-seen sender order, for determinism only
	for _, tx := range txs {
		q, ok := bySender[tx.Sender]
		if !ok {
			q = &senderQueue{}
			bySender[tx.Sender] = q
			order = append(order, tx.Sender)
		}
		q.txs = append(q.txs, tx)
	}
	for _, sender := range order {
		q := bySender[sender]
		sortByNonce(q.txs)
	}

	h := &candidateHeap{}
	heap.Init(h)
	for _, sender := range order {
		if head, ok := bySender[sender].popHead(); ok {
			heap.Push(h, head)
		}
	}

	var selected []Tx
	var gasUsed, bytesUsed uint64
	for h.Len() > 0 {
		candidate := heap.Pop(h).(Tx)
		if gasUsed+candidate.Gas <= budget.Gas && bytesUsed+candidate.Bytes <= budget.Bytes {
			selected = append(selected, candidate)
			gasUsed += candidate.Gas
			bytesUsed += candidate.Bytes
			if next, ok := bySender[candidate.Sender].popHead(); ok {
				heap.Push(h, next)
			}
		}
		// else: dropped. The sender's queue does not advance, so any later
		// nonce from this sender never becomes a candidate this round.
	}
	return selected
}

func sortByNonce(txs []Tx) {
	for i := 1; i < len(txs); i++ {
		for j := i; j > 0 && txs[j].Nonce < txs[j-1].Nonce; j-- {
			txs[j], txs[j-1] = txs[j-1], txs[j]
		}
	}
}

// candidateHeap is a max-heap over Tx keyed by (-priority, gas, txid): higher
// priority wins; ties broken by lower gas, then lexicographically smaller
// txid, giving a strict total order.
type candidateHeap []Tx

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.Gas != b.Gas {
		return a.Gas < b.Gas
	}
	return a.TxID < b.TxID
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) { *h = append(*h, x.(Tx)) }

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
