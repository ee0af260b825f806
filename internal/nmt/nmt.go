// Package nmt implements the namespaced Merkle tree commitment scheme (C5):
// leaf/node hashing with fixed domain tags, deterministic tree construction
// over (namespace, data) leaves, inclusion proofs, and namespace-range
// proofs. The canonical byte layout (leaf = H(0x00 ‖ uvarint(ns) ‖ data),
// node = H(0x01 ‖ left ‖ right)) is fixed and MUST NOT change without a
// new tag, since roots computed with different tags are not comparable.
package nmt

import (
	"sort"

	"github.com/animicaorg/animica/internal/common"
)

const (
	// LeafTag domain-separates leaf hashing from node hashing.
	LeafTag byte = 0x00
	// NodeTag domain-separates node hashing from leaf hashing.
	NodeTag byte = 0x01
)

// Leaf is a single (namespace, data) pair prior to insertion.
type Leaf struct {
	Namespace uint64
	Data      []byte
}

// leafEntry tracks a leaf alongside its original insertion index, since the
// sort by (namespace, insertion index) must be stable: two leaves with equal
// namespace keep their relative insertion order.
type leafEntry struct {
	leaf  Leaf
	index int
	hash  common.Hash
}

// Tree is a built namespaced Merkle tree. Construct with Build.
type Tree struct {
	leaves []leafEntry // sorted by (namespace, insertion index)
	levels [][]common.Hash // levels[0] = leaf hashes, levels[len-1] = [root]
}

// LeafHash computes the domain-separated hash of a single leaf.
func LeafHash(ns uint64, data []byte) common.Hash {
	nsBytes := common.AppendUvarint(nil, ns)
	return common.Sum256(LeafTag, nsBytes, data)
}

// NodeHash computes the domain-separated hash of an internal node.
func NodeHash(left, right common.Hash) common.Hash {
	return common.Sum256(NodeTag, left.Bytes(), right.Bytes())
}

// Build constructs a Tree from leaves, sorting by (namespace, insertion
// index) stably, then folding levels with last-node duplication at odd
// widths.
func Build(leaves []Leaf) *Tree {
	entries := make([]leafEntry, len(leaves))
	for i, l := range leaves {
		entries[i] = leafEntry{leaf: l, index: i, hash: LeafHash(l.Namespace, l.Data)}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].leaf.Namespace < entries[j].leaf.Namespace
	})

	t := &Tree{leaves: entries}
	level := make([]common.Hash, len(entries))
	for i, e := range entries {
		level[i] = e.hash
	}
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		level = foldLevel(level)
		t.levels = append(t.levels, level)
	}
	return t
}

func foldLevel(level []common.Hash) []common.Hash {
	width := len(level)
	if width%2 == 1 {
		level = append(level, level[width-1])
		width++
	}
	next := make([]common.Hash, width/2)
	for i := 0; i < width; i += 2 {
		next[i/2] = NodeHash(level[i], level[i+1])
	}
	return next
}

// Root returns the tree's root hash. An empty tree has the zero hash.
func (t *Tree) Root() common.Hash {
	top := t.levels[len(t.levels)-1]
	if len(top) == 0 {
		return common.Hash{}
	}
	return top[0]
}

// Len returns the number of leaves in the tree.
func (t *Tree) Len() int { return len(t.leaves) }

// LeafAt returns the sorted-position leaf and its hash.
func (t *Tree) LeafAt(pos int) (Leaf, common.Hash) {
	e := t.leaves[pos]
	return e.leaf, e.hash
}

// InclusionProof is the sibling path for the leaf at Index in sorted order.
type InclusionProof struct {
	Index    int
	Leaf     Leaf
	Siblings []common.Hash // bottom-up, one per level
	// SiblingIsRight[i] is true when Siblings[i] is the right-hand sibling
	// at that level (i.e. the path element is the left-hand node).
	SiblingIsRight []bool
}

// Prove builds an InclusionProof for the leaf at sorted position index.
func (t *Tree) Prove(index int) InclusionProof {
	leaf, _ := t.LeafAt(index)
	proof := InclusionProof{Index: index, Leaf: leaf}
	pos := index
	for lvl := 0; lvl < len(t.levels)-1; lvl++ {
		level := t.levels[lvl]
		width := len(level)
		// Odd widths are padded with a duplicate of the last node when
		// folded; reproduce that here so sibling lookups stay in range.
		isRightNode := pos%2 == 1
		var sibIdx int
		if isRightNode {
			sibIdx = pos - 1
		} else {
			sibIdx = pos + 1
			if sibIdx >= width {
				sibIdx = width - 1 // duplicated last node
			}
		}
		proof.Siblings = append(proof.Siblings, level[sibIdx])
		proof.SiblingIsRight = append(proof.SiblingIsRight, !isRightNode)
		pos /= 2
	}
	return proof
}

// Verify re-hashes the leaf and folds with the recorded siblings, comparing
// the result against root. Returns an IntegrityError on any mismatch.
func Verify(root common.Hash, proof InclusionProof) error {
	cur := LeafHash(proof.Leaf.Namespace, proof.Leaf.Data)
	for i, sib := range proof.Siblings {
		if proof.SiblingIsRight[i] {
			cur = NodeHash(cur, sib)
		} else {
			cur = NodeHash(sib, cur)
		}
	}
	if cur != root {
		return common.NewIntegrityError("nmt.Verify", errRootMismatch)
	}
	return nil
}

var errRootMismatch = rootMismatchError{}

type rootMismatchError struct{}

func (rootMismatchError) Error() string { return "recomputed root does not match expected root" }
