package das

import (
	"context"
	"math"
	"testing"

	"github.com/animicaorg/animica/internal/nmt"
)

// TestDASProbability checks n=256, c=26 (~10%), s=24
// without replacement -> p_fail ~= 0.0708; s=64 -> p_fail ~= 0.0012.
func TestDASProbability(t *testing.T) {
	p24 := PFail(256, 26, 24)
	if math.Abs(p24-0.0708) > 0.002 {
		t.Fatalf("PFail(256,26,24) = %v, want ~0.0708", p24)
	}
	p64 := PFail(256, 26, 64)
	if math.Abs(p64-0.0012) > 0.0005 {
		t.Fatalf("PFail(256,26,64) = %v, want ~0.0012", p64)
	}
}

func TestRequiredSamplesBounds(t *testing.T) {
	s := RequiredSamples(1e-6, 0.10, 256)
	if s < 115 || s > 140 {
		t.Fatalf("RequiredSamples(1e-6, 0.10, 256) = %d, want in [115,140]", s)
	}
}

func TestRequiredSamplesMonotoneInTarget(t *testing.T) {
	loose := RequiredSamples(1e-2, 0.10, 256)
	tight := RequiredSamples(1e-9, 0.10, 256)
	if tight < loose {
		t.Fatalf("tighter target should never require fewer samples: tight=%d loose=%d", tight, loose)
	}
}

func TestRequiredSamplesMonotoneInCorruptFraction(t *testing.T) {
	low := RequiredSamples(1e-6, 0.05, 256)
	high := RequiredSamples(1e-6, 0.20, 256)
	if high < low {
		t.Fatalf("a higher corrupt fraction should never require fewer samples: low=%d high=%d", low, high)
	}
}

func TestCorruptFractionClampAtOrAboveOne(t *testing.T) {
	// A corrupt fraction >= 1.0 clamps to (n-1)/n rather than being read
	// as a literal shard count.
	c := corruptCount(100, 1.5)
	if c != 99 {
		t.Fatalf("corruptCount(100, 1.5) = %d, want 99 (clamped to (n-1)/n)", c)
	}
}

func TestVerifySamplesRejectsTamperedProof(t *testing.T) {
	tree := nmt.Build([]nmt.Leaf{
		{Namespace: 1, Data: []byte("a")},
		{Namespace: 2, Data: []byte("b")},
		{Namespace: 3, Data: []byte("c")},
		{Namespace: 4, Data: []byte("d")},
	})
	root := tree.Root()

	var samples []Sample
	for i := 0; i < tree.Len(); i++ {
		leaf, _ := tree.LeafAt(i)
		samples = append(samples, Sample{Index: i, Leaf: leaf, Proof: tree.Prove(i)})
	}

	v := NewVerifier(nil)
	if err := v.VerifySamples(context.Background(), root, samples); err != nil {
		t.Fatalf("VerifySamples on honest set: %v", err)
	}

	samples[1].Leaf.Data = []byte("tampered")
	samples[1].Proof.Leaf.Data = []byte("tampered")
	if err := v.VerifySamples(context.Background(), root, samples); err == nil {
		t.Fatal("expected rejection of tampered sample")
	}
}
