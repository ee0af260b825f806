package das

import (
	"context"

	"github.com/animicaorg/animica/internal/common"
	"github.com/animicaorg/animica/internal/metrics"
	"github.com/animicaorg/animica/internal/nmt"
)

// Sample is a single sampled shard: its index, the leaf content, and an
// inclusion proof against the commitment root.
type Sample struct {
	Index int
	Leaf  nmt.Leaf
	Proof nmt.InclusionProof
}

// Verifier checks availability proofs against a commitment root, recording
// proof-verify latency with an ok/error outcome label and an active-sampler
// gauge.
type Verifier struct {
	timer    *metrics.RequestTimer
	inflight *metrics.Gauge
}

// NewVerifier builds a Verifier instrumented against reg (may be nil).
func NewVerifier(reg *metrics.Registry) *Verifier {
	return &Verifier{
		timer:    metrics.NewRequestTimer(reg, "das.verify"),
		inflight: reg.GetOrRegisterGauge("das.sampler.active_jobs"),
	}
}

// VerifySamples verifies every sample's inclusion proof against root,
// rejecting the whole set if any single proof fails.
func (v *Verifier) VerifySamples(_ context.Context, root common.Hash, samples []Sample) error {
	v.inflight.Inc(1)
	defer v.inflight.Dec(1)

	return v.timer.Observe(context.Background(), func() error {
		for _, s := range samples {
			if s.Proof.Index != s.Index {
				return common.NewValidationError("das.VerifySamples", errIndexMismatch)
			}
			if err := nmt.Verify(root, s.Proof); err != nil {
				return err
			}
		}
		return nil
	})
}

type dasError struct{ msg string }

func (e dasError) Error() string { return e.msg }

var errIndexMismatch = dasError{"sample index does not match its proof's index"}
