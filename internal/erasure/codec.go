// Package erasure implements the systematic k-of-n erasure code (C6) used to
// shard blobs for data availability. The GF(2^8) arithmetic itself is
// assumed rather than reimplemented, so it is wired directly to
// github.com/klauspost/reedsolomon; this package owns shard-size
// normalization, erasure-pattern bookkeeping, and the "insufficient
// shards" error contract.
package erasure

import (
	"github.com/klauspost/reedsolomon"

	"github.com/animicaorg/animica/internal/common"
)

// Codec encodes/decodes shard sets for a fixed (k, n, shardSize).
type Codec struct {
	k, n      int
	shardSize int
	enc       reedsolomon.Encoder
}

// New returns a Codec for k data shards, n total shards, each shardSize
// bytes. k must be >= 1 and n > k.
func New(k, n, shardSize int) (*Codec, error) {
	if k < 1 || n <= k {
		return nil, common.NewValidationError("erasure.New", errBadKN)
	}
	if shardSize <= 0 {
		return nil, common.NewValidationError("erasure.New", errBadShardSize)
	}
	enc, err := reedsolomon.New(k, n-k)
	if err != nil {
		return nil, common.NewInternalError("erasure.New", err)
	}
	return &Codec{k: k, n: n, shardSize: shardSize, enc: enc}, nil
}

// K returns the number of data shards.
func (c *Codec) K() int { return c.k }

// N returns the total number of shards.
func (c *Codec) N() int { return c.n }

// ShardSize returns the fixed shard size in bytes.
func (c *Codec) ShardSize() int { return c.shardSize }

// Encode splits data into k fixed-size shards (zero-padding the last one if
// necessary) and produces n-k parity shards, returning all n shards with the
// first k being the original data shards (systematic coding).
func (c *Codec) Encode(data []byte) ([][]byte, error) {
	shards := make([][]byte, c.n)
	for i := 0; i < c.k; i++ {
		shards[i] = make([]byte, c.shardSize)
	}
	for i := c.k; i < c.n; i++ {
		shards[i] = make([]byte, c.shardSize)
	}
	for i := 0; i < len(data); {
		shardIdx := i / c.shardSize
		if shardIdx >= c.k {
			return nil, common.NewValidationError("erasure.Encode", errDataTooLarge)
		}
		off := i % c.shardSize
		n := copy(shards[shardIdx][off:], data[i:])
		i += n
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, common.NewInternalError("erasure.Encode", err)
	}
	return shards, nil
}

// Decode takes n shards, where entries whose flag in `present` is false
// are treated as missing (erased). It reconstructs all n shards in place.
// Decode fails with a ValidationError ("insufficient shards") if fewer than
// k shards are present.
func (c *Codec) Decode(shards [][]byte, present []bool) error {
	if len(shards) != c.n || len(present) != c.n {
		return common.NewValidationError("erasure.Decode", errShardCountMismatch)
	}
	count := 0
	work := make([][]byte, c.n)
	for i := range shards {
		if present[i] {
			work[i] = shards[i]
			count++
		} else {
			work[i] = nil
		}
	}
	if count < c.k {
		return common.NewValidationError("erasure.Decode", errInsufficientShards)
	}
	if err := c.enc.Reconstruct(work); err != nil {
		return common.NewInternalError("erasure.Decode", err)
	}
	copy(shards, work)
	return nil
}

// Verify checks parity consistency across a full set of n shards, returning
// an IntegrityError if the parity shards do not match the data shards.
func (c *Codec) Verify(shards [][]byte) error {
	ok, err := c.enc.Verify(shards)
	if err != nil {
		return common.NewInternalError("erasure.Verify", err)
	}
	if !ok {
		return common.NewIntegrityError("erasure.Verify", errParityMismatch)
	}
	return nil
}

type erasureError struct{ msg string }

func (e erasureError) Error() string { return e.msg }

var (
	errBadKN              = erasureError{"k must be >= 1 and n > k"}
	errBadShardSize       = erasureError{"shardSize must be > 0"}
	errDataTooLarge        = erasureError{"data does not fit in k shards of the configured shard size"}
	errShardCountMismatch = erasureError{"shards/present slice length must equal n"}
	errInsufficientShards = erasureError{"insufficient shards: fewer than k shards present"}
	errParityMismatch     = erasureError{"parity shards are inconsistent with data shards"}
)
