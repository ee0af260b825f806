package gossip

import (
	"github.com/cespare/xxhash/v2"

	"github.com/animicaorg/animica/internal/common"
)

// xxhashOf folds a common.Hash into a single uint64 dedupe key via xxhash,
// so the LRU cache holds fixed-size comparable keys instead of [32]byte
// values.
func xxhashOf(h common.Hash) uint64 {
	return xxhash.Sum64(h.Bytes())
}
