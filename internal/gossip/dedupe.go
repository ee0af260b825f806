package gossip

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/animicaorg/animica/internal/common"
)

// Dedupe is a bounded message-id cache with LRU eviction, used to suppress
// re-delivery of an already-seen gossip payload.
type Dedupe struct {
	cache *lru.Cache[uint64, struct{}]
}

// NewDedupe builds a Dedupe holding up to capacity entries.
func NewDedupe(capacity int) *Dedupe {
	if capacity <= 0 {
		capacity = 1
	}
	c, _ := lru.New[uint64, struct{}](capacity)
	return &Dedupe{cache: c}
}

// SeenOrAdd reports whether id was already present, adding it if not.
func (d *Dedupe) SeenOrAdd(id common.Hash) bool {
	key := xxhashOf(id)
	if d.cache.Contains(key) {
		d.cache.Get(key) // touch for LRU recency
		return true
	}
	d.cache.Add(key, struct{}{})
	return false
}
