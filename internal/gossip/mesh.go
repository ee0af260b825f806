// Package gossip implements the publish/subscribe mesh (C10): topic
// subscription and graft/prune membership, bounded-fanout publish, and
// duplicate suppression via a bounded message-id cache.
package gossip

import (
	"math/rand"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/animicaorg/animica/internal/common"
)

// Transport delivers a published payload to a single peer. The mesh never
// inspects payload bytes; it only decides who receives them.
type Transport interface {
	Send(peerID string, topic string, payload []byte) error
}

// Mesh tracks, per topic, the full subscriber set and the grafted subset
// that receives direct publishes.
type Mesh struct {
	fanout      int
	rng         *rand.Rand
	transport   Transport
	dedupe      *Dedupe
	subscribers map[string]mapset.Set[string]
	grafted     map[string]mapset.Set[string]
}

// New builds a Mesh with the given fanout, a seeded RNG for deterministic
// recipient selection, and a bounded dedupe cache of the given capacity.
func New(fanout int, seed int64, transport Transport, dedupeCapacity int) *Mesh {
	return &Mesh{
		fanout:      fanout,
		rng:         rand.New(rand.NewSource(seed)),
		transport:   transport,
		dedupe:      NewDedupe(dedupeCapacity),
		subscribers: make(map[string]mapset.Set[string]),
		grafted:     make(map[string]mapset.Set[string]),
	}
}

func (m *Mesh) topicSubscribers(topic string) mapset.Set[string] {
	s, ok := m.subscribers[topic]
	if !ok {
		s = mapset.NewSet[string]()
		m.subscribers[topic] = s
	}
	return s
}

func (m *Mesh) topicMesh(topic string) mapset.Set[string] {
	s, ok := m.grafted[topic]
	if !ok {
		s = mapset.NewSet[string]()
		m.grafted[topic] = s
	}
	return s
}

// Subscribe adds peer to topic's subscriber set.
func (m *Mesh) Subscribe(peer, topic string) {
	m.topicSubscribers(topic).Add(peer)
}

// Unsubscribe removes peer from topic's subscriber set and, implicitly, its
// mesh (a peer cannot be grafted to a topic it no longer subscribes to).
func (m *Mesh) Unsubscribe(peer, topic string) {
	m.topicSubscribers(topic).Remove(peer)
	m.topicMesh(topic).Remove(peer)
}

// Graft adds peer to topic's mesh. Graft is a no-op if peer is not already a
// subscriber.
func (m *Mesh) Graft(peer, topic string) {
	if !m.topicSubscribers(topic).Contains(peer) {
		return
	}
	m.topicMesh(topic).Add(peer)
}

// Prune removes peer from topic's mesh. A pruned peer receives no further
// direct publishes for topic until re-grafted.
func (m *Mesh) Prune(peer, topic string) {
	m.topicMesh(topic).Remove(peer)
}

// Publish sends payload to up to m.fanout recipients from topic's mesh
// (excluding origin), supplementing from subscribers if the mesh is smaller
// than fanout. Duplicate payloads (by message id) are suppressed.
func (m *Mesh) Publish(topic, origin string, payload []byte) []string {
	id := MessageID(topic, payload)
	if m.dedupe.SeenOrAdd(id) {
		return nil
	}

	mesh := m.topicMesh(topic).Clone()
	mesh.Remove(origin)
	candidates := mesh.ToSlice()

	if len(candidates) < m.fanout {
		subs := m.topicSubscribers(topic).Clone()
		subs.Remove(origin)
		for _, p := range subs.ToSlice() {
			if !mesh.Contains(p) {
				candidates = append(candidates, p)
			}
		}
	}

	recipients := selectUpTo(m.rng, candidates, m.fanout)
	for _, peer := range recipients {
		_ = m.transport.Send(peer, topic, payload)
	}
	return recipients
}

// selectUpTo deterministically (given rng's state) picks min(fanout,
// len(candidates)) distinct entries from candidates. candidates is sorted
// into a canonical (lexical) order first: it is built from mapset.Set
// iteration, which the Go map it is backed by randomizes per run, so
// shuffling it directly would make rng's seed no longer the only source of
// randomness in the selection.
func selectUpTo(rng *rand.Rand, candidates []string, fanout int) []string {
	if fanout <= 0 || len(candidates) == 0 {
		return nil
	}
	pool := make([]string, len(candidates))
	copy(pool, candidates)
	sort.Strings(pool)
	if len(pool) <= fanout {
		return pool
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:fanout]
}

// MessageID derives a dedupe key from topic and payload, domain-separated
// via common.Sum256 so it never collides with hashes from other components.
const messageIDTag byte = 0x30

func MessageID(topic string, payload []byte) common.Hash {
	return common.Sum256(messageIDTag, []byte(topic), payload)
}
