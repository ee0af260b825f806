// Package retrieval implements the blob data-availability HTTP surface
// (C9): POST/GET blob bodies and GET availability proofs, with full
// metrics instrumentation.
package retrieval

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/animicaorg/animica/internal/blobstore"
	"github.com/animicaorg/animica/internal/common"
	"github.com/animicaorg/animica/internal/das"
	"github.com/animicaorg/animica/internal/erasure"
	"github.com/animicaorg/animica/internal/log"
	"github.com/animicaorg/animica/internal/metrics"
	"github.com/animicaorg/animica/internal/nmt"
)

// MaxBlobBytes bounds a single POST /da/blob body.
const MaxBlobBytes = 32 << 20

// ErasureParams fixes the (k, n, shard_size) erasure-coding parameters new
// blobs are split under; an implementation must hold these constant once
// blobs referencing them exist, since proofs are recomputed on demand from
// the stored raw bytes.
type ErasureParams struct {
	K, N, ShardSize int
}

// Server wires the blob store to an HTTP mux. Every handler runs inside an
// instrumented request timer keyed by (method, endpoint), with byte
// counters by direction and per-endpoint status counters.
type Server struct {
	store    *blobstore.Store
	params   ErasureParams
	clock    common.Clock
	log      log.Logger
	reg      *metrics.Registry
	verify   *das.Verifier
	bytesIn  *metrics.Counter
	bytesOut *metrics.Counter
	status   map[string]*metrics.Counter
	timers   map[string]*metrics.RequestTimer
}

// NewServer builds a Server over store using params for new blob ingestion.
func NewServer(store *blobstore.Store, params ErasureParams, clock common.Clock, reg *metrics.Registry, logger log.Logger) *Server {
	if logger == nil {
		logger = log.New("component", "retrieval")
	}
	if clock == nil {
		clock = common.SystemClock{}
	}
	s := &Server{
		store:    store,
		params:   params,
		clock:    clock,
		log:      logger,
		reg:      reg,
		verify:   das.NewVerifier(reg),
		bytesIn:  reg.GetOrRegisterCounter("retrieval.bytes_in"),
		bytesOut: reg.GetOrRegisterCounter("retrieval.bytes_out"),
		status:   make(map[string]*metrics.Counter),
		timers:   make(map[string]*metrics.RequestTimer),
	}
	return s
}

// Router returns the gorilla/mux router serving the external blob/proof API.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/da/blob", s.handlePostBlob).Methods(http.MethodPost)
	r.HandleFunc("/da/blob/{commitment}", s.handleGetBlob).Methods(http.MethodGet)
	r.HandleFunc("/da/proof", s.handleGetProof).Methods(http.MethodGet)
	r.HandleFunc("/da/proof/{commitment}", s.handleGetProof).Methods(http.MethodGet)
	return r
}

func (s *Server) timerFor(endpoint string) *metrics.RequestTimer {
	if t, ok := s.timers[endpoint]; ok {
		return t
	}
	t := metrics.NewRequestTimer(s.reg, "retrieval."+endpoint)
	s.timers[endpoint] = t
	return t
}

func (s *Server) statusCounter(endpoint string, code int) *metrics.Counter {
	key := endpoint + "." + strconv.Itoa(code)
	if c, ok := s.status[key]; ok {
		return c
	}
	c := s.reg.GetOrRegisterCounter("retrieval.status." + key)
	s.status[key] = c
	return c
}

func (s *Server) writeStatus(w http.ResponseWriter, endpoint string, code int) {
	s.statusCounter(endpoint, code).Inc(1)
	w.WriteHeader(code)
}

type postBlobResponse struct {
	Commitment string `json:"commitment"`
	Namespace  uint64 `json:"namespace"`
	Size       int    `json:"size"`
}

func (s *Server) handlePostBlob(w http.ResponseWriter, r *http.Request) {
	_ = s.timerFor("post_blob").Observe(r.Context(), func() error {
		nsStr := r.URL.Query().Get("ns")
		ns, err := strconv.ParseUint(nsStr, 10, 64)
		if err != nil {
			s.writeStatus(w, "post_blob", http.StatusBadRequest)
			return nil
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, MaxBlobBytes+1))
		if err != nil {
			s.writeStatus(w, "post_blob", http.StatusBadRequest)
			return nil
		}
		if len(data) > MaxBlobBytes {
			s.writeStatus(w, "post_blob", http.StatusRequestEntityTooLarge)
			return nil
		}
		s.bytesIn.Inc(int64(len(data)))

		root, err := s.commitAndStore(r.Context(), ns, data)

		if err != nil {
			s.log.Error("commitAndStore failed", "err", err)
			s.writeStatus(w, "post_blob", http.StatusBadRequest)
			return nil
		}

		w.Header().Set("Content-Type", "application/json")
		s.statusCounter("post_blob", http.StatusOK).Inc(1)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(postBlobResponse{
			Commitment: root.Hex(),
			Namespace:  ns,
			Size:       len(data),
		})
		return nil
	})
}

// commitAndStore erasure-codes data, builds the namespaced-merkle commitment
// over its shards, and persists the raw bytes under that commitment.
func (s *Server) commitAndStore(ctx context.Context, ns uint64, data []byte) (common.Hash, error) {
	codec, err := erasure.New(s.params.K, s.params.N, s.params.ShardSize)
	if err != nil {
		return common.Hash{}, err
	}
	shards, err := codec.Encode(data)
	if err != nil {
		return common.Hash{}, err
	}

	leaves := make([]nmt.Leaf, len(shards))
	for i, shard := range shards {
		leaves[i] = nmt.Leaf{Namespace: ns, Data: shard}
	}
	tree := nmt.Build(leaves)
	root := tree.Root()

	now := s.clock.Now().Unix()
	if err := s.store.Put(ctx, root.Hex(), ns, data, s.params.K, s.params.N, s.params.ShardSize, now); err != nil {
		return common.Hash{}, err
	}
	return root, nil
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	_ = s.timerFor("get_blob").Observe(r.Context(), func() error {
		commitment := mux.Vars(r)["commitment"]
		data, err := s.store.Get(r.Context(), commitment)
		if err != nil {
			s.writeStatus(w, "get_blob", http.StatusNotFound)
			return nil
		}
		s.bytesOut.Inc(int64(len(data)))
		w.Header().Set("Content-Type", "application/octet-stream")
		s.statusCounter("get_blob", http.StatusOK).Inc(1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return nil
	})
}

// ProofResponse is the availability proof response object: one entry per
// sampled shard index.
type ProofResponse struct {
	Commitment string       `json:"commitment"`
	Samples    []ProofEntry `json:"samples"`
}

// ProofEntry is a single sampled shard's inclusion proof.
type ProofEntry struct {
	Index          int                `json:"index"`
	Namespace      uint64             `json:"namespace"`
	InclusionProof nmt.InclusionProof `json:"inclusion_proof"`
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	_ = s.timerFor("get_proof").Observe(r.Context(), func() error {
		commitment := mux.Vars(r)["commitment"]
		if commitment == "" {
			commitment = r.URL.Query().Get("commitment")
		}
		samplesStr := r.URL.Query().Get("samples")
		samples, err := strconv.Atoi(samplesStr)
		if err != nil || samples <= 0 {
			s.writeStatus(w, "get_proof", http.StatusBadRequest)
			return nil
		}

		root, err := common.HashFromHex(commitment)
		if err != nil {
			s.writeStatus(w, "get_proof", http.StatusBadRequest)
			return nil
		}

		m, err := s.store.MetaOf(r.Context(), commitment)
		if err != nil {
			s.writeStatus(w, "get_proof", http.StatusNotFound)
			return nil
		}
		data, err := s.store.Get(r.Context(), commitment)
		if err != nil {
			s.writeStatus(w, "get_proof", http.StatusNotFound)
			return nil
		}

		codec, err := erasure.New(m.K, m.N, m.ShardSize)
		if err != nil {
			s.writeStatus(w, "get_proof", http.StatusInternalServerError)
			return nil
		}
		shards, err := codec.Encode(data)
		if err != nil {
			s.writeStatus(w, "get_proof", http.StatusInternalServerError)
			return nil
		}
		leaves := make([]nmt.Leaf, len(shards))
		for i, shard := range shards {
			leaves[i] = nmt.Leaf{Namespace: m.Namespace, Data: shard}
		}
		tree := nmt.Build(leaves)
		if tree.Root() != root {
			s.writeStatus(w, "get_proof", http.StatusInternalServerError)
			return nil
		}

		if samples > tree.Len() {
			samples = tree.Len()
		}
		indices := sampleIndices(tree.Len(), samples, root)

		var dasSamples []das.Sample
		resp := ProofResponse{Commitment: commitment}
		for _, idx := range indices {
			leaf, _ := tree.LeafAt(idx)
			proof := tree.Prove(idx)
			resp.Samples = append(resp.Samples, ProofEntry{Index: idx, Namespace: leaf.Namespace, InclusionProof: proof})
			dasSamples = append(dasSamples, das.Sample{Index: idx, Leaf: leaf, Proof: proof})
		}
		if err := s.verify.VerifySamples(r.Context(), root, dasSamples); err != nil {
			s.writeStatus(w, "get_proof", http.StatusInternalServerError)
			return nil
		}

		w.Header().Set("Content-Type", "application/json")
		s.statusCounter("get_proof", http.StatusOK).Inc(1)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
		return nil
	})
}

// sampleIndices deterministically samples count distinct indices in
// [0, n) seeded from root, so repeated proof requests for the same
// commitment and sample count are reproducible.
func sampleIndices(n, count int, root common.Hash) []int {
	seed := int64(0)
	for i := 0; i < 8; i++ {
		seed = seed<<8 | int64(root[i])
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	out := make([]int, count)
	copy(out, perm[:count])
	return out
}
