// Package rpcserver implements the JSON-RPC 2.0 surface:
// tx.sendRawTransaction, tx.getTransactionReceipt, chain.getChainId.
// Envelope shape follows go-ethereum's rpc package conventions (id echo,
// {result} on success, {error:{code,message}} on failure) without pulling
// in the full reflective method-dispatch machinery, since the method set
// here is small and fixed.
package rpcserver

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/animicaorg/animica/internal/common"
	"github.com/animicaorg/animica/internal/log"
	"github.com/animicaorg/animica/internal/mempool"
	"github.com/animicaorg/animica/internal/metrics"
)

const rawTxDomainTag byte = 0x31

// Receipt is the minimal transaction receipt this surface can report before
// a block-execution pipeline exists to fill in inclusion details: status
// tracks pending/included, with height populated once IncludeTx is called.
type Receipt struct {
	TxID   string `json:"txid"`
	Status string `json:"status"`
	Height uint64 `json:"height,omitempty"`
}

const (
	StatusPending  = "pending"
	StatusIncluded = "included"
)

// Pool is the subset of mempool behavior the RPC surface needs: accept a
// raw transaction and answer receipt lookups.
type Pool struct {
	mu       sync.Mutex
	pending  map[string]mempool.Tx
	receipts map[string]*Receipt
}

// NewPool builds an empty Pool.
func NewPool() *Pool {
	return &Pool{
		pending:  make(map[string]mempool.Tx),
		receipts: make(map[string]*Receipt),
	}
}

// Submit registers raw tx bytes, deriving its txid, and returns it.
func (p *Pool) Submit(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", common.NewValidationError("rpcserver.Submit", errEmptyTx)
	}
	id := common.Sum256(rawTxDomainTag, raw).Hex()

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.receipts[id]; exists {
		return id, nil
	}
	p.pending[id] = mempool.Tx{TxID: id, Bytes: uint64(len(raw))}
	p.receipts[id] = &Receipt{TxID: id, Status: StatusPending}
	return id, nil
}

// Receipt looks up txid's receipt, returning (nil, false) if unknown.
func (p *Pool) Receipt(txid string) (*Receipt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.receipts[txid]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// IncludeTx marks txid as included at height, for wiring by a future block
// pipeline; a no-op if txid is unknown.
func (p *Pool) IncludeTx(txid string, height uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.receipts[txid]; ok {
		r.Status = StatusIncluded
		r.Height = height
	}
}

type rpcError struct{ msg string }

func (e rpcError) Error() string { return e.msg }

var errEmptyTx = rpcError{"raw transaction must not be empty"}

// jsonRPCRequest is the JSON-RPC 2.0 request envelope.
type jsonRPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
)

// Server serves the chain/tx JSON-RPC methods over HTTP POST, instrumented
// by a single RequestTimer ("rpcserver.call") shared by all methods.
type Server struct {
	pool    *Pool
	chainID uint64
	log     log.Logger
	timer   *metrics.RequestTimer
}

// NewServer builds a Server backed by pool, reporting chainID for
// chain.getChainId.
func NewServer(pool *Pool, chainID uint64, reg *metrics.Registry, logger log.Logger) *Server {
	if logger == nil {
		logger = log.New("component", "rpcserver")
	}
	return &Server{
		pool:    pool,
		chainID: chainID,
		log:     logger,
		timer:   metrics.NewRequestTimer(reg, "rpcserver.call"),
	}
}

// Router returns the mux router serving POST / as the JSON-RPC endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handle).Methods(http.MethodPost)
	return r
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	var req jsonRPCRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeError(w, nil, codeParseError, "parse error")
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeError(w, req.ID, codeInvalidRequest, "invalid request")
		return
	}

	_ = s.timer.Observe(r.Context(), func() error {
		s.dispatch(w, req)
		return nil
	})
}

func (s *Server) dispatch(w http.ResponseWriter, req jsonRPCRequest) {
	switch req.Method {
	case "chain.getChainId":
		writeResult(w, req.ID, s.chainID)
	case "tx.sendRawTransaction":
		s.sendRawTransaction(w, req)
	case "tx.getTransactionReceipt":
		s.getTransactionReceipt(w, req)
	default:
		writeError(w, req.ID, codeMethodNotFound, "method not found")
	}
}

func (s *Server) sendRawTransaction(w http.ResponseWriter, req jsonRPCRequest) {
	var hexParam string
	if len(req.Params) != 1 || json.Unmarshal(req.Params[0], &hexParam) != nil {
		writeError(w, req.ID, codeInvalidParams, "expected a single hex-encoded string param")
		return
	}
	raw, err := decodeHex(hexParam)
	if err != nil {
		writeError(w, req.ID, codeInvalidParams, "invalid hex encoding")
		return
	}
	txid, err := s.pool.Submit(raw)
	if err != nil {
		writeError(w, req.ID, codeInvalidParams, err.Error())
		return
	}
	writeResult(w, req.ID, txid)
}

func (s *Server) getTransactionReceipt(w http.ResponseWriter, req jsonRPCRequest) {
	var txid string
	if len(req.Params) != 1 || json.Unmarshal(req.Params[0], &txid) != nil {
		writeError(w, req.ID, codeInvalidParams, "expected a single txid string param")
		return
	}
	receipt, ok := s.pool.Receipt(txid)
	if !ok {
		writeResult(w, req.ID, nil)
		return
	}
	writeResult(w, req.ID, receipt)
}

func decodeHex(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

func writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	if result == nil {
		// Keep the result member as an explicit null; omitempty would drop it.
		result = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jsonRPCResponse{JSONRPC: "2.0", ID: id, Error: &jsonRPCError{Code: code, Message: msg}})
}
