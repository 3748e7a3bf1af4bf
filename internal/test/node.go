// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package test

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Error codes used by bitcoind
const (
	CodeInvalidParameter = -8
	CodeMisc             = -1
	CodeMethodNotFound   = -32601
)

// Node is a fake full node which answers getblockhash, getblock and
// getblockcount calls for a synthetic chain
type Node struct {
	server     *httptest.Server
	mu         sync.Mutex
	blocks     [][]byte
	hashes     []chainhash.Hash
	byHash     map[chainhash.Hash]uint64
	failHashes map[uint64]bool
	failBlocks map[uint64]bool
	corrupt    map[uint64]bool
	username   string
	password   string
	delay      time.Duration
	reverse    bool
	calls      map[string]int
	batches    int
}

// NodeOptionFunc modifies a fake node before it starts serving
type NodeOptionFunc func(*Node)

// WithCredentials makes the node require basic auth
func WithCredentials(username, password string) NodeOptionFunc {
	return func(n *Node) {
		n.username = username
		n.password = password
	}
}

// WithFailingHashes makes getblockhash fail for the given heights
func WithFailingHashes(heights ...uint64) NodeOptionFunc {
	return func(n *Node) {
		for _, h := range heights {
			n.failHashes[h] = true
		}
	}
}

// WithFailingBlocks makes getblock fail for the blocks at the given heights
func WithFailingBlocks(heights ...uint64) NodeOptionFunc {
	return func(n *Node) {
		for _, h := range heights {
			n.failBlocks[h] = true
		}
	}
}

// WithCorruptBlocks makes getblock return bytes which do not match the
// requested hash for the given heights
func WithCorruptBlocks(heights ...uint64) NodeOptionFunc {
	return func(n *Node) {
		for _, h := range heights {
			n.corrupt[h] = true
		}
	}
}

// WithDelay delays every HTTP response
func WithDelay(delay time.Duration) NodeOptionFunc {
	return func(n *Node) {
		n.delay = delay
	}
}

// WithReversedBatches answers batch items in reverse order
func WithReversedBatches() NodeOptionFunc {
	return func(n *Node) {
		n.reverse = true
	}
}

// NewNode starts a fake node with a chain of the given height. The server is
// closed when the test finishes.
func NewNode(t testing.TB, height uint64, opts ...NodeOptionFunc) *Node {
	n := &Node{
		byHash:     make(map[chainhash.Hash]uint64),
		failHashes: make(map[uint64]bool),
		failBlocks: make(map[uint64]bool),
		corrupt:    make(map[uint64]bool),
		calls:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.Extend(height)
	n.server = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(func() {
		n.server.CloseClientConnections()
		n.server.Close()
	})
	return n
}

// URL returns the node URL including credentials, if any
func (n *Node) URL() string {
	if n.username == "" {
		return n.server.URL
	}
	return strings.Replace(
		n.server.URL,
		"://",
		"://"+n.username+":"+n.password+"@",
		1,
	)
}

// Extend grows the chain up to the given height
func (n *Node) Extend(height uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for h := uint64(len(n.blocks)); h <= height; h++ {
		var prev chainhash.Hash
		if h > 0 {
			prev = n.hashes[h-1]
		}
		raw, hash := SerializedBlock(h, prev)
		n.blocks = append(n.blocks, raw)
		n.hashes = append(n.hashes, hash)
		n.byHash[hash] = h
	}
}

// Height returns the best height of the chain
func (n *Node) Height() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return uint64(len(n.blocks) - 1)
}

// Block returns the serialized block at height
func (n *Node) Block(height uint64) []byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.blocks[height]
}

// Hash returns the hash of the block at height
func (n *Node) Hash(height uint64) chainhash.Hash {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.hashes[height]
}

// Calls returns how many times a method was called, counting batch items
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// Batches returns how many batch requests were received
func (n *Node) Batches() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.batches
}

type nodeRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type nodeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type nodeResponse struct {
	Result any             `json:"result"`
	Error  *nodeError      `json:"error"`
	ID     json.RawMessage `json:"id"`
}

func (n *Node) handle(w http.ResponseWriter, r *http.Request) {
	if n.delay > 0 {
		select {
		case <-time.After(n.delay):
		case <-r.Context().Done():
			return
		}
	}
	if n.username != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != n.username || pass != n.password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var reqs []nodeRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		n.mu.Lock()
		n.batches++
		resps := make([]nodeResponse, len(reqs))
		for i, req := range reqs {
			resps[i] = n.dispatch(req)
		}
		n.mu.Unlock()
		if n.reverse {
			for i, j := 0, len(resps)-1; i < j; i, j = i+1, j-1 {
				resps[i], resps[j] = resps[j], resps[i]
			}
		}
		_ = json.NewEncoder(w).Encode(resps)
		return
	}
	var req nodeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	n.mu.Lock()
	resp := n.dispatch(req)
	n.mu.Unlock()
	if resp.Error != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// dispatch answers a single call. The caller holds the lock.
func (n *Node) dispatch(req nodeRequest) nodeResponse {
	n.calls[req.Method]++
	resp := nodeResponse{ID: req.ID}
	fail := func(code int, msg string) nodeResponse {
		resp.Error = &nodeError{Code: code, Message: msg}
		return resp
	}
	switch req.Method {
	case "getblockcount":
		resp.Result = len(n.blocks) - 1
	case "getblockhash":
		var height uint64
		if len(req.Params) != 1 || json.Unmarshal(req.Params[0], &height) != nil {
			return fail(CodeInvalidParameter, "invalid height")
		}
		if height >= uint64(len(n.blocks)) {
			return fail(CodeInvalidParameter, "Block height out of range")
		}
		if n.failHashes[height] {
			return fail(CodeMisc, "internal error")
		}
		resp.Result = n.hashes[height].String()
	case "getblock":
		var hashStr string
		if len(req.Params) < 1 || json.Unmarshal(req.Params[0], &hashStr) != nil {
			return fail(CodeInvalidParameter, "invalid hash")
		}
		hash, err := chainhash.NewHashFromStr(hashStr)
		if err != nil {
			return fail(CodeInvalidParameter, "invalid hash")
		}
		height, ok := n.byHash[*hash]
		if !ok {
			return fail(-5, "Block not found")
		}
		if n.failBlocks[height] {
			return fail(CodeMisc, "Block not available (pruned data)")
		}
		block := n.blocks[height]
		if n.corrupt[height] {
			// Serve the neighbouring block instead
			block = n.blocks[(height+1)%uint64(len(n.blocks))]
		}
		resp.Result = hex.EncodeToString(block)
	default:
		return fail(CodeMethodNotFound, "Method not found")
	}
	return resp
}
