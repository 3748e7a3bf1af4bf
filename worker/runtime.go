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

// Package worker implements the process which runs on the far side of a pair
// of pipes. It reads get requests, fetches the requested range of blocks from
// the remote node with batched calls, and writes the blocks back as result
// frames followed by a done frame.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/blinklabs-io/blockloader/frame"
	"github.com/blinklabs-io/blockloader/pipe"
	"github.com/blinklabs-io/blockloader/rpc"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// blockHeaderLength is the size of a serialized block header
const blockHeaderLength = 80

// ErrNoResultPipe is returned when the runtime has nowhere to write results
var ErrNoResultPipe = errors.New("worker: no result pipe")

// Node is the remote node as seen by a worker
type Node interface {
	Batch(context.Context, []rpc.Request) ([]rpc.Response, error)
}

// NodeFunc creates a Node from the worker config
type NodeFunc func(Config) (Node, error)

// Runtime is the state of a single worker process
type Runtime struct {
	reader     *pipe.Reader
	writer     *pipe.Writer
	node       Node
	nodeFunc   NodeFunc
	nodeCloser func()
	config     Config
	baseLogger *slog.Logger
	logger     *slog.Logger
	exitFunc   func(int)
	exitOnce   sync.Once
}

type fetchedBlock struct {
	height uint64
	block  []byte
}

// New returns a Runtime which reads requests from in and writes results to
// out. A nil or unusable in is not an error here: Run reports it as a read
// error straight away.
func New(in io.Reader, out io.Writer, opts ...RuntimeOptionFunc) (*Runtime, error) {
	r := &Runtime{
		config:   DefaultConfig(),
		exitFunc: os.Exit,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.baseLogger = r.logger.With("component", "worker")
	r.logger = r.baseLogger
	if r.nodeFunc == nil {
		r.nodeFunc = r.newRPCNode
	}
	r.writer = pipe.NewWriter(out)
	if r.writer == nil {
		return nil, ErrNoResultPipe
	}
	r.reader = pipe.NewReader(in)
	return r, nil
}

// Config returns the current config
func (r *Runtime) Config() Config {
	return r.config
}

// Run processes requests until the request pipe fails, a disconnect frame
// arrives or ctx is cancelled
func (r *Runtime) Run(ctx context.Context) error {
	defer r.closeNode()
	if r.reader == nil {
		return fmt.Errorf("%w: request pipe unavailable", frame.ErrRead)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = r.reader.Close()
	})
	defer stop()
	for {
		msg, err := frame.Read(r.reader)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Debug(
				"request pipe closed",
				"error", err,
			)
			return err
		}
		switch msg.Type {
		case frame.MessageTypeConfig:
			if err := r.applyConfig(msg.Payload); err != nil {
				r.logger.Error(
					"rejecting config",
					"error", err,
				)
				return err
			}
		case frame.MessageTypeGet:
			start, count, err := frame.DecodeGet(msg.Payload)
			if err != nil {
				r.logger.Warn(
					"ignoring malformed get",
					"error", err,
				)
				// Release the supervisor's busy flag all the same
				if err := r.writer.WriteFrame(frame.MessageTypeDone, frame.EncodeDone(0, 0)); err != nil {
					return err
				}
				continue
			}
			if err := r.fetchBatch(ctx, start, count); err != nil {
				return err
			}
		case frame.MessageTypeDisconnect:
			r.logger.Debug("disconnect requested")
			return nil
		default:
			r.logger.Debug(
				"ignoring unknown message",
				"type", msg.Type,
			)
		}
	}
}

// Terminate flushes anything already handed to the result pipe, blocks any
// further frame and exits the process with status 0
func (r *Runtime) Terminate() {
	r.exitOnce.Do(func() {
		r.writer.Seal()
		r.exitFunc(0)
	})
}

// HandleSignals terminates the process on SIGTERM or SIGINT. The returned
// function stops signal handling.
func (r *Runtime) HandleSignals(ctx context.Context) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	doneChan := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			r.logger.Debug(
				"terminating on signal",
				"signal", sig.String(),
			)
			r.Terminate()
		case <-ctx.Done():
		case <-doneChan:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(doneChan)
		})
	}
}

func (r *Runtime) applyConfig(payload []byte) error {
	cfg, err := DecodeConfig(payload)
	if err != nil {
		return err
	}
	r.config = cfg
	r.logger = r.baseLogger.With("worker", cfg.Index)
	r.logger.Debug(
		"applied config",
		"batch_limit", cfg.BatchLimit,
		"rpc_timeout", cfg.RPCTimeout,
		"verify_hash", cfg.VerifyHash,
	)
	return nil
}

// getNode returns the node client, creating it from the config on first use
func (r *Runtime) getNode() (Node, error) {
	if r.node != nil {
		return r.node, nil
	}
	node, err := r.nodeFunc(r.config)
	if err != nil {
		return nil, err
	}
	r.node = node
	return node, nil
}

func (r *Runtime) newRPCNode(cfg Config) (Node, error) {
	client, err := rpc.NewClient(
		cfg.RPCURL,
		rpc.WithTimeout(cfg.RPCTimeout),
		rpc.WithLogger(r.logger),
	)
	if err != nil {
		return nil, err
	}
	r.nodeCloser = client.Close
	return client, nil
}

func (r *Runtime) closeNode() {
	if r.nodeCloser != nil {
		r.nodeCloser()
	}
}

// fetchBatch loads the blocks in [start, start+count) and writes one result
// frame per block that could be loaded, in ascending height order, then a
// done frame. The count is capped at BatchLimit. Only a failure to write is
// returned.
func (r *Runtime) fetchBatch(ctx context.Context, start uint64, count uint32) error {
	var blocks []fetchedBlock
	if limit := min(int(count), max(r.config.BatchLimit, 1)); limit > 0 {
		node, err := r.getNode()
		if err != nil {
			r.logger.Warn(
				"no node client",
				"error", err,
			)
		} else {
			blocks = r.fetchBlocks(ctx, node, start, limit)
		}
	}
	for _, b := range blocks {
		if err := r.writer.WriteFrame(
			frame.MessageTypeResult,
			frame.EncodeResult(b.height, b.block),
		); err != nil {
			return err
		}
	}
	return r.writer.WriteFrame(
		frame.MessageTypeDone,
		frame.EncodeDone(start, uint32(len(blocks))),
	)
}

func (r *Runtime) fetchBlocks(ctx context.Context, node Node, start uint64, limit int) []fetchedBlock {
	hashReqs := make([]rpc.Request, 0, limit)
	for i := 0; i < limit; i++ {
		hashReqs = append(hashReqs, rpc.GetBlockHashRequest(start+uint64(i)))
	}
	hashResps, err := r.batch(ctx, node, hashReqs)
	if err != nil {
		r.logger.Warn(
			"block hash batch failed",
			"start", start,
			"error", err,
		)
		return nil
	}
	heights := make([]uint64, 0, limit)
	hashes := make([]*chainhash.Hash, 0, limit)
	blockReqs := make([]rpc.Request, 0, limit)
	for i, resp := range hashResps {
		hash, err := rpc.DecodeBlockHash(resp)
		if err != nil {
			r.logger.Debug(
				"dropping height",
				"height", start+uint64(i),
				"error", err,
			)
			continue
		}
		heights = append(heights, start+uint64(i))
		hashes = append(hashes, hash)
		blockReqs = append(blockReqs, rpc.GetBlockRequest(hash))
	}
	if len(blockReqs) == 0 {
		return nil
	}
	blockResps, err := r.batch(ctx, node, blockReqs)
	if err != nil {
		r.logger.Warn(
			"block batch failed",
			"start", start,
			"error", err,
		)
		return nil
	}
	ret := make([]fetchedBlock, 0, len(blockResps))
	for i, resp := range blockResps {
		block, err := rpc.DecodeRawBlock(resp)
		if err != nil {
			r.logger.Debug(
				"dropping block",
				"height", heights[i],
				"error", err,
			)
			continue
		}
		if r.config.VerifyHash && !verifyBlockHash(block, hashes[i]) {
			r.logger.Warn(
				"dropping block with mismatched hash",
				"height", heights[i],
				"hash", hashes[i].String(),
			)
			continue
		}
		ret = append(ret, fetchedBlock{height: heights[i], block: block})
	}
	return ret
}

func (r *Runtime) batch(ctx context.Context, node Node, reqs []rpc.Request) ([]rpc.Response, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.config.RPCTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.config.RPCTimeout)
	}
	defer cancel()
	resps, err := node.Batch(callCtx, reqs)
	if err != nil {
		return nil, err
	}
	if len(resps) != len(reqs) {
		return nil, fmt.Errorf(
			"%w: got %d responses for %d requests",
			rpc.ErrBatchMismatch,
			len(resps),
			len(reqs),
		)
	}
	return resps, nil
}

// verifyBlockHash checks that the block header hashes to the expected hash
func verifyBlockHash(block []byte, expected *chainhash.Hash) bool {
	if len(block) < blockHeaderLength {
		return false
	}
	hash := chainhash.DoubleHashH(block[:blockHeaderLength])
	return hash.IsEqual(expected)
}
