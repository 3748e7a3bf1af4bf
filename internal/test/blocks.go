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
	"bytes"
	"encoding/binary"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// genesisTime is the timestamp of the first synthetic block
const genesisTime = 1231006505

// Block builds a small but well-formed block at the given height on top of
// prevHash. It has a single coinbase transaction which commits to the height,
// so every height yields distinct bytes and a distinct hash.
func Block(height uint64, prevHash chainhash.Hash) *wire.MsgBlock {
	heightBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(heightBytes, height)
	sigScript := append([]byte{0x08}, heightBytes...)
	coinbase := wire.NewMsgTx(1)
	coinbase.AddTxIn(
		wire.NewTxIn(
			wire.NewOutPoint(&chainhash.Hash{}, 0xffffffff),
			sigScript,
			nil,
		),
	)
	// OP_TRUE
	coinbase.AddTxOut(wire.NewTxOut(50_0000_0000, []byte{0x51}))
	header := wire.NewBlockHeader(
		1,
		&prevHash,
		ptr(coinbase.TxHash()),
		0x207fffff,
		uint32(height),
	)
	header.Timestamp = time.Unix(genesisTime+int64(height)*600, 0)
	block := wire.NewMsgBlock(header)
	_ = block.AddTransaction(coinbase)
	return block
}

// Chain builds synthetic blocks for heights [0, height] and returns their
// serialized bytes and hashes, indexed by height
func Chain(height uint64) ([][]byte, []chainhash.Hash) {
	blocks := make([][]byte, 0, height+1)
	hashes := make([]chainhash.Hash, 0, height+1)
	var prev chainhash.Hash
	for h := uint64(0); h <= height; h++ {
		raw, hash := SerializedBlock(h, prev)
		blocks = append(blocks, raw)
		hashes = append(hashes, hash)
		prev = hash
	}
	return blocks, hashes
}

// SerializedBlock returns the wire encoding and hash of Block(height, prevHash)
func SerializedBlock(height uint64, prevHash chainhash.Hash) ([]byte, chainhash.Hash) {
	block := Block(height, prevHash)
	var buf bytes.Buffer
	if err := block.Serialize(&buf); err != nil {
		panic(err)
	}
	return buf.Bytes(), block.BlockHash()
}

func ptr[T any](v T) *T {
	return &v
}
