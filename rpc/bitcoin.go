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

package rpc

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Node methods used by the loader
const (
	MethodGetBlockHash  = "getblockhash"
	MethodGetBlock      = "getblock"
	MethodGetBlockCount = "getblockcount"
)

// GetBlockHashRequest builds a getblockhash call for the given height
func GetBlockHashRequest(height uint64) Request {
	return Request{
		Method: MethodGetBlockHash,
		Params: []any{height},
	}
}

// GetBlockRequest builds a getblock call which returns the raw serialized
// block (verbosity 0)
func GetBlockRequest(hash *chainhash.Hash) Request {
	return Request{
		Method: MethodGetBlock,
		Params: []any{hash.String(), 0},
	}
}

// GetBlockCount returns the height of the node's best chain
func (c *Client) GetBlockCount(ctx context.Context) (uint64, error) {
	var count uint64
	if err := c.Call(ctx, MethodGetBlockCount, nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// DecodeBlockHash decodes the result of a getblockhash call
func DecodeBlockHash(resp Response) (*chainhash.Hash, error) {
	var hashStr string
	if err := resp.Decode(&hashStr); err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return nil, fmt.Errorf("rpc: invalid block hash %q: %w", hashStr, err)
	}
	return hash, nil
}

// DecodeRawBlock decodes the result of a getblock call with verbosity 0
func DecodeRawBlock(resp Response) ([]byte, error) {
	var blockHex string
	if err := resp.Decode(&blockHex); err != nil {
		return nil, err
	}
	block, err := hex.DecodeString(blockHex)
	if err != nil {
		return nil, fmt.Errorf("rpc: invalid block hex: %w", err)
	}
	return block, nil
}
