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

package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/blockloader/cbor"
)

const (
	DefaultBatchLimit = 50
	DefaultRPCTimeout = 30 * time.Second
)

// ErrInvalidConfig is returned when a config frame cannot be used
var ErrInvalidConfig = errors.New("invalid worker config")

// Config is sent by the supervisor as the first frame on the request pipe
type Config struct {
	Index      int           `cbor:"index"`
	RPCURL     string        `cbor:"rpc_url"`
	RPCTimeout time.Duration `cbor:"rpc_timeout"`
	BatchLimit int           `cbor:"batch_limit"`
	VerifyHash bool          `cbor:"verify_hash"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		RPCTimeout: DefaultRPCTimeout,
		BatchLimit: DefaultBatchLimit,
	}
}

// EncodeConfig builds the payload of a config frame
func EncodeConfig(cfg Config) ([]byte, error) {
	return cbor.Encode(&cfg)
}

// DecodeConfig decodes the payload of a config frame
func DecodeConfig(payload []byte) (Config, error) {
	var cfg Config
	if !cbor.IsMap(payload) {
		return cfg, fmt.Errorf("%w: payload is not a CBOR map", ErrInvalidConfig)
	}
	n, err := cbor.Decode(payload, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if n != len(payload) {
		return cfg, fmt.Errorf(
			"%w: %d trailing bytes",
			ErrInvalidConfig,
			len(payload)-n,
		)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.BatchLimit < 1 {
		return fmt.Errorf("%w: batch limit must be positive", ErrInvalidConfig)
	}
	if c.RPCTimeout < 0 {
		return fmt.Errorf("%w: negative RPC timeout", ErrInvalidConfig)
	}
	return nil
}
