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
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrBatchMismatch is returned when a batch response carries an id which
	// was not part of the request
	ErrBatchMismatch = errors.New("rpc: batch response does not match request")
	// ErrUnauthorized is returned when the node rejects our credentials
	ErrUnauthorized = errors.New("rpc: unauthorized")
	// ErrInvalidURL is returned for an unusable node URL
	ErrInvalidURL = errors.New("rpc: invalid URL")
)

// CodeMissingResponse is used for a batch item the node never answered
const CodeMissingResponse = -32099

// Request is a single remote procedure call
type Request struct {
	Method string
	Params []any
}

// Error is an error object returned by the node for a single call
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Response is the outcome of a single call. Exactly one of Result and Error
// is meaningful.
type Response struct {
	Result json.RawMessage
	Error  *Error
}

// Err returns the item error, if any
func (r Response) Err() error {
	if r.Error != nil {
		return r.Error
	}
	return nil
}

// Decode unmarshals the result into dest
func (r Response) Decode(dest any) error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 {
		return errors.New("rpc: empty result")
	}
	return json.Unmarshal(r.Result, dest)
}

type wireRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wireResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}
