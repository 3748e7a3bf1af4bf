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

// Package rpc implements a small JSON-RPC 1.0 client for talking to a
// bitcoind-style full node, with support for batched calls.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const jsonRPCVersion = "1.0"

// Client is a JSON-RPC client which sends requests as HTTP POSTs to a single
// node. It is safe for concurrent use by multiple goroutines.
type Client struct {
	address  string
	username string
	password string
	client   *http.Client
	timeout  time.Duration
	logger   *slog.Logger
	idPrefix string
	nextId   atomic.Uint64
}

// NewClient returns a new client for the node at remote. Credentials in the
// URL userinfo are sent using basic auth. A URL without a scheme is assumed
// to be plain HTTP.
func NewClient(remote string, opts ...ClientOptionFunc) (*Client, error) {
	if remote == "" {
		return nil, fmt.Errorf("%w: empty URL", ErrInvalidURL)
	}
	if !strings.Contains(remote, "://") {
		remote = "http://" + remote
	}
	parsedURL, err := url.Parse(remote)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	c := &Client{
		client:   &http.Client{},
		idPrefix: uuid.New().String()[:8],
	}
	if parsedURL.User != nil {
		c.username = parsedURL.User.Username()
		c.password, _ = parsedURL.User.Password()
		parsedURL.User = nil
	}
	c.address = parsedURL.String()
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		c.client.Timeout = c.timeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Address returns the node URL without credentials
func (c *Client) Address() string {
	return c.address
}

// Call issues a single request and decodes its result into result
func (c *Client) Call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	req := wireRequest{
		JSONRPC: jsonRPCVersion,
		ID:      c.newId(),
		Method:  method,
		Params:  params,
	}
	body, status, err := c.post(ctx, req)
	if err != nil {
		return err
	}
	var resp wireResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("rpc: decode %s response (HTTP %d): %w", method, status, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if resp.ID != req.ID {
		return fmt.Errorf("%w: got id %q, expected %q", ErrBatchMismatch, resp.ID, req.ID)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("rpc: decode %s result: %w", method, err)
	}
	return nil
}

// Batch sends all requests in a single HTTP exchange. The returned responses
// are in request order. A failed item is reported through its Response.Error
// and does not fail the batch. An error is returned only when the exchange
// itself fails.
func (c *Client) Batch(ctx context.Context, reqs []Request) ([]Response, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	wireReqs := make([]wireRequest, len(reqs))
	index := make(map[string]int, len(reqs))
	for i, req := range reqs {
		params := req.Params
		if params == nil {
			params = []any{}
		}
		wireReqs[i] = wireRequest{
			JSONRPC: jsonRPCVersion,
			ID:      c.newId(),
			Method:  req.Method,
			Params:  params,
		}
		index[wireReqs[i].ID] = i
	}
	c.logger.Debug(
		"sending batch",
		"component", "rpc",
		"method", reqs[0].Method,
		"size", len(reqs),
	)
	body, status, err := c.post(ctx, wireReqs)
	if err != nil {
		return nil, err
	}
	var wireResps []wireResponse
	if err := json.Unmarshal(body, &wireResps); err != nil {
		// A node which fails the whole batch answers with a single error object
		var single wireResponse
		if err2 := json.Unmarshal(body, &single); err2 == nil && single.Error != nil {
			return nil, single.Error
		}
		return nil, fmt.Errorf("rpc: decode batch response (HTTP %d): %w", status, err)
	}
	ret := make([]Response, len(reqs))
	seen := make([]bool, len(reqs))
	for _, resp := range wireResps {
		i, ok := index[resp.ID]
		if !ok || seen[i] {
			return nil, fmt.Errorf("%w: unexpected id %q", ErrBatchMismatch, resp.ID)
		}
		seen[i] = true
		ret[i] = Response{
			Result: resp.Result,
			Error:  resp.Error,
		}
		if resp.Error == nil && (len(resp.Result) == 0 || string(resp.Result) == "null") {
			ret[i].Error = &Error{Code: CodeMissingResponse, Message: "null result"}
		}
	}
	for i := range ret {
		if !seen[i] {
			ret[i].Error = &Error{
				Code:    CodeMissingResponse,
				Message: "no response for " + reqs[i].Method,
			}
		}
	}
	return ret, nil
}

// Close releases idle connections held by the client
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

func (c *Client) newId() string {
	return c.idPrefix + "-" + strconv.FormatUint(c.nextId.Add(1), 10)
}

func (c *Client) post(ctx context.Context, payload any) ([]byte, int, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("rpc: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.address,
		bytes.NewReader(reqBody),
	)
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.username != "" || c.password != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("rpc: post: %w", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode == http.StatusUnauthorized ||
		httpResp.StatusCode == http.StatusForbidden {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		return nil, httpResp.StatusCode, ErrUnauthorized
	}
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("rpc: read response: %w", err)
	}
	// bitcoind reports call errors with a 4xx/5xx status and a JSON body, so
	// only a body we cannot use is treated as a transport failure
	if httpResp.StatusCode != http.StatusOK && len(bytes.TrimSpace(body)) == 0 {
		return nil, httpResp.StatusCode, fmt.Errorf("rpc: HTTP %d", httpResp.StatusCode)
	}
	return body, httpResp.StatusCode, nil
}
