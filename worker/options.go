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
	"log/slog"
)

// RuntimeOptionFunc is a type that represents functions that modify the Runtime config
type RuntimeOptionFunc func(*Runtime)

// WithNode specifies the node client used for fetching blocks. When set, the
// RPC URL in the config frame is ignored.
func WithNode(node Node) RuntimeOptionFunc {
	return func(r *Runtime) {
		r.node = node
	}
}

// WithNodeFunc specifies how a node client is created from the config frame
func WithNodeFunc(nodeFunc NodeFunc) RuntimeOptionFunc {
	return func(r *Runtime) {
		r.nodeFunc = nodeFunc
	}
}

// WithConfig specifies an initial config, which a config frame replaces
func WithConfig(cfg Config) RuntimeOptionFunc {
	return func(r *Runtime) {
		r.config = cfg
	}
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) RuntimeOptionFunc {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithExitFunc specifies the function used to exit the process on a
// termination signal
func WithExitFunc(exitFunc func(int)) RuntimeOptionFunc {
	return func(r *Runtime) {
		r.exitFunc = exitFunc
	}
}
