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

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/blinklabs-io/blockloader"
	"github.com/blinklabs-io/blockloader/rpc"
)

// heightPoller keeps the chain state's best height in line with the node
type heightPoller struct {
	client   *rpc.Client
	state    *blockloader.ChainState
	interval time.Duration
	logger   *slog.Logger
}

func (p *heightPoller) poll(ctx context.Context) error {
	height, err := p.client.GetBlockCount(ctx)
	if err != nil {
		return err
	}
	if height != p.state.BestHeight() {
		p.logger.Debug("node height changed", "height", height)
	}
	p.state.SetBestHeight(height)
	return nil
}

func (p *heightPoller) run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := p.poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("failed to query node height", "error", err)
		}
	}
}
