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

package blockloader

import (
	"context"
	"fmt"
	"time"
)

// watchdog checks right away and then every WatchdogInterval whether a
// scheduler run should be started
func (l *BlockLoader) watchdog(ctx context.Context) {
	defer l.waitGroup.Done()
	l.logger.Debug(
		"watchdog started",
		"interval", l.config.WatchdogInterval,
	)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("watchdog stopped")
			return
		case <-timer.C:
		}
		l.check()
		timer.Reset(l.config.WatchdogInterval)
	}
}

// check starts a scheduler run when none is active and the node is in deep
// synchronization
func (l *BlockLoader) check() {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(
				"watchdog check failed",
				"error", fmt.Sprintf("%v", r),
			)
		}
	}()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running || l.stopped {
		return
	}
	if !l.node.DeepSynchronization() {
		return
	}
	l.running = true
	s := newScheduler(l)
	l.waitGroup.Add(1)
	go func() {
		defer l.waitGroup.Done()
		defer func() {
			l.mu.Lock()
			l.running = false
			l.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error(
					"scheduler failed",
					"error", fmt.Sprintf("%v", r),
				)
			}
		}()
		s.run(l.ctx)
	}()
}
