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
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "loader"

// Metrics contains metrics exposed by the scheduler and watchdog.
type Metrics struct {
	// Next height the scheduler will request.
	CursorHeight metrics.Gauge
	// Last height the scheduler aims for.
	TargetHeight metrics.Gauge
	// Number of iterations which found the cache full.
	SaturatedStalls metrics.Counter
	// Number of scheduler runs started by the watchdog.
	SchedulerRuns metrics.Counter
	// Number of blocks evicted from the cache after processing.
	EvictedBlocks metrics.Counter
	// Size of the block cache in bytes.
	CacheSizeBytes metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		CursorHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cursor_height",
			Help:      "Next height the scheduler will request.",
		}, []string{}),
		TargetHeight: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "target_height",
			Help:      "Last height the scheduler aims for.",
		}, []string{}),
		SaturatedStalls: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "saturated_stalls",
			Help:      "Number of iterations which found the cache full.",
		}, []string{}),
		SchedulerRuns: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "scheduler_runs",
			Help:      "Number of scheduler runs started by the watchdog.",
		}, []string{}),
		EvictedBlocks: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "evicted_blocks",
			Help:      "Number of blocks evicted from the cache after processing.",
		}, []string{}),
		CacheSizeBytes: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cache_size_bytes",
			Help:      "Size of the block cache in bytes.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		CursorHeight:    discard.NewGauge(),
		TargetHeight:    discard.NewGauge(),
		SaturatedStalls: discard.NewCounter(),
		SchedulerRuns:   discard.NewCounter(),
		EvictedBlocks:   discard.NewCounter(),
		CacheSizeBytes:  discard.NewGauge(),
	}
}
