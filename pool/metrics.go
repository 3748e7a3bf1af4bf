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

package pool

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "pool"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of registered workers.
	Workers metrics.Gauge
	// Number of workers with an outstanding request.
	BusyWorkers metrics.Gauge
	// Number of get requests sent to workers.
	DispatchedRequests metrics.Counter
	// Number of blocks delivered by workers.
	Results metrics.Counter
	// Number of worker process exits.
	WorkerExits metrics.Counter
	// Number of failed spawn attempts.
	SpawnFailures metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Workers: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "workers",
			Help:      "Number of registered workers.",
		}, []string{}),
		BusyWorkers: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "busy_workers",
			Help:      "Number of workers with an outstanding request.",
		}, []string{}),
		DispatchedRequests: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dispatched_requests",
			Help:      "Number of get requests sent to workers.",
		}, []string{}),
		Results: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "results",
			Help:      "Number of blocks delivered by workers.",
		}, []string{}),
		WorkerExits: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "worker_exits",
			Help:      "Number of worker process exits.",
		}, []string{}),
		SpawnFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "spawn_failures",
			Help:      "Number of failed spawn attempts.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Workers:            discard.NewGauge(),
		BusyWorkers:        discard.NewGauge(),
		DispatchedRequests: discard.NewCounter(),
		Results:            discard.NewCounter(),
		WorkerExits:        discard.NewCounter(),
		SpawnFailures:      discard.NewCounter(),
	}
}
