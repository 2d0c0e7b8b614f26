// Package stats exposes a per-iteration snapshot and the Prometheus
// gauges/counters a real balancer deployment would scrape, supplementing
// the stdout progress report named in spec §6.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot captures one iteration's headline numbers — used both for
// the stdout report line and, in tests, to assert on an iteration's
// outcome (e.g. bytes moved) without re-deriving it from logs.
type Snapshot struct {
	Iteration       int
	BytesMoved      uint64 // cumulative across the run
	BytesLeftToMove uint64 // this iteration's classifier output
	BytesThisIter   uint64 // bytes actually moved this iteration

	OverUtilized  int
	AboveAvg      int
	BelowAvg      int
	Underutilized int
}

// Registry holds the balancer's Prometheus collectors. Callers that
// don't want metrics exported can simply never register it with a
// gatherer; the gauges remain cheap, in-memory counters either way.
type Registry struct {
	BytesMoved      prometheus.Counter
	BytesLeftToMove prometheus.Gauge
	DispatcherBusy  prometheus.Gauge
	MoverBusy       prometheus.Gauge
	Iterations      prometheus.Counter
}

// NewRegistry builds and registers the balancer's collectors against
// reg (typically prometheus.NewRegistry(), not the global default, so
// that multiple test runs in one process don't collide).
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		BytesMoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "balancer_bytes_moved_total",
			Help: "Cumulative bytes relocated by the balancer.",
		}),
		BytesLeftToMove: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "balancer_bytes_left_to_move",
			Help: "Bytes the classifier believes still need to move.",
		}),
		DispatcherBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "balancer_dispatcher_pool_busy",
			Help: "Number of dispatcher-pool tasks currently running.",
		}),
		MoverBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "balancer_mover_pool_busy",
			Help: "Number of mover-pool tasks currently running.",
		}),
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "balancer_iterations_total",
			Help: "Number of balancing iterations run.",
		}),
	}
	reg.MustRegister(r.BytesMoved, r.BytesLeftToMove, r.DispatcherBusy, r.MoverBusy, r.Iterations)
	return r
}

// Observe records one iteration's snapshot against the registry.
func (r *Registry) Observe(s Snapshot) {
	if r == nil {
		return
	}
	r.BytesMoved.Add(float64(s.BytesThisIter))
	r.BytesLeftToMove.Set(float64(s.BytesLeftToMove))
	r.Iterations.Inc()
}
