// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package webagent

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webagent_runs_total",
			Help: "Total number of task runs by mode and terminal status",
		},
		[]string{"mode", "status"},
	)
	promRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webagent_run_duration_seconds",
			Help:    "Task run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"mode"},
	)
	promEscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webagent_escalations_total",
			Help: "Total number of replay runs that escalated to the agent",
		},
	)
	promCacheSavesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webagent_cache_saves_total",
			Help: "Total number of workflow cache writes (fresh recordings and repairs)",
		},
	)
	promWebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webagent_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(promRunsTotal)
	prometheus.MustRegister(promRunDuration)
	prometheus.MustRegister(promEscalationsTotal)
	prometheus.MustRegister(promCacheSavesTotal)
	prometheus.MustRegister(promWebhookDeliveries)
}

// runMode labels a run for metrics: replay when the cached workflow carried
// the run to completion, agent otherwise.
func runMode(escalated, replayed bool) string {
	switch {
	case replayed && !escalated:
		return "replay"
	case escalated:
		return "escalated"
	default:
		return "agent"
	}
}
