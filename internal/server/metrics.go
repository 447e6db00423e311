// Copyright 2026 The Frenum Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frenum_decisions_total",
			Help: "Total number of policy decisions by decision and blocking rule.",
		},
		[]string{"decision", "rule"},
	)

	evalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "frenum_eval_duration_seconds",
			Help: "Policy evaluation duration in seconds.",
			Buckets: []float64{
				0.000001, 0.000005, 0.00001, 0.00005,
				0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1,
			},
		},
	)

	ruleCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "frenum_rule_count",
			Help: "Current number of configured rules.",
		},
	)

	uptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "frenum_uptime_seconds",
			Help: "Seconds since the server started.",
		},
	)

	metricsRegistry = prometheus.NewRegistry()
)

func init() {
	metricsRegistry.MustRegister(
		decisionsTotal,
		evalDuration,
		ruleCount,
		uptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

// RecordDecision records one policy decision for Prometheus metrics.
func RecordDecision(decision, rule string, duration time.Duration) {
	if rule == "" {
		rule = "none"
	}
	decisionsTotal.With(prometheus.Labels{"decision": decision, "rule": rule}).Inc()
	evalDuration.Observe(duration.Seconds())
}

// SetRuleCount sets the configured rule count gauge.
func SetRuleCount(n int) {
	ruleCount.Set(float64(n))
}

// SetUptime sets the uptime gauge in seconds.
func SetUptime(d time.Duration) {
	uptimeSeconds.Set(d.Seconds())
}

// MetricsHandler returns an HTTP handler for the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})
}
