// Package metrics provides Prometheus metrics for the grader service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts grading executions by final status.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unicon",
			Subsystem: "grader",
			Name:      "executions_total",
			Help:      "Total number of grading executions by final status",
		},
		[]string{"status"}, // "completed", "failed"
	)

	// ExecutionsActive tracks currently running executions.
	ExecutionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "unicon",
			Subsystem: "grader",
			Name:      "executions_active",
			Help:      "Number of currently running grading executions",
		},
	)

	// ExecutionDuration tracks end-to-end grading duration.
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "unicon",
			Subsystem: "grader",
			Name:      "execution_duration_seconds",
			Help:      "Grading execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	// NodesTotal counts node evaluations by outcome.
	NodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unicon",
			Subsystem: "grader",
			Name:      "nodes_total",
			Help:      "Total number of nodes evaluated by outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "ok", "failed", "skipped"
	)

	// VerdictsTotal counts testcase verdicts by result.
	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unicon",
			Subsystem: "grader",
			Name:      "verdicts_total",
			Help:      "Total number of testcase verdicts",
		},
		[]string{"result"}, // "passed", "failed"
	)

	// SandboxRequestsTotal counts sandbox invocations by reply status.
	SandboxRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unicon",
			Subsystem: "grader",
			Name:      "sandbox_requests_total",
			Help:      "Total number of sandbox invocations by reply status",
		},
		[]string{"status"}, // "OK", "TLE", "MLE", "RTE", "timeout", "unavailable", "malformed"
	)

	// SandboxLatency tracks round-trip sandbox latency.
	SandboxLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "unicon",
			Subsystem: "grader",
			Name:      "sandbox_latency_seconds",
			Help:      "Sandbox invocation round-trip latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unicon",
			Subsystem: "grader",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "unicon",
			Subsystem: "grader",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// StoreOperations counts execution-store operations.
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "unicon",
			Subsystem: "grader",
			Name:      "store_operations_total",
			Help:      "Total number of execution store operations",
		},
		[]string{"operation", "result"}, // operation: create, update, get; result: success, error
	)
)
