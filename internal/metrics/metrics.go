// Adsync - Advertising Performance Sync Engine
// Copyright 2026 OJ Axel (ohjayaxel)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ohjayaxel/adsync

// Package metrics provides Prometheus instrumentation for the sync engine:
// platform API call latency and retries, report job lifecycle, task
// outcomes, store write performance and API endpoint throughput.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Platform API metrics
	PlatformRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_request_duration_seconds",
			Help:    "Duration of ad platform API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "start", "poll", "fetch"
	)

	PlatformRequestRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_request_retries_total",
			Help: "Total number of retried ad platform requests",
		},
		[]string{"status_code"},
	)

	PlatformRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_request_errors_total",
			Help: "Total number of ad platform requests that exhausted retries",
		},
		[]string{"operation"},
	)

	// Circuit breaker state: 0 = closed, 1 = half-open, 2 = open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total requests through the circuit breaker, by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Report job lifecycle metrics
	ReportJobsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_jobs_started_total",
			Help: "Total number of asynchronous report jobs submitted",
		},
	)

	ReportJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "report_job_duration_seconds",
			Help:    "Time from report job submission to completed status",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 900},
		},
	)

	ReportJobTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_job_timeouts_total",
			Help: "Total number of report jobs that exceeded the poll timeout",
		},
	)

	// Sync run metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of per-tenant sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"mode"}, // "incremental", "backfill"
	)

	SyncTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_tasks_total",
			Help: "Total number of matrix tasks executed, by outcome",
		},
		[]string{"outcome"}, // "succeeded", "failed"
	)

	SyncRowsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_rows_upserted_total",
			Help: "Total number of daily fact rows upserted",
		},
	)

	SyncRowsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_rows_dropped_total",
			Help: "Total number of raw rows dropped by the normalizer",
		},
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_last_success_timestamp",
			Help: "Unix timestamp of the last successful sync per tenant",
		},
		[]string{"tenant"},
	)

	// Store metrics
	DBWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_write_duration_seconds",
			Help:    "Duration of DuckDB write statements in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	DBWriteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_write_errors_total",
			Help: "Total number of DuckDB write errors",
		},
		[]string{"table"},
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Event publishing metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of sync lifecycle events published",
		},
		[]string{"topic"},
	)

	EventPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "event_publish_errors_total",
			Help: "Total number of event publish failures",
		},
	)
)
