// Package metrics defines and registers all custom Prometheus metrics for the
// Forenvision case console. It is the single source of truth for metric
// names, labels, and help strings.
//
// Metrics are registered on the default registry at package init through
// promauto; the console exposes them on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "forenvision"

// ── Gateway metrics ───────────────────────────────────────────────────────────

// GatewayRequestsTotal counts authenticated calls that received an answer.
// Labels:
//   - method: HTTP method (e.g. "GET")
//   - code: status class ("2xx", "4xx", "5xx", …)
var GatewayRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_requests_total",
		Help:      "Total number of authenticated API calls, by method and status class.",
	},
	[]string{"method", "code"},
)

// GatewayNetworkErrorsTotal counts calls that never received a response.
var GatewayNetworkErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gateway_network_errors_total",
		Help:      "Total number of authenticated API calls that failed at the transport level.",
	},
)

// GatewayRequestDuration measures the round trip of one authenticated call.
// Label:
//   - method: HTTP method
var GatewayRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "gateway_request_duration_seconds",
		Help:      "Duration of authenticated API calls, from dispatch to response headers.",
		Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
	},
	[]string{"method"},
)

// AuthFailuresTotal counts handled 401/403 answers.
// Label:
//   - reason: "authentication" (401) or "authorization" (403)
var AuthFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Total number of authentication failures handled by the gateway.",
	},
	[]string{"reason"},
)

// NoticesTotal counts failure notices.
// Labels:
//   - kind: "session_expired" or "session_outdated"
//   - result: "shown" or "suppressed" (self-initiated logout in progress)
var NoticesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notices_total",
		Help:      "Total number of session failure notices, shown or suppressed.",
	},
	[]string{"kind", "result"},
)

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionTransitionsTotal counts state machine transitions.
// Labels:
//   - from, to: "loading", "authenticated", "anonymous"
var SessionTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Total number of session state transitions.",
	},
	[]string{"from", "to"},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// AuditRecordsTotal counts audit outcomes.
// Label:
//   - result: "stored", "duplicate", or "error"
var AuditRecordsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_records_total",
		Help:      "Total number of session transitions handed to the audit trail, by result.",
	},
	[]string{"result"},
)

// AuditQueueDepth tracks the number of transitions waiting in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of transitions pending in each audit worker channel.",
	},
	[]string{"worker_id"},
)
