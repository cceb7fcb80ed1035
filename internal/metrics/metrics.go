// Package metrics holds the Prometheus collectors exported on
// /metrics/prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics groups every collector the server registers. All names carry the
// "ranger_" prefix.
type Metrics struct {
	HTTPRequestsTotal *prometheus.CounterVec

	VerifierCallsTotal   *prometheus.CounterVec
	VerifierCallDuration *prometheus.HistogramVec
	VerdictsTotal        *prometheus.CounterVec

	KnowledgeUpsertsTotal prometheus.Counter
	KnowledgeMergesTotal  prometheus.Counter

	ProposalsTotal   *prometheus.CounterVec
	ModifierOpsTotal *prometheus.CounterVec

	MonitorEventsTotal *prometheus.CounterVec
	ResponseLatency    prometheus.Histogram
}

// New registers the collectors with the default registry once and returns
// the shared instance on every call.
func New() *Metrics {
	once.Do(func() {
		global = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ranger_http_requests_total",
					Help: "HTTP requests by status class",
				},
				[]string{"class"},
			),
			VerifierCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ranger_verifier_calls_total",
					Help: "Search collaborator calls by outcome",
				},
				[]string{"collaborator", "outcome"}, // ok, error, timeout, backpressure
			),
			VerifierCallDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "ranger_verifier_call_duration_seconds",
					Help:    "Latency of search collaborator calls",
					Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
				},
				[]string{"collaborator"},
			),
			VerdictsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ranger_verdicts_total",
					Help: "Verification verdicts by outcome",
				},
				[]string{"verdict"},
			),
			KnowledgeUpsertsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ranger_knowledge_upserts_total",
				Help: "Knowledge items written",
			}),
			KnowledgeMergesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ranger_knowledge_merges_total",
				Help: "Items merged by consolidation",
			}),
			ProposalsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ranger_proposals_total",
					Help: "Modification proposals by resulting status",
				},
				[]string{"status"},
			),
			ModifierOpsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ranger_modifier_operations_total",
					Help: "Code modifier operations by kind and result",
				},
				[]string{"op", "result"},
			),
			MonitorEventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ranger_monitor_events_total",
					Help: "Performance samples recorded by kind",
				},
				[]string{"kind"},
			),
			ResponseLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "ranger_response_latency_seconds",
				Help:    "Utterance handling latency",
				Buckets: prometheus.DefBuckets,
			}),
		}
	})
	return global
}

// StatusClass buckets an HTTP status code as "2xx", "4xx" and so on.
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
