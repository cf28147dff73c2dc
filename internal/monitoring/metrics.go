// Package monitoring exposes Prometheus metrics for the lead pipeline and
// collects point-in-time snapshots of the lead stores.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for LeadsTotal.
const (
	OutcomeQualified = "qualified"
	OutcomeDiscarded = "discarded"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "competitor"
	OutcomeError     = "error"
)

var (
	// LeadsTotal counts leads by platform and pipeline outcome.
	LeadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_processed_total",
		Help: "Leads processed by the ingestion pipeline, by outcome",
	}, []string{"platform", "outcome"})

	// FilterDecisions counts competitor-filter verdicts by stage.
	FilterDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_filter_decisions_total",
		Help: "Competitor filter decisions by stage and verdict",
	}, []string{"stage", "verdict"})

	// LLMCalls counts backend calls by backend, operation and result.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_llm_calls_total",
		Help: "Calls to the text generation backend",
	}, []string{"backend", "operation", "result"})

	// LLMDuration tracks backend latency.
	LLMDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leads_llm_call_duration_seconds",
		Help:    "Latency of text generation backend calls",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"backend", "operation"})

	// MessagesTotal counts outreach generation outcomes.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_messages_total",
		Help: "Outreach messages by outcome",
	}, []string{"outcome"})

	// Rescores counts rescore operations by transition.
	Rescores = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leads_rescores_total",
		Help: "Rescore operations by store transition",
	}, []string{"transition"})

	// StoreLeads reports the number of leads currently held per store.
	StoreLeads = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "leads_store_size",
		Help: "Leads currently held in each store",
	}, []string{"store"})

	// StoreStatus reports lead counts by status.
	StoreStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "leads_store_status",
		Help: "Leads currently held by status",
	}, []string{"status"})
)

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
