package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Flight radar metrics
var (
	BudgetDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flightradar",
			Name:      "budget_decisions_total",
			Help:      "Paid lookup budget decisions by outcome",
		},
		[]string{"outcome"},
	)

	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flightradar",
			Name:      "provider_calls_total",
			Help:      "External lookup calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	EnrichmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "flightradar",
			Name:      "enrichments_total",
			Help:      "Total enrichment pipeline runs",
		},
	)

	CacheWriteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flightradar",
			Name:      "cache_write_errors_total",
			Help:      "Flight cache writes that failed and were discarded",
		},
		[]string{"operation"},
	)

	ReconcileEntitiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flightradar",
			Name:      "reconcile_entities_total",
			Help:      "Arrival reconciliation results per entity",
		},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flightradar",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// Provider call outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeMiss    = "miss"
	OutcomeTimeout = "timeout"
)
