// Package metrics holds the Prometheus collectors of the browse engine and the social features.
//
// Collectors are package-level and registered once with MustRegister:
//
//	metrics.MustRegister(prometheus.DefaultRegisterer)
//	metrics.RecordPage(0, "ok")
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PagesFetchedTotal counts page fetches by page kind (first/next) and result.
	PagesFetchedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchlog_pages_fetched_total",
		Help: "Collection page fetches by page kind and result",
	}, []string{"page", "result"})

	// PagesDiscardedTotal counts page results dropped because a newer filter superseded them.
	PagesDiscardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watchlog_pages_discarded_total",
		Help: "Page results discarded on arrival because their filter was superseded",
	})

	// PageFetchDuration tracks store latency per page fetch.
	PageFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "watchlog_page_fetch_duration_seconds",
		Help:    "Duration of collection page fetches",
		Buckets: prometheus.DefBuckets,
	}, []string{"plan"})

	// EnrichmentLookupsTotal counts metadata lookups by result (hit, fetched, shared, failed, skipped, canceled).
	EnrichmentLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchlog_enrichment_lookups_total",
		Help: "Metadata enrichment lookups by result",
	}, []string{"result"})

	// BackfillFailuresTotal counts year write-backs that failed.
	BackfillFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watchlog_backfill_failures_total",
		Help: "Failed release-year write-backs",
	})

	// ProviderRequestsTotal counts metadata provider calls by operation and status.
	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchlog_provider_requests_total",
		Help: "Metadata provider requests by operation and status",
	}, []string{"operation", "status"})

	// ProviderBreakerTransitionsTotal counts circuit breaker state changes of the provider client.
	ProviderBreakerTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchlog_provider_breaker_transitions_total",
		Help: "Metadata provider circuit breaker state transitions",
	}, []string{"from", "to"})

	// InviteOutcomesTotal counts invite acceptance outcomes.
	InviteOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchlog_invite_outcomes_total",
		Help: "Invite acceptance attempts by outcome",
	}, []string{"outcome"})

	// RecommendationsSentTotal counts recommendations created.
	RecommendationsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "watchlog_recommendations_sent_total",
		Help: "Recommendations created",
	})

	// AccessDecisionsTotal counts friend access gate decisions by state.
	AccessDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "watchlog_access_decisions_total",
		Help: "Friend access gate decisions by resulting state",
	}, []string{"state"})
)

// MustRegister registers every collector.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PagesFetchedTotal,
		PagesDiscardedTotal,
		PageFetchDuration,
		EnrichmentLookupsTotal,
		BackfillFailuresTotal,
		ProviderRequestsTotal,
		ProviderBreakerTransitionsTotal,
		InviteOutcomesTotal,
		RecommendationsSentTotal,
		AccessDecisionsTotal,
	)
}

// RecordPage records the result of one page fetch.
func RecordPage(page int, result string) {
	kind := "next"
	if page == 0 {
		kind = "first"
	}
	PagesFetchedTotal.WithLabelValues(kind, result).Inc()
}

// ObservePageFetch records how long a page fetch took.
func ObservePageFetch(fullScan bool, d time.Duration) {
	PageFetchDuration.WithLabelValues(planLabel(fullScan)).Observe(d.Seconds())
}

// RecordProviderRequest records one provider call. status is the HTTP status or 0 for transport failures.
func RecordProviderRequest(operation string, status int) {
	ProviderRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

func planLabel(fullScan bool) string {
	if fullScan {
		return "full_scan"
	}
	return "paged"
}
