package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciler Metrics
	SpeculativeInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_speculative_inserted_total",
			Help: "Speculative entities shown before the store confirmed them",
		},
		[]string{"feed"},
	)

	SpeculativeSuperseded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_speculative_superseded_total",
			Help: "Speculative entities retired because their authoritative twin arrived",
		},
		[]string{"feed"},
	)

	SpeculativeRetracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_speculative_retracted_total",
			Help: "Speculative entities removed after a failed write",
		},
		[]string{"feed"},
	)

	RecentlyArrived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_recently_arrived_total",
			Help: "Authoritative entities flagged as newly arrived",
		},
		[]string{"feed"},
	)

	SubmitRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_submit_retries_total",
			Help: "Write attempts repeated after a transient store failure",
		},
		[]string{"feed"},
	)

	// Subscription Metrics
	SubscriptionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shop_subscription_state",
			Help: "Live subscription state (0=offline, 1=subscribing, 2=live, 3=degraded, 4=closed)",
		},
		[]string{"feed"},
	)

	SubscriptionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_subscription_transitions_total",
			Help: "Live subscription state transitions",
		},
		[]string{"feed", "from", "to"},
	)

	FallbackFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_fallback_fetches_total",
			Help: "One-shot fetches issued while the live channel was unavailable",
		},
		[]string{"feed", "result"}, // "success", "error"
	)

	// Store Transport Metrics
	StoreRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_store_requests_total",
			Help: "Requests sent to the remote document store",
		},
		[]string{"operation", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shop_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	SnapshotsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_snapshots_published_total",
			Help: "Snapshots pushed to live subscribers by the store bridge",
		},
		[]string{"collection"},
	)

	// Cache Metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_cache_lookups_total",
			Help: "Product cache lookups",
		},
		[]string{"cache", "result"}, // "hit", "miss"
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
