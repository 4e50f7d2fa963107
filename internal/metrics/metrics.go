// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PastesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pastekeep",
		Name:      "pastes_created_total",
		Help:      "Total pastes created.",
	})
	PasteViews = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pastekeep",
		Name:      "paste_views_total",
		Help:      "Total recorded non-owner paste views.",
	})
	PastesBurned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pastekeep",
		Name:      "pastes_burned_total",
		Help:      "Total pastes deleted by the burn-after-read transition.",
	})
	RequestsThrottled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pastekeep",
		Name:      "requests_throttled_total",
		Help:      "Total mutating operations rejected by the rate limiter.",
	})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pastekeep",
		Name:      "cache_hits_total",
		Help:      "Total listing-cache hits.",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pastekeep",
		Name:      "cache_misses_total",
		Help:      "Total listing-cache misses.",
	})
)

// Init registers collectors; call once from main.
func Init() {
	prometheus.MustRegister(PastesCreated, PasteViews, PastesBurned,
		RequestsThrottled, CacheHits, CacheMisses)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
