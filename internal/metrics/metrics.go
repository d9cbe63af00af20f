package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"indian-stock-api/internal/brokererr"
)

var (
	// Network client metrics
	FetchCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockapi_fetch_total",
			Help: "Total number of broker HTTP calls",
		},
		[]string{"broker", "method", "outcome"}, // outcome: ok|<error kind>
	)

	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockapi_fetch_duration_seconds",
			Help:    "Broker HTTP call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"broker", "method"},
	)

	FetchRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockapi_fetch_retries_total",
			Help: "Total number of transport-level retries",
		},
		[]string{"method", "status"},
	)

	// Expiry discovery metrics
	DiscoveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockapi_discovery_attempts_total",
			Help: "Total number of expiry discovery source calls",
		},
		[]string{"root", "source", "outcome"}, // source: primary|fallback, outcome: success|error
	)

	DiscoveryAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockapi_discovery_available",
			Help: "1 if the root has expiry dates for today, 0 otherwise",
		},
		[]string{"root"},
	)

	// Cache metrics
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockapi_cache_lookups_total",
			Help: "Total number of day-scoped cache lookups",
		},
		[]string{"cache", "result"}, // result: hit|miss
	)

	// Token metrics
	TokensLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockapi_tokens_loaded",
			Help: "Number of canonical equity records per exchange",
		},
		[]string{"broker", "exchange"},
	)
)

var registerOnce sync.Once

// Init registers all metrics with Prometheus
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(FetchCalls)
		prometheus.MustRegister(FetchDuration)
		prometheus.MustRegister(FetchRetries)

		prometheus.MustRegister(DiscoveryAttempts)
		prometheus.MustRegister(DiscoveryAvailable)

		prometheus.MustRegister(CacheLookups)
		prometheus.MustRegister(TokensLoaded)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordFetch records one broker HTTP call
func RecordFetch(broker, method string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if kind, ok := brokererr.KindOf(err); ok {
			outcome = string(kind)
		}
	}

	FetchCalls.WithLabelValues(broker, method, outcome).Inc()
	FetchDuration.WithLabelValues(broker, method).Observe(duration.Seconds())
}

// RecordDiscoveryAttempt records one primary or fallback source call
func RecordDiscoveryAttempt(root, source string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	DiscoveryAttempts.WithLabelValues(root, source, outcome).Inc()
}

// RecordCacheLookup records a day-scoped cache hit or miss
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(cache, result).Inc()
}
