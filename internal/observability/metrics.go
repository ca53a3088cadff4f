package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_lookup"

// Metrics holds the Prometheus counters, histograms, and gauges for weather lookups.
type Metrics struct {
	Orchestrations   *prometheus.CounterVec // labels: intent={search,device_location,reinitialize}, outcome={success,error,idle,skipped}
	ResolverFallback prometheus.Counter
	ForecastDegraded *prometheus.CounterVec // labels: reason={fetch_failed,empty,padded}

	// Provider metrics.
	ProviderRequests *prometheus.CounterVec   // labels: call={current,forecast}, outcome={success,error}
	ProviderDuration *prometheus.HistogramVec // labels: call={current,forecast}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward,reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward,reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward,reverse}

	// State machine metrics.
	StateTransitions *prometheus.CounterVec // labels: state={idle,loading,success,error}
	StaleOutcomes    prometheus.Counter
	Subscribers      prometheus.Gauge
}

// NewMetrics creates and registers all lookup metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.Orchestrations,
		m.ResolverFallback,
		m.ForecastDegraded,
		m.ProviderRequests,
		m.ProviderDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.StateTransitions,
		m.StaleOutcomes,
		m.Subscribers,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Orchestrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orchestrations_total",
			Help:      "Completed lookup runs by intent and outcome.",
		}, []string{"intent", "outcome"}),
		ResolverFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_fallbacks_total",
			Help:      "Text searches that fell back to name-based provider lookup.",
		}),
		ForecastDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_degraded_total",
			Help:      "Daily series synthesized or padded because forecast data was missing.",
		}, []string{"reason"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Weather provider requests by call and outcome.",
		}, []string{"call", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Weather provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"call"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Geocoding API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "App state transitions by target state.",
		}, []string{"state"}),
		StaleOutcomes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_outcomes_total",
			Help:      "Lookup results dropped because a newer request superseded them.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_subscribers",
			Help:      "Active state change subscribers.",
		}),
	}
}
