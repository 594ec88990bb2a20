package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fintrack/fintrack/internal/domain"
)

var (
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fintrack_request_latency_seconds",
		Help:    "Latency of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fintrack_request_total",
		Help: "Total HTTP requests processed",
	}, []string{"method", "path", "status_code"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fintrack_active_sessions",
		Help: "Number of authenticated sessions",
	})

	activeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fintrack_active_clients",
		Help: "Number of active clients in the system",
	})

	premiumClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fintrack_premium_clients",
		Help: "Number of clients with premium access",
	})

	basicClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fintrack_basic_clients",
		Help: "Number of clients with basic access",
	})

	provisionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fintrack_provision_duration_seconds",
		Help:    "Duration of client provisioning attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	tierTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fintrack_tier_transitions_total",
		Help: "Count of tier transitions by target and result",
	}, []string{"target", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	requestLatency.WithLabelValues(method, path).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, path, status).Inc()
}

// ObserveProvision records the duration of a provisioning attempt with a result label.
func ObserveProvision(result string, duration time.Duration) {
	provisionDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveTierTransition counts a transition attempt. result is one of
// "applied", "missing_tier" or "error".
func ObserveTierTransition(target, result string) {
	tierTransitions.WithLabelValues(target, result).Inc()
}

// SetClientStatistics publishes a statistics snapshot into the client gauges.
func SetClientStatistics(stats domain.ClientStatistics) {
	activeClients.Set(float64(stats.Active))
	premiumClients.Set(float64(stats.Premium))
	basicClients.Set(float64(stats.Basic))
}

// SetActiveSessions sets the session gauge to a specific count.
func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}
