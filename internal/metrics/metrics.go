package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "signaldesk"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code.",
		},
		[]string{"endpoint", "status"},
	)

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_admissions_total",
			Help:      "Admin signal submissions by outcome.",
		},
		[]string{"result"},
	)

	accessChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_checks_total",
			Help:      "Signal access checks by outcome.",
		},
		[]string{"result"},
	)

	broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_deliveries_total",
			Help:      "Signal fan-out attempts per recipient by outcome.",
		},
		[]string{"outcome"},
	)

	broadcastQueue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broadcast_queue_depth",
			Help:      "Signals waiting for fan-out.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, admissions, accessChecks, broadcasts, broadcastQueue)
	})
}

// IncHTTP increments the counter for an endpoint and status code.
func IncHTTP(endpoint string, status int) {
	httpRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func IncAdmission(result string) {
	admissions.WithLabelValues(result).Inc()
}

func IncAccess(result string) {
	accessChecks.WithLabelValues(result).Inc()
}

func IncBroadcast(outcome string) {
	broadcasts.WithLabelValues(outcome).Inc()
}

func SetBroadcastQueue(depth int) {
	broadcastQueue.Set(float64(depth))
}
