// Package metrics provides Prometheus instrumentation for the payment service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu           sync.RWMutex
	enabled      bool
	serviceName  string
	registerOnce sync.Once

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Checkout domain metrics
	checkoutCreatedTotal *prometheus.CounterVec
	checkoutResultTotal  *prometheus.CounterVec
	pollTotal            *prometheus.CounterVec

	// Ledger client metrics
	rpcRequestsTotal *prometheus.CounterVec
	rpcDuration      *prometheus.HistogramVec
)

// Init initializes the metrics system. Collectors are registered once per
// process; later calls only toggle recording.
func Init(enabledFlag bool, svcName string) {
	mu.Lock()
	enabled = enabledFlag
	serviceName = svcName
	mu.Unlock()

	if !enabledFlag {
		return
	}

	registerOnce.Do(register)
}

func register() {
	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	checkoutCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solanapay_checkout_created_total",
			Help: "Total number of checkout sessions created",
		},
		[]string{"kind"},
	)

	checkoutResultTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solanapay_checkout_result_total",
			Help: "Total number of checkout sessions that reached a final state",
		},
		[]string{"kind", "result"},
	)

	pollTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solanapay_poll_total",
			Help: "Total number of find and validate attempts by outcome",
		},
		[]string{"outcome"},
	)

	rpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solanapay_rpc_requests_total",
			Help: "Total number of ledger RPC calls",
		},
		[]string{"method", "status"},
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solanapay_rpc_duration_seconds",
			Help:    "Ledger RPC latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !Enabled() {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	mu.RLock()
	defer mu.RUnlock()
	return serviceName
}
