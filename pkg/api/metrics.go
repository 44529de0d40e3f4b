package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ssargent/bubo/pkg/store"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API. Each instance owns its
// registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Store operation metrics
	storeOperationsTotal   *prometheus.CounterVec
	storeOperationDuration *prometheus.HistogramVec

	// Store state
	attrSetsTotal  prometheus.Gauge
	logSizeBytes   prometheus.Gauge
	stringsTotal   *prometheus.GaugeVec
	hashSetSlots   prometheus.Gauge
	hashSetBytes   *prometheus.GaugeVec
	tombstoneSlots prometheus.Gauge

	authRequestsTotal *prometheus.CounterVec
	healthChecksTotal *prometheus.CounterVec
}

// NewMetrics creates a registry and registers all metrics with it
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bubo_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bubo_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bubo_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		storeOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bubo_store_operations_total",
				Help: "Total number of attribute store operations",
			},
			[]string{"operation", "status"},
		),
		storeOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bubo_store_operation_duration_seconds",
				Help:    "Attribute store operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		attrSetsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bubo_attr_sets_total",
			Help: "Number of distinct attribute sets in the store",
		}),
		logSizeBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bubo_log_size_bytes",
			Help: "Size of the operation log in bytes",
		}),
		stringsTotal: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bubo_strings_total",
				Help: "Number of interned strings",
			},
			[]string{"kind"},
		),
		hashSetSlots: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bubo_hash_set_slots",
			Help: "Number of slots in the hash set table",
		}),
		hashSetBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bubo_hash_set_bytes",
				Help: "Memory held by the hash set",
			},
			[]string{"area"},
		),
		tombstoneSlots: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bubo_hash_set_tombstones",
			Help: "Erased hash set slots not yet reclaimed",
		}),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bubo_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),
		healthChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bubo_health_checks_total",
				Help: "Total number of health checks",
			},
			[]string{"status"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordStoreOperation records an attribute store operation
func (m *Metrics) RecordStoreOperation(operation string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	m.storeOperationsTotal.WithLabelValues(operation, status).Inc()
	m.storeOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateStoreStats updates the store gauges
func (m *Metrics) UpdateStoreStats(stats *store.StoreStats) {
	m.attrSetsTotal.Set(float64(stats.Entries))
	m.logSizeBytes.Set(float64(stats.LogSize))
	m.stringsTotal.WithLabelValues("tag").Set(float64(stats.Attrs.Strings.Tags))
	m.stringsTotal.WithLabelValues("value").Set(float64(stats.Attrs.Strings.Values))

	hs := stats.Attrs.HashSet
	m.hashSetSlots.Set(float64(hs.SpineLen))
	m.tombstoneSlots.Set(float64(hs.Tombstones))
	m.hashSetBytes.WithLabelValues("table").Set(float64(hs.HTBytes))
	m.hashSetBytes.WithLabelValues("blob_allocated").Set(float64(hs.BlobAllocatedBytes))
	m.hashSetBytes.WithLabelValues("blob_used").Set(float64(hs.BlobUsedBytes))
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.authRequestsTotal.WithLabelValues(status).Inc()
}

// RecordHealthCheck records a health check
func (m *Metrics) RecordHealthCheck(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.healthChecksTotal.WithLabelValues(status).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware instruments the authentication middleware
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get("X-API-Key") != ""

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
