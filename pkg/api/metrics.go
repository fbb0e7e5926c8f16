package api

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssargent/protodemo/pkg/broker"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

var connectionStates = []broker.ConnectionState{
	broker.StateDisconnected,
	broker.StateConnecting,
	broker.StateConnected,
	broker.StateError,
}

// Metrics holds all Prometheus metrics for the API and the session
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Message metrics
	messagesReceivedTotal  prometheus.Counter
	messageBytes           prometheus.Histogram
	messagesPublishedTotal *prometheus.CounterVec
	decodeFailuresTotal    prometheus.Counter
	storedEntries          prometheus.Gauge

	// Connection metrics
	connectionState *prometheus.GaugeVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "protodemo_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "protodemo_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "protodemo_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		messagesReceivedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "protodemo_messages_received_total",
				Help: "Total number of messages received on the topic",
			},
		),

		messageBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "protodemo_message_bytes",
				Help:    "Size of received payloads in bytes",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		messagesPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "protodemo_messages_published_total",
				Help: "Total number of publish attempts",
			},
			[]string{"status"},
		),

		decodeFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "protodemo_decode_failures_total",
				Help: "Total number of received payloads that failed to decode",
			},
		),

		storedEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "protodemo_stored_entries",
				Help: "Number of messages kept in history",
			},
		),

		connectionState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "protodemo_connection_state",
				Help: "1 for the current broker connection state, 0 otherwise",
			},
			[]string{"state"},
		),
	}

	m.StateChanged(broker.StateDisconnected)
	return m
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

// MessageReceived records a received payload
func (m *Metrics) MessageReceived(bytes int) {
	m.messagesReceivedTotal.Inc()
	m.messageBytes.Observe(float64(bytes))
}

// DecodeFailed records a payload that was not a valid record
func (m *Metrics) DecodeFailed() {
	m.decodeFailuresTotal.Inc()
}

// Published records a publish attempt
func (m *Metrics) Published(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.messagesPublishedTotal.WithLabelValues(status).Inc()
}

// StateChanged sets the connection state gauge
func (m *Metrics) StateChanged(state broker.ConnectionState) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.connectionState.WithLabelValues(string(s)).Set(v)
	}
}

// EntriesStored sets the history size gauge
func (m *Metrics) EntriesStored(count int) {
	m.storedEntries.Set(float64(count))
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Capture the status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
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

// Hijack lets websocket upgrades pass through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
