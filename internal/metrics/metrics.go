// Package metrics holds the Prometheus collectors for the chat pipeline,
// the database collaborators and the HTTP surface.
//
// Every recording method is safe to call on a nil *Metrics, so components
// can be built without instrumentation in tests and tools.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/genegpt-server/internal/domain"
)

const namespace = "genegpt"

var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// Metrics owns a private registry so that several instances can coexist in
// one process (tests build one per case).
type Metrics struct {
	registry *prometheus.Registry

	ChatRequestsTotal    *prometheus.CounterVec
	ClassificationsTotal *prometheus.CounterVec
	FetchTotal           *prometheus.CounterVec
	FetchDuration        *prometheus.HistogramVec
	LLMRequestsTotal     *prometheus.CounterVec
	LLMDuration          *prometheus.HistogramVec
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     prometheus.Counter
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ChatRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Processed chat requests by outcome.",
		}, []string{"outcome"}),
		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classifier decisions by decision path and routed database.",
		}, []string{"decision", "db_type"}),
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Database fetches by database and success.",
		}, []string{"db_type", "success"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Database fetch latency.",
			Buckets:   defaultBuckets,
		}, []string{"db_type"}),
		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Language model calls by operation and success.",
		}, []string{"operation", "success"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_duration_seconds",
			Help:      "Language model call latency.",
			Buckets:   defaultBuckets,
		}, []string{"operation"}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Fetch cache hits by tier.",
		}, []string{"tier"}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Fetch cache misses.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   defaultBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.ChatRequestsTotal,
		m.ClassificationsTotal,
		m.FetchTotal,
		m.FetchDuration,
		m.LLMRequestsTotal,
		m.LLMDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: namespace}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) ObserveChat(outcome string) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveClassification(decision string, db domain.DBType) {
	if m == nil {
		return
	}
	m.ClassificationsTotal.WithLabelValues(decision, string(db)).Inc()
}

func (m *Metrics) ObserveFetch(db domain.DBType, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(string(db), strconv.FormatBool(success)).Inc()
	m.FetchDuration.WithLabelValues(string(db)).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLLM(operation string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
	m.LLMDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheHit(tier string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
