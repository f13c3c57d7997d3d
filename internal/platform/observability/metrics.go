package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors on a private registry so
// independent instances (tests, multiple servers) never collide. All methods
// are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	speakRequests  *prometheus.CounterVec
	engineAttempts *prometheus.CounterVec
	engineDuration *prometheus.HistogramVec
	cacheEvents    *prometheus.CounterVec
	cacheEntries   prometheus.Gauge
	cacheBytes     prometheus.Gauge
	ledgerDenials  *prometheus.CounterVec
	characters     *prometheus.CounterVec
	cloneJobs      *prometheus.CounterVec
}

// NewMetrics builds and registers all collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "odiadev_tts"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, route and status",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		speakRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "speak_requests_total",
				Help:      "Speak requests by outcome (ok or error kind) and cache result",
			},
			[]string{"outcome", "cache"},
		),
		engineAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_attempts_total",
				Help:      "Synthesis engine attempts by engine and result",
			},
			[]string{"engine", "result"},
		),
		engineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_duration_seconds",
				Help:      "Synthesis engine call latency in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"engine"},
		),
		cacheEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_events_total",
				Help:      "Audio cache events: hit, miss, shared, evict, store_hit, store_error",
			},
			[]string{"event"},
		),
		cacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Entries currently held in the memory audio cache",
			},
		),
		cacheBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_bytes",
				Help:      "Bytes currently held in the memory audio cache",
			},
		),
		ledgerDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_denials_total",
				Help:      "Authorization denials by reason",
			},
			[]string{"reason"},
		),
		characters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "characters_total",
				Help:      "Characters committed by tier; kind is billed or synthesized",
			},
			[]string{"tier", "kind"},
		),
		cloneJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "clone_jobs_total",
				Help:      "Voice clone jobs by terminal status",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.speakRequests,
		m.engineAttempts,
		m.engineDuration,
		m.cacheEvents,
		m.cacheEntries,
		m.cacheBytes,
		m.ledgerDenials,
		m.characters,
		m.cloneJobs,
	)
	return m
}

// Registry exposes the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, path string, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

func (m *Metrics) RecordSpeak(outcome string, cached bool) {
	if m == nil {
		return
	}
	cache := "miss"
	if cached {
		cache = "hit"
	}
	m.speakRequests.WithLabelValues(outcome, cache).Inc()
}

func (m *Metrics) RecordEngineAttempt(engine, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.engineAttempts.WithLabelValues(engine, result).Inc()
	m.engineDuration.WithLabelValues(engine).Observe(d.Seconds())
}

func (m *Metrics) RecordCacheEvent(event string) {
	if m == nil {
		return
	}
	m.cacheEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetCacheSize(entries int, bytes int64) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(entries))
	m.cacheBytes.Set(float64(bytes))
}

func (m *Metrics) RecordDenial(reason string) {
	if m == nil {
		return
	}
	m.ledgerDenials.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordCharacters(tier string, billed, synthesized int) {
	if m == nil {
		return
	}
	m.characters.WithLabelValues(tier, "billed").Add(float64(billed))
	if synthesized > 0 {
		m.characters.WithLabelValues(tier, "synthesized").Add(float64(synthesized))
	}
}

func (m *Metrics) RecordCloneJob(status string) {
	if m == nil {
		return
	}
	m.cloneJobs.WithLabelValues(status).Inc()
}
