// Package monitoring - metrics.go exports Prometheus metrics.
//
// DESIGN: Every worker owns a private registry served at /metrics:
//   - requests_total{outcome}:          Finished requests by outcome
//   - request_duration_seconds{outcome}: End-to-end latency
//   - bytes_original_total/bytes_saved_total: Compression volume
//   - encode_attempts_total{format}:    Codec calls, fallback included
//   - fetch_failures_total, codec_failures_total, admission_rejected_total
//   - admission_active/admission_queued: Live admission gauges
//
// Stats() mirrors the headline counters for the /healthz document.
package monitoring

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "suko"

// Metrics collects operational metrics for one worker.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	bytesOriginal     prometheus.Counter
	bytesSaved        prometheus.Counter
	encodeAttempts    *prometheus.CounterVec
	fetchFailures     prometheus.Counter
	codecFailures     prometheus.Counter
	admissionRejected prometheus.Counter
	reclaimHints      prometheus.Counter

	requests   atomic.Int64
	served     atomic.Int64
	redirected atomic.Int64
	savedTotal atomic.Int64
	rejected   atomic.Int64
}

// NewMetrics creates the metric set on a fresh registry, including Go runtime
// and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Finished requests by outcome.",
		}, []string{"outcome"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency by outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),
		bytesOriginal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_original_total",
			Help:      "Upstream image bytes fetched.",
		}),
		bytesSaved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_saved_total",
			Help:      "Bytes saved on served images.",
		}),
		encodeAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_attempts_total",
			Help:      "Codec encode calls by output format.",
		}, []string{"format"}),
		fetchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Upstream fetches that failed after retries.",
		}),
		codecFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codec_failures_total",
			Help:      "Images the codec could not process.",
		}),
		admissionRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejected_total",
			Help:      "Requests rejected because the admission queue was full.",
		}),
		reclaimHints: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reclaim_hints_total",
			Help:      "Memory reclamation hints issued.",
		}),
	}
}

// RegisterAdmission exposes live admission counts as gauges.
func (m *Metrics) RegisterAdmission(active, queued func() int) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admission_active",
			Help:      "Requests holding an admission slot.",
		}, func() float64 { return float64(active()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admission_queued",
			Help:      "Requests waiting for an admission slot.",
		}, func() float64 { return float64(queued()) }),
	)
}

// RecordRequest records a finished request.
func (m *Metrics) RecordRequest(outcome Outcome, latency time.Duration) {
	m.requestsTotal.WithLabelValues(string(outcome)).Inc()
	m.requestDuration.WithLabelValues(string(outcome)).Observe(latency.Seconds())
	m.requests.Add(1)
	switch outcome {
	case OutcomeServed:
		m.served.Add(1)
	case OutcomeRedirected:
		m.redirected.Add(1)
	case OutcomeRejected:
		m.rejected.Add(1)
		m.admissionRejected.Inc()
	}
}

// RecordCompression records the volume of one compressed request.
func (m *Metrics) RecordCompression(original, saved int, served bool) {
	m.bytesOriginal.Add(float64(original))
	if served && saved > 0 {
		m.bytesSaved.Add(float64(saved))
		m.savedTotal.Add(int64(saved))
	}
}

// RecordEncode records one codec call.
func (m *Metrics) RecordEncode(format string) {
	m.encodeAttempts.WithLabelValues(format).Inc()
}

// RecordFetchFailure records an upstream fetch that gave up.
func (m *Metrics) RecordFetchFailure() { m.fetchFailures.Inc() }

// RecordCodecFailure records a codec error.
func (m *Metrics) RecordCodecFailure() { m.codecFailures.Inc() }

// RecordReclaimHint records a memory reclamation hint.
func (m *Metrics) RecordReclaimHint() { m.reclaimHints.Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Stats returns the headline counters.
func (m *Metrics) Stats() map[string]int64 {
	return map[string]int64{
		"requests":    m.requests.Load(),
		"served":      m.served.Load(),
		"redirected":  m.redirected.Load(),
		"rejected":    m.rejected.Load(),
		"bytes_saved": m.savedTotal.Load(),
	}
}
