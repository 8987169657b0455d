// Package metrics exposes the pipeline counters served on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec
	TurnsTotal     *prometheus.CounterVec

	GenerationDuration *prometheus.HistogramVec
	GenerationsTotal   *prometheus.CounterVec

	AudioChunksTotal prometheus.Counter
	AudioBytesTotal  *prometheus.CounterVec

	RecognitionStartsTotal *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voxaura"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of registered websocket sessions",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions by how they ended",
		}, []string{"reason"}),
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Detected user turns",
		}, []string{"source", "outcome"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time from turn to complete response",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"model"}),
		GenerationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Responses by model and result",
		}, []string{"model", "result"}),
		AudioChunksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_sent_total",
			Help:      "Audio chunks delivered to clients",
		}),
		AudioBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Audio bytes by direction",
		}, []string{"direction"}),
		RecognitionStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_starts_total",
			Help:      "Recognition stream start attempts by result code",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.SessionsActive,
		m.SessionsTotal,
		m.TurnsTotal,
		m.GenerationDuration,
		m.GenerationsTotal,
		m.AudioChunksTotal,
		m.AudioBytesTotal,
		m.RecognitionStartsTotal,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordTurn(source, outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) RecordGeneration(model string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "fallback"
	}
	m.GenerationsTotal.WithLabelValues(model, result).Inc()
	m.GenerationDuration.WithLabelValues(model).Observe(d.Seconds())
}

func (m *Metrics) RecordAudioChunk(size int) {
	if m == nil {
		return
	}
	m.AudioChunksTotal.Inc()
	m.AudioBytesTotal.WithLabelValues("out").Add(float64(size))
}

func (m *Metrics) RecordAudioIn(size int) {
	if m == nil {
		return
	}
	m.AudioBytesTotal.WithLabelValues("in").Add(float64(size))
}

func (m *Metrics) RecordRecognitionStart(result string) {
	if m == nil {
		return
	}
	m.RecognitionStartsTotal.WithLabelValues(result).Inc()
}
