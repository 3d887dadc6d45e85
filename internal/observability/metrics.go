package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Exchanges        *prometheus.CounterVec
	ModeSwitches     *prometheus.CounterVec
	ProviderErrors   *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	StoreErrors      *prometheus.CounterVec
	Transcriptions   *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
	ActiveUserScopes prometheus.Gauge

	stages *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Exchanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Processed user inputs by reply kind.",
		}, []string{"kind"}),
		ModeSwitches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_switches_total",
			Help:      "Mode switch requests by target mode and outcome.",
		}, []string{"mode", "outcome"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		ProviderLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_ms",
			Help:      "LLM provider call latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 15000, 30000},
		}, []string{"provider"}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "User store failures by operation.",
		}, []string{"op"}),
		Transcriptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Voice transcriptions by outcome.",
		}, []string{"outcome"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ActiveUserScopes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_user_scopes",
			Help:      "Users currently holding or waiting on their exchange lock.",
		}),
		stages: newStageWindow(256),
	}
}

func (m *Metrics) IncExchange(kind string) {
	if m == nil {
		return
	}
	m.Exchanges.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncModeSwitch(mode, outcome string) {
	if m == nil {
		return
	}
	m.ModeSwitches.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) ObserveProvider(provider, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderLatency.WithLabelValues(provider).Observe(float64(d.Milliseconds()))
	if code != "" {
		m.ProviderErrors.WithLabelValues(provider, code).Inc()
	}
	m.stages.Observe(StageProvider, durationMS(d))
}

func (m *Metrics) IncStoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) IncTranscription(outcome string) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) SetActiveUserScopes(n int) {
	if m == nil {
		return
	}
	m.ActiveUserScopes.Set(float64(n))
}

// ObserveStage records one sample for an exchange stage in the rolling
// latency window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stages.Observe(stage, durationMS(d))
}

// ObserveIndicator counts a named event in the latency window.
func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) StageSnapshot() StageSnapshot {
	if m == nil {
		return newStageWindow(1).Snapshot()
	}
	return m.stages.Snapshot()
}

func (m *Metrics) ResetStages() {
	if m == nil {
		return
	}
	m.stages.Reset()
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
