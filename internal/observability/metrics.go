package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveRuns     prometheus.Gauge
	RunEvents      *prometheus.CounterVec
	WSMessages     *prometheus.CounterVec
	ProviderErrors *prometheus.CounterVec
	AudioHandoffs  *prometheus.CounterVec
	StepLatency    prometheus.Histogram

	stages *stepStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveRuns: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Number of runs that have not reached a terminal phase.",
		}),
		RunEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_events_total",
			Help:      "Run lifecycle events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Backend errors by provider and retryability.",
		}, []string{"provider", "retryable"}),
		AudioHandoffs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_handoffs_total",
			Help:      "Audio handoff slot activity by outcome.",
		}, []string{"outcome"}),
		StepLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_latency_seconds",
			Help:      "Wall time of a single dialogue step, dominated by generation.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		stages: newStepStageWindow(256),
	}
}

func (m *Metrics) ObserveStep(d time.Duration) {
	m.StepLatency.Observe(d.Seconds())
	m.stages.Observe(StageStepTotal, float64(d.Milliseconds()))
}

// ObserveStage records a sub-stage duration into the rolling window served
// by the latency debug endpoint.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stages.Observe(stage, float64(d.Milliseconds()))
}

func (m *Metrics) ObserveIndicator(name string) {
	m.stages.ObserveIndicator(name)
}

func (m *Metrics) LatencySnapshot() StepStageSnapshot {
	return m.stages.Snapshot()
}

func (m *Metrics) ResetLatencyWindow() {
	m.stages.Reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
