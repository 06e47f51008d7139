package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"

	"github.com/xela07ax/a11y-auditor/internal/generation"
)

type Metrics struct {
	// Latency: полный прогон аудита по терминальному статусу
	AuditDuration *prometheus.HistogramVec

	// Traffic: аудиты по исходу и причине отказа
	AuditsTotal *prometheus.CounterVec

	// Длительность отдельных этапов пайплайна
	StageDuration *prometheus.HistogramVec

	// Исходы вызовов генерации: ok / raw / fallback
	GenerationOutcomes *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - закрыт, 1 - полуоткрыт, 2 - открыт)
	CircuitBreakerState *prometheus.GaugeVec

	// Сколько запросов страницы отсекла политика загрузки ресурсов
	BlockedResources prometheus.Counter

	// Аудиты, выполняющиеся прямо сейчас
	InFlight prometheus.Gauge

	// Journal: заполненность буфера (backpressure)
	JournalBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object: без реестра метрики пишутся в локальный, никуда не подключенный
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		AuditDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a11y_audit_duration_seconds",
			Help:    "Histogram of full audit run latencies.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120},
		}, []string{"status"}),

		AuditsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "a11y_audits_total",
			Help: "Total number of finished audits by status and failure reason.",
		}, []string{"status", "reason"}), // reason: validation, navigation, scan, persistence, internal

		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "a11y_stage_duration_seconds",
			Help:    "Histogram of pipeline stage latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"stage"}),

		GenerationOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "a11y_generation_outcomes_total",
			Help: "Text generation results by request kind and outcome.",
		}, []string{"kind", "outcome"}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "a11y_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"breaker"}),

		BlockedResources: f.NewCounter(prometheus.CounterOpts{
			Name: "a11y_blocked_resources_total",
			Help: "Page requests blocked by the resource loading policy.",
		}),

		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "a11y_audits_in_flight",
			Help: "Audits currently being processed.",
		}),

		JournalBufferFill: f.NewGauge(prometheus.GaugeOpts{
			Name: "a11y_journal_buffer_utilization",
			Help: "Current number of events in journal buffer.",
		}),
	}
}

// ObserveGeneration подходит как generation.Observer.
func (m *Metrics) ObserveGeneration(kind string, o generation.Outcome) {
	m.GenerationOutcomes.WithLabelValues(kind, string(o)).Inc()
}

// ObserveBreaker подходит как generation.BreakerObserver.
func (m *Metrics) ObserveBreaker(name string, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

// ObserveJournalBuffer подходит для journal.WithBufferGauge.
func (m *Metrics) ObserveJournalBuffer(n int) {
	m.JournalBufferFill.Set(float64(n))
}
