package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: длительность одного тика контроля (включая capability-вызовы)
	TickDuration prometheus.Histogram

	// Traffic: сколько договоров сейчас под наблюдением
	ActiveAgreements prometheus.Gauge

	// Сколько раундов занял торг (по типам событий)
	NegotiationRounds *prometheus.HistogramVec

	// Исходы: negotiated / imposed / blocked
	AgreementsTotal *prometheus.CounterVec

	// Нарушения и добровольные завершения
	ViolationsTotal  prometheus.Counter
	CompletionsTotal prometheus.Counter

	// Errors: отказавшие принуждения
	EnforcementFailures prometheus.Counter

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Журнал: заполненность буфера (backpressure)
	JournalBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		TickDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "focus_tick_duration_seconds",
			Help:    "Histogram of compliance tick latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),

		ActiveAgreements: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "focus_active_agreements",
			Help: "Number of agreements currently tracked.",
		}),

		NegotiationRounds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "focus_negotiation_rounds",
			Help:    "Rounds taken to reach an agreement.",
			Buckets: []float64{0, 1, 2, 3, 4},
		}, []string{"event_type"}),

		AgreementsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "focus_agreements_total",
			Help: "Total number of agreements by outcome.",
		}, []string{"outcome"}), // negotiated, imposed, blocked

		ViolationsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "focus_violations_total",
			Help: "Total number of agreement violations.",
		}),

		CompletionsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "focus_completions_total",
			Help: "Total number of voluntarily completed agreements.",
		}),

		EnforcementFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "focus_enforcement_failures_total",
			Help: "Enforcement actions that exhausted all retries.",
		}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "focus_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"capability"}),

		JournalBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "focus_journal_buffer_utilization",
			Help: "Current number of records in journal buffer.",
		}),
	}
}
