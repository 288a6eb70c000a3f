package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — набор Prometheus метрик движка (§2.2 "HTTP mux: /healthz +
// /metrics"). Значения экспортируются через промхендлер, который хост
// навешивает на свой http.ServeMux.
type Metrics struct {
	AttemptsTotal   *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
	OutcomesTotal   *prometheus.CounterVec
	DLQSendsTotal   *prometheus.CounterVec
	ExecutionMillis *prometheus.HistogramVec
}

// NewMetrics регистрирует и возвращает Metrics в переданном реестре.
// Передайте prometheus.NewRegistry() для изоляции в тестах либо
// prometheus.DefaultRegisterer в проде.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskengine",
			Name:      "attempts_total",
			Help:      "Total number of task execution attempts, by task type.",
		}, []string{"task_type"}),

		RetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskengine",
			Name:      "retries_total",
			Help:      "Total number of retry attempts, by task type.",
		}, []string{"task_type"}),

		OutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskengine",
			Name:      "outcomes_total",
			Help:      "Total number of terminal outcomes, by task type and final status.",
		}, []string{"task_type", "status"}),

		DLQSendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taskengine",
			Name:      "dlq_sends_total",
			Help:      "Total number of tasks moved to the dead-letter sink, by task type.",
		}, []string{"task_type"}),

		ExecutionMillis: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taskengine",
			Name:      "execution_duration_ms",
			Help:      "Duration of a single handler execution attempt, in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"task_type"}),
	}
}

// RecordAttempt увеличивает счётчик попыток выполнения.
func (m *Metrics) RecordAttempt(taskType string) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(taskType).Inc()
}

// RecordRetry увеличивает счётчик повторов.
func (m *Metrics) RecordRetry(taskType string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(taskType).Inc()
}

// RecordOutcome увеличивает счётчик финальных исходов по статусу.
func (m *Metrics) RecordOutcome(taskType, status string) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(taskType, status).Inc()
}

// RecordDLQSend увеличивает счётчик отправок в dead-letter.
func (m *Metrics) RecordDLQSend(taskType string) {
	if m == nil {
		return
	}
	m.DLQSendsTotal.WithLabelValues(taskType).Inc()
}

// ObserveExecutionMillis записывает длительность попытки выполнения.
func (m *Metrics) ObserveExecutionMillis(taskType string, ms float64) {
	if m == nil {
		return
	}
	m.ExecutionMillis.WithLabelValues(taskType).Observe(ms)
}
