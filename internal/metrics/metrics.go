// Package metrics exposes Prometheus collectors for audits and the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crackomatic/crackomatic/internal/domain"
)

const namespace = "crackomatic"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	AuditsTotal      *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
	ActiveState      prometheus.Gauge
	EngineSpeed      prometheus.Gauge
	EngineProgress   prometheus.Gauge
	EngineGuesses    prometheus.Gauge
	SchedulerErrors  prometheus.Counter
	Notifications    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AuditsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audits_total",
			Help:      "Audits that reached a terminal state, by outcome",
		}, []string{"outcome"}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Audit state transitions, by target state",
		}, []string{"state"}),
		ActiveState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_state",
			Help:      "Numeric state of the active audit, 0 when idle",
		}),
		EngineSpeed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_speed_hashes_per_second",
			Help:      "Last reported recovery engine speed",
		}),
		EngineProgress: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_progress_percent",
			Help:      "Last reported recovery engine progress",
		}),
		EngineGuesses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_guesses",
			Help:      "Secrets recovered so far by the running engine",
		}),
		SchedulerErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_errors_total",
			Help:      "Scheduler ticks that failed",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification mails, by audience and result",
		}, []string{"audience", "result"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveState records a transition of the active audit.
func (m *Metrics) ObserveState(s domain.State) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(s.String()).Inc()
	if s.Terminal() {
		m.AuditsTotal.WithLabelValues(s.String()).Inc()
		m.ActiveState.Set(0)
		m.ObserveProgress(domain.Progress{})
		return
	}
	m.ActiveState.Set(float64(s))
}

// ObserveProgress records a running engine's status.
func (m *Metrics) ObserveProgress(p domain.Progress) {
	if m == nil {
		return
	}
	m.EngineSpeed.Set(p.Speed)
	m.EngineProgress.Set(p.Percent)
	m.EngineGuesses.Set(float64(p.Guesses))
}

// IncSchedulerErrors counts a failed scheduler tick.
func (m *Metrics) IncSchedulerErrors() {
	if m == nil {
		return
	}
	m.SchedulerErrors.Inc()
}

// ObserveNotification counts one mail to users or admins.
func (m *Metrics) ObserveNotification(audience string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.Notifications.WithLabelValues(audience, result).Inc()
}
