// Package metrics holds the Prometheus collectors of the alarm clock.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/alarm-clock/internal/logic"
)

const namespace = "alarmclock"

// unknownType labels events whose type is not one the clock defines, so a
// stray publisher cannot grow the label set.
const unknownType = "unknown"

// Metrics groups the collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	events      *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	commands    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	alarms      prometheus.Counter
	refreshFail prometheus.Counter
	mode        *prometheus.GaugeVec
	queueDepth  prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events handled by the orchestrator.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Malformed events dropped by the orchestrator.",
		}, []string{"type"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands dispatched to peripherals.",
		}, []string{"target", "type"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_transitions_total",
			Help:      "Mode changes.",
		}, []string{"from", "to"}),
		alarms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_fired_total",
			Help:      "Alarms started.",
		}),
		refreshFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "time_refresh_failures_total",
			Help:      "Failed time synchronizations.",
		}),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mode",
			Help:      "1 for the current mode, 0 otherwise.",
		}, []string{"mode"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_queue_depth",
			Help:      "Events waiting for the orchestrator.",
		}),
	}
	m.registry.MustRegister(
		m.events, m.dropped, m.commands, m.transitions,
		m.alarms, m.refreshFail, m.mode, m.queueDepth,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Event counts a handled event.
func (m *Metrics) Event(t logic.EventType) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(t)).Inc()
	if t == logic.EventTimeRefreshFailed {
		m.refreshFail.Inc()
	}
}

// Dropped counts a rejected event.
func (m *Metrics) Dropped(t logic.EventType) {
	if m == nil {
		return
	}
	label := string(t)
	if !t.Known() {
		label = unknownType
	}
	m.dropped.WithLabelValues(label).Inc()
}

// Command counts a dispatched command.
func (m *Metrics) Command(c logic.Command) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(string(c.Target), string(c.Type)).Inc()
}

// Transition records a mode change.
func (m *Metrics) Transition(from, to logic.Mode) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
	if to == logic.ModeAlarming {
		m.alarms.Inc()
	}
	m.SetMode(to)
}

// SetMode sets the mode gauge.
func (m *Metrics) SetMode(mode logic.Mode) {
	if m == nil {
		return
	}
	for _, md := range logic.Modes {
		v := 0.0
		if md == mode {
			v = 1
		}
		m.mode.WithLabelValues(string(md)).Set(v)
	}
}

// QueueDepth records the event backlog.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
