package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CallsActive        prometheus.Gauge
	CallsTotal         *prometheus.CounterVec
	CallDuration       prometheus.Histogram
	Responses          *prometheus.CounterVec
	BargeIns           *prometheus.CounterVec
	TranscriptsDropped *prometheus.CounterVec
	ToolCalls          *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	SessionErrors      *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "rice_gateway"
	}
	registry := prometheus.NewRegistry()

	callsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_active",
			Help:      "Number of media streams currently bridged",
		},
	)

	callsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Calls finished, by final status",
		},
		[]string{"status"},
	)

	callDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Call duration in seconds",
			Buckets:   []float64{10, 30, 60, 120, 180, 300, 600},
		},
	)

	responses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_responses_total",
			Help:      "Model response lifecycle events (created, done, cancelled, unexpected)",
		},
		[]string{"event"},
	)

	bargeIns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_ins_total",
			Help:      "Caller speech starts that interrupted playback, by action",
		},
		[]string{"action"},
	)

	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_dropped_total",
			Help:      "Caller transcripts discarded before reaching the dialogue, by reason",
		},
		[]string{"reason"},
	)

	toolCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool requests by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Dialogue state transitions",
		},
		[]string{"from", "to"},
	)

	sessionErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Session failures by kind",
		},
		[]string{"kind"},
	)

	registry.MustRegister(
		callsActive,
		callsTotal,
		callDuration,
		responses,
		bargeIns,
		dropped,
		toolCalls,
		transitions,
		sessionErrors,
	)

	return &Metrics{
		registry:           registry,
		CallsActive:        callsActive,
		CallsTotal:         callsTotal,
		CallDuration:       callDuration,
		Responses:          responses,
		BargeIns:           bargeIns,
		TranscriptsDropped: dropped,
		ToolCalls:          toolCalls,
		Transitions:        transitions,
		SessionErrors:      sessionErrors,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.CallsActive.Inc()
}

func (m *Metrics) CallEnded(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.CallsActive.Dec()
	m.CallsTotal.WithLabelValues(status).Inc()
	m.CallDuration.Observe(d.Seconds())
}

func (m *Metrics) Response(event string) {
	if m == nil {
		return
	}
	m.Responses.WithLabelValues(event).Inc()
}

func (m *Metrics) BargeIn(action string) {
	if m == nil {
		return
	}
	m.BargeIns.WithLabelValues(action).Inc()
}

func (m *Metrics) TranscriptDropped(reason string) {
	if m == nil {
		return
	}
	m.TranscriptsDropped.WithLabelValues(reason).Inc()
}

// ToolCall matches tools.Client.OnResult.
func (m *Metrics) ToolCall(op, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) SessionError(kind string) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(kind).Inc()
}
