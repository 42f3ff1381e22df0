package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortexvoice_state_transitions_total",
			Help: "Total number of activation state transitions",
		},
		[]string{"from", "to"},
	)

	Engaged = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cortexvoice_engaged",
			Help: "1 while the assistant is engaged in a command cycle",
		},
	)

	Transcriptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortexvoice_transcriptions_total",
			Help: "Transcription attempts by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	TranscriptionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "cortexvoice_transcription_latency_seconds",
			Help: "Backend transcription latency in seconds",
		},
		[]string{"backend"},
	)

	IntentsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortexvoice_intents_routed_total",
			Help: "Commands routed by intent",
		},
		[]string{"intent"},
	)

	HandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortexvoice_handler_failures_total",
			Help: "Handler errors and panics caught by the router",
		},
		[]string{"intent"},
	)

	TasksScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortexvoice_tasks_scheduled_total",
			Help: "Scheduled tasks by kind",
		},
		[]string{"kind"},
	)

	TasksTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortexvoice_tasks_triggered_total",
			Help: "Triggered tasks by kind",
		},
		[]string{"kind"},
	)

	PersistenceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cortexvoice_persistence_failures_total",
			Help: "Task store writes that failed and were kept in memory",
		},
	)
)
