package voice

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_sessions_started_total",
		Help: "Recognition sessions started by the controller",
	})

	metricRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_restarts_total",
		Help: "Automatic recognition restarts scheduled",
	})

	metricRestartsExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_restarts_exhausted_total",
		Help: "Times the restart ceiling was reached and the controller went idle",
	})

	metricTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_triggers_total",
		Help: "Classified final transcripts by outcome (wake, close, dictation)",
	}, []string{"kind"})

	metricBackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_backend_errors_total",
		Help: "Recognition backend errors by kind",
	}, []string{"kind"})

	metricDeadlines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_silence_deadlines_total",
		Help: "Sessions stopped because no classifiable transcript arrived in time",
	})

	metricStaleEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_stale_events_total",
		Help: "Backend or timer events dropped because their session was superseded",
	})

	metricPhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_phase_transitions_total",
		Help: "Controller phase transitions",
	}, []string{"from", "to"})
)
