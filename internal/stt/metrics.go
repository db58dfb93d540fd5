package stt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAudioBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stt_audio_bytes_total",
		Help: "Total audio bytes enqueued to provider",
	})

	metricDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stt_drops_total",
		Help: "Audio frames dropped because no session was live or the send queue was full",
	})

	metricConnectMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stt_connect_ms",
		Help:    "Time to establish provider connection (ms)",
		Buckets: prometheus.ExponentialBuckets(10, 1.8, 10),
	})

	metricConnectErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_connect_errors_total",
		Help: "Provider connection failures by mapped error kind",
	}, []string{"kind"})

	gaugeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stt_sessions_active",
		Help: "Active provider sessions",
	})

	metricFinalEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_final_emitted_total",
		Help: "Final transcripts emitted by source (provider, interim_fallback)",
	}, []string{"source"})

	metricEmptyFinalSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stt_empty_final_skipped_total",
		Help: "Empty final transcripts skipped",
	})

	metricUtteranceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_utterance_events_total",
		Help: "Utterance boundary events observed",
	}, []string{"type"}) // speech_started, utterance_end
)
