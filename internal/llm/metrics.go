package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_requests_total",
		Help: "Requests to the language-model endpoint by outcome",
	}, []string{"outcome"})

	metricLatencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "llm_request_latency_ms",
		Help:    "Round trip to the language-model endpoint (ms)",
		Buckets: prometheus.ExponentialBuckets(50, 1.8, 10),
	})
)
