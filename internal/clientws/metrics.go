package clientws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gaugeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clientws_connections_active",
		Help: "Connected pages",
	})

	metricMessagesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientws_messages_in_total",
		Help: "JSON frames received from pages by type",
	}, []string{"type"})

	metricMessagesOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clientws_messages_out_total",
		Help: "JSON frames sent to pages",
	})

	metricInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clientws_messages_invalid_total",
		Help: "Frames that failed to decode",
	})

	metricRelayStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clientws_relay_stale_total",
		Help: "Recognition events for a seq that is no longer live",
	})
)
