// Package metrics provides Prometheus instrumentation for the campaign chat
// server. It exposes gauges for connection and live-session counts, counters
// for message throughput, and a histogram for session connect latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "campaignchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// SessionsLive tracks the number of campaign sessions currently live.
	SessionsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "campaignchat_sessions_live",
		Help: "Current number of live campaign sessions",
	})

	// MessagesTotal counts the total number of messages processed, labeled by
	// type: "sent", "received", or "blocked".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "campaignchat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"}) // type = "sent", "received", "blocked"

	// SessionConnectDuration records the time from session start to live.
	SessionConnectDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "campaignchat_session_connect_seconds",
		Help:    "Time from session start to the live state",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// DiceRollsTotal counts dice rolls published through the API.
	DiceRollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campaignchat_dice_rolls_total",
		Help: "Total number of dice rolls published",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		SessionsLive,
		MessagesTotal,
		SessionConnectDuration,
		DiceRollsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
