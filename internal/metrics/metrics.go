// Package metrics provides Prometheus instrumentation for the support-chat
// synchronization layer. It exposes a gauge for the live connection state,
// counters for reconnection attempts and message merge outcomes, and a
// histogram for REST request latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connected reports the live channel state: 1 while connected, 0 otherwise.
	Connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "supportchat_connected",
		Help: "Whether the live chat channel is currently connected (1) or not (0)",
	})

	// ReconnectsTotal counts reconnection attempts after unexpected drops.
	ReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_reconnects_total",
		Help: "Total number of reconnection attempts scheduled after a dropped connection",
	})

	// MessagesMerged counts messages accepted into room histories, labeled by
	// source: "live", "history", or "fallback".
	MessagesMerged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_messages_merged_total",
		Help: "Total number of messages merged into room histories",
	}, []string{"source"}) // source = "live", "history", "fallback"

	// MessagesDeduplicated counts incoming messages dropped because their ID
	// was already present.
	MessagesDeduplicated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "supportchat_messages_deduplicated_total",
		Help: "Total number of incoming messages discarded as duplicates",
	})

	// SendsTotal counts outgoing message attempts, labeled by the path that
	// carried them: "socket" or "rest".
	SendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supportchat_sends_total",
		Help: "Total number of outgoing message sends by delivery path",
	}, []string{"path"}) // path = "socket", "rest"

	// RequestLatency records chat REST API request latency in seconds.
	RequestLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "supportchat_rest_request_latency_seconds",
		Help:    "Chat REST API request latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
)

func init() {
	prometheus.MustRegister(
		Connected,
		ReconnectsTotal,
		MessagesMerged,
		MessagesDeduplicated,
		SendsTotal,
		RequestLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
