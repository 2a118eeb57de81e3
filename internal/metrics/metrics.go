// Package metrics exposes Prometheus collectors for the transport layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relaynet",
		Name:      "active_sessions",
		Help:      "Number of sessions in the Connected partition.",
	})

	HandshakingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relaynet",
		Name:      "handshaking_sessions",
		Help:      "Number of sessions in the Handshaking partition.",
	})

	BatchesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynet",
		Name:      "batches_sent_total",
		Help:      "Total frame batches sent.",
	})

	BatchesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynet",
		Name:      "batches_received_total",
		Help:      "Total frame batches received, including duplicates.",
	})

	DuplicateBatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynet",
		Name:      "duplicate_batches_total",
		Help:      "Total frame batches discarded as duplicates.",
	})

	Retransmits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynet",
		Name:      "retransmits_total",
		Help:      "Total batches retransmitted in response to a NAK.",
	})

	AcksFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynet",
		Name:      "acks_flushed_total",
		Help:      "Total ACK datagrams flushed.",
	})

	NaksFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynet",
		Name:      "naks_flushed_total",
		Help:      "Total NAK datagrams flushed.",
	})

	FragmentReassemblies = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynet",
		Name:      "fragment_reassemblies_total",
		Help:      "Total compound messages fully reassembled from fragments.",
	})

	ForwardTimeoutKicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynet",
		Name:      "forward_timeout_kicks_total",
		Help:      "Total sessions kicked for failing to drain their inbox before the forward deadline.",
	})

	ProtocolViolationKicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relaynet",
		Name:      "protocol_violation_kicks_total",
		Help:      "Total sessions kicked for a protocol violation.",
	})
)

// Serve starts a dedicated HTTP server exposing /metrics, bound
// independently of the game socket.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
