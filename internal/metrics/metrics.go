// Package metrics exposes Prometheus counters for engines, transfers and
// server connections. Collectors live in the default registry and are
// registered once on first use.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Direction labels.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

var (
	registerOnce sync.Once

	packets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pktlink",
			Subsystem: "engine",
			Name:      "packets_total",
			Help:      "Packets accepted by the engine.",
		},
		[]string{"protocol", "direction"},
	)
	wireBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pktlink",
			Subsystem: "engine",
			Name:      "wire_bytes_total",
			Help:      "Unescaped packet bytes of accepted packets.",
		},
		[]string{"protocol", "direction"},
	)
	retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pktlink",
			Subsystem: "engine",
			Name:      "retries_total",
			Help:      "Retry cycles caused by rejected or invalid packets.",
		},
		[]string{"protocol", "direction"},
	)
	linkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pktlink",
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Failed packet operations by error type.",
		},
		[]string{"protocol", "op", "type"},
	)
	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pktlink",
			Subsystem: "transfer",
			Name:      "files_total",
			Help:      "Completed file transfers.",
		},
		[]string{"direction", "success"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pktlink",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "File bytes moved by successful transfers.",
		},
		[]string{"direction"},
	)
	connections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pktlink",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Accepted connections by transport.",
		},
		[]string{"transport"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(packets, wireBytes, retries, linkErrors, transfers, transferBytes, connections)
	})
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordPacket(protocol, direction string, size int) {
	RegisterMetrics()
	packets.WithLabelValues(protocol, direction).Inc()
	wireBytes.WithLabelValues(protocol, direction).Add(float64(size))
}

func RecordRetry(protocol, direction string) {
	RegisterMetrics()
	retries.WithLabelValues(protocol, direction).Inc()
}

func RecordError(protocol, op, errType string) {
	RegisterMetrics()
	linkErrors.WithLabelValues(protocol, op, errType).Inc()
}

func RecordTransfer(direction string, size int64, success bool) {
	RegisterMetrics()
	transfers.WithLabelValues(direction, strconv.FormatBool(success)).Inc()
	if success {
		transferBytes.WithLabelValues(direction).Add(float64(size))
	}
}

func RecordConnection(transport string) {
	RegisterMetrics()
	connections.WithLabelValues(transport).Inc()
}
