// Package metrics declares the Prometheus collectors of the relay and of the
// whiteboard client. Relay collectors live on the default registry served at
// the relay's /metrics; client collectors live on ClientRegistry, which
// boardctl serves on its own listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay
var (
	RelaySessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "board_relay_sessions",
		Help: "Number of open relay WebSocket sessions",
	})

	RelayPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "board_relay_published_total",
		Help: "Messages accepted for fan-out, by event name",
	}, []string{"event"})

	RelayDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "board_relay_delivered_total",
		Help: "Messages queued onto subscriber sessions",
	})

	RelayRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "board_relay_rejected_total",
		Help: "Frames refused by the relay, by reason",
	}, []string{"reason"})

	RelaySlowSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "board_relay_slow_sessions_total",
		Help: "Sessions closed because their send buffer was full",
	})
)

// ClientRegistry holds the gateway and history collectors.
var ClientRegistry = prometheus.NewRegistry()

var client = promauto.With(ClientRegistry)

// Client
var (
	GatewayInbound = client.NewCounterVec(prometheus.CounterOpts{
		Name: "board_gateway_inbound_total",
		Help: "Inbound room messages applied, by event name",
	}, []string{"event"})

	GatewayOutbound = client.NewCounterVec(prometheus.CounterOpts{
		Name: "board_gateway_outbound_total",
		Help: "Outbound room messages handed to the transport, by event name",
	}, []string{"event"})

	GatewayDropped = client.NewCounterVec(prometheus.CounterOpts{
		Name: "board_gateway_dropped_total",
		Help: "Messages dropped by the gateway, by reason",
	}, []string{"reason"})

	HistoryDepth = client.NewGauge(prometheus.GaugeOpts{
		Name: "board_history_depth",
		Help: "Snapshots held by the most recently updated undo stack",
	})
)

// Drop reasons.
const (
	ReasonMalformed    = "malformed"
	ReasonWrongRoom    = "wrong_room"
	ReasonOwnRequest   = "own_request"
	ReasonOwnCursor    = "own_cursor"
	ReasonOwnEcho      = "own_echo"
	ReasonDisconnected = "disconnected"
	ReasonTransport    = "transport_error"
	ReasonUnknownTopic = "unknown_topic"
)
