// Package gateway connects a whiteboard replica to a room on the broadcast
// bus: it publishes local mutations, applies inbound ones and runs the
// join-time reconciliation handshake.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"collab-board/internal/board"
	"collab-board/internal/ids"
	"collab-board/internal/metrics"
	"collab-board/internal/middleware"
	"collab-board/internal/models"
)

/*
LEARNING: JOIN / RECONNECT STATE MACHINE

  disconnected ──Join──▶ connecting ──connect ack──▶ awaiting-reconciliation
        ▲                                                 │ subscribe all topics,
        │                                                 │ then publish request-state
        └──── connection lost / Leave ◀──── steady ◀──────┘

Any connected peer that sees a request-state from ANOTHER client answers with
a state-sync of its whole document. Nobody answers their own request, so a
client joining with an empty board can never wipe a populated room. There is
no timeout: an empty room simply never answers.

Each Join bumps a generation counter. Callbacks from a transport that was
torn down carry an old generation and are ignored.
*/

// ErrNotConnected is returned by transports asked to publish while offline.
var ErrNotConnected = errors.New("not connected")

// State is the gateway's position in the join/reconnect state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingReconciliation
	StateSteady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingReconciliation:
		return "connected-awaiting-reconciliation"
	case StateSteady:
		return "connected-steady"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Connected reports whether outbound messages are sent in this state.
func (s State) Connected() bool {
	return s == StateAwaitingReconciliation || s == StateSteady
}

// Handler receives callbacks from a Transport. Callbacks may arrive on any
// goroutine.
type Handler interface {
	OnConnect()
	OnConnectionLost(err error)
	OnMessage(topic string, payload []byte)
}

// Transport is one connection to the broadcast bus. Topics passed in and out
// are bare "rooms/{roomId}/{event}" names; transports add their own prefixes.
type Transport interface {
	// Connect starts connecting and returns; OnConnect fires once the bus
	// acknowledges. After a loss the transport reconnects on its own and
	// fires OnConnect again.
	Connect(ctx context.Context, h Handler) error
	Subscribe(topic string) error
	Publish(topic string, payload []byte) error
	Close() error
}

// Dialer returns a fresh, unconnected transport.
type Dialer func() Transport

// Replica is the document the gateway feeds. Implementations serialise
// access themselves.
type Replica interface {
	ApplyRemote(ev board.Event)
	Snapshot() models.Snapshot
	ClearCursors()
}

type Gateway struct {
	clientID string
	dial     Dialer
	replica  Replica
	logger   zerolog.Logger

	mu         sync.Mutex
	state      State
	roomID     string
	transport  Transport
	generation uint64
	reconciled bool
}

// New returns a disconnected gateway for the client identity clientID.
func New(clientID string, dial Dialer, replica Replica, logger zerolog.Logger) *Gateway {
	return &Gateway{
		clientID: clientID,
		dial:     dial,
		replica:  replica,
		logger:   logger.With().Str("component", "gateway").Str("client_id", clientID).Logger(),
	}
}

func (g *Gateway) ClientID() string { return g.clientID }

func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gateway) RoomID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roomID
}

// Join tears down any current connection and connects to roomID. A blank
// room id is replaced by a generated one, which is returned.
func (g *Gateway) Join(ctx context.Context, roomID string) (string, error) {
	if roomID == "" {
		roomID = ids.NewRoomID()
	}

	ctx, span := middleware.StartSpan(ctx, "Gateway.Join",
		attribute.String("room.id", roomID),
		attribute.String("client.id", g.clientID),
	)
	defer span.End()

	t := g.dial()

	g.mu.Lock()
	old := g.transport
	g.generation++
	gen := g.generation
	g.transport = t
	g.roomID = roomID
	g.state = StateConnecting
	g.reconciled = false
	g.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			g.logger.Debug().Err(err).Msg("closing previous transport")
		}
		g.replica.ClearCursors()
	}

	g.logger.Info().Str("room_id", roomID).Msg("joining room")

	if err := t.Connect(ctx, &connHandler{g: g, gen: gen}); err != nil {
		g.mu.Lock()
		if g.generation == gen {
			g.state = StateDisconnected
			g.transport = nil
		}
		g.mu.Unlock()
		middleware.AddSpanError(ctx, err)
		return roomID, fmt.Errorf("connect to room %s: %w", roomID, err)
	}
	return roomID, nil
}

// Leave announces that our cursor is gone and closes the connection.
func (g *Gateway) Leave() error {
	g.mu.Lock()
	t, room, state := g.transport, g.roomID, g.state
	g.generation++
	g.transport = nil
	g.state = StateDisconnected
	g.reconciled = false
	g.mu.Unlock()

	g.replica.ClearCursors()
	if t == nil {
		return nil
	}
	if state.Connected() {
		g.send(t, room, board.CursorLeft(g.clientID))
	}
	g.logger.Info().Str("room_id", room).Msg("left room")
	return t.Close()
}

// Publish sends ev to the current room. While not connected the message is
// dropped, not queued, and Publish returns false.
func (g *Gateway) Publish(ev board.Event) bool {
	g.mu.Lock()
	t, room, state := g.transport, g.roomID, g.state
	g.mu.Unlock()

	if t == nil || !state.Connected() {
		metrics.GatewayDropped.WithLabelValues(metrics.ReasonDisconnected).Inc()
		return false
	}
	return g.send(t, room, ev)
}

func (g *Gateway) send(t Transport, room string, ev board.Event) bool {
	payload, err := Encode(Envelope{RoomID: room, OriginID: g.clientID}, ev)
	if err != nil {
		g.logger.Error().Err(err).Str("event", string(ev.Kind)).Msg("encoding outbound event")
		metrics.GatewayDropped.WithLabelValues(metrics.ReasonMalformed).Inc()
		return false
	}
	if err := t.Publish(models.RoomTopic(room, ev.Kind), payload); err != nil {
		g.logger.Debug().Err(err).Str("event", string(ev.Kind)).Msg("publish dropped")
		metrics.GatewayDropped.WithLabelValues(metrics.ReasonTransport).Inc()
		return false
	}
	metrics.GatewayOutbound.WithLabelValues(string(ev.Kind)).Inc()
	return true
}

func (g *Gateway) current(gen uint64) (Transport, string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.generation || g.transport == nil {
		return nil, "", false
	}
	return g.transport, g.roomID, true
}

func (g *Gateway) onConnect(gen uint64) {
	g.mu.Lock()
	if gen != g.generation || g.transport == nil {
		g.mu.Unlock()
		return
	}
	t, room := g.transport, g.roomID
	handshake := !g.reconciled
	g.state = StateAwaitingReconciliation
	g.mu.Unlock()

	// Subscribe before asking, so the answer cannot slip past us.
	for _, kind := range models.EventKinds {
		if err := t.Subscribe(models.RoomTopic(room, kind)); err != nil {
			g.logger.Warn().Err(err).Str("event", string(kind)).Msg("subscribe failed")
		}
	}

	if handshake {
		g.send(t, room, board.RequestState(g.clientID))
		g.logger.Info().Str("room_id", room).Msg("requested room state")
	} else {
		g.logger.Info().Str("room_id", room).Msg("transport reconnected, subscriptions restored")
	}

	g.mu.Lock()
	if gen == g.generation {
		g.state = StateSteady
		g.reconciled = true
	}
	g.mu.Unlock()
}

func (g *Gateway) onConnectionLost(gen uint64, err error) {
	g.mu.Lock()
	if gen != g.generation {
		g.mu.Unlock()
		return
	}
	g.state = StateDisconnected
	room := g.roomID
	g.mu.Unlock()

	g.replica.ClearCursors()
	g.logger.Warn().Err(err).Str("room_id", room).Msg("connection lost, waiting for transport to reconnect")
}

func (g *Gateway) onMessage(gen uint64, topic string, payload []byte) {
	t, room, ok := g.current(gen)
	if !ok {
		return
	}

	ctx, span := middleware.StartSpan(context.Background(), "Gateway.HandleMessage",
		attribute.String("topic", topic),
		attribute.Int("message.size", len(payload)),
	)
	defer span.End()

	topicRoom, kind, err := models.ParseRoomTopic(topic)
	if err != nil {
		g.drop(ctx, metrics.ReasonUnknownTopic, err)
		return
	}
	if topicRoom != room {
		g.drop(ctx, metrics.ReasonWrongRoom, fmt.Errorf("message for room %s", topicRoom))
		return
	}

	ev, env, err := Decode(kind, payload)
	if err != nil {
		g.drop(ctx, metrics.ReasonMalformed, err)
		return
	}
	if env.RoomID != "" && env.RoomID != room {
		g.drop(ctx, metrics.ReasonWrongRoom, fmt.Errorf("body names room %s", env.RoomID))
		return
	}
	// The relay echoes our own publishes back, possibly after newer local
	// edits. The replica already holds them.
	if env.OriginID != "" && env.OriginID == g.clientID {
		metrics.GatewayDropped.WithLabelValues(metrics.ReasonOwnEcho).Inc()
		return
	}

	switch ev.Kind {
	case models.EventRequestState:
		if ev.RequesterID == g.clientID {
			metrics.GatewayDropped.WithLabelValues(metrics.ReasonOwnRequest).Inc()
			return
		}
		snap := g.replica.Snapshot()
		g.logger.Info().
			Str("requester_id", ev.RequesterID).
			Int("elements", snap.Len()).
			Msg("answering state request")
		g.send(t, room, board.StateSync(snap.Sync()))
		metrics.GatewayInbound.WithLabelValues(string(ev.Kind)).Inc()
		return
	case models.EventCursorUpdated:
		if ev.Cursor.ID == g.clientID {
			metrics.GatewayDropped.WithLabelValues(metrics.ReasonOwnCursor).Inc()
			return
		}
	case models.EventCursorLeft:
		if ev.ID == g.clientID {
			metrics.GatewayDropped.WithLabelValues(metrics.ReasonOwnCursor).Inc()
			return
		}
	}

	g.replica.ApplyRemote(ev)
	metrics.GatewayInbound.WithLabelValues(string(ev.Kind)).Inc()
}

func (g *Gateway) drop(ctx context.Context, reason string, err error) {
	metrics.GatewayDropped.WithLabelValues(reason).Inc()
	middleware.AddSpanEvent(ctx, "dropped", attribute.String("reason", reason))
	g.logger.Debug().Err(err).Str("reason", reason).Msg("inbound message dropped")
}

// connHandler binds transport callbacks to the join that created them.
type connHandler struct {
	g   *Gateway
	gen uint64
}

func (h *connHandler) OnConnect() { h.g.onConnect(h.gen) }

func (h *connHandler) OnConnectionLost(err error) { h.g.onConnectionLost(h.gen, err) }

func (h *connHandler) OnMessage(topic string, payload []byte) {
	h.g.onMessage(h.gen, topic, payload)
}
