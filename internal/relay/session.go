package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"collab-board/internal/metrics"
	"collab-board/internal/middleware"
	"collab-board/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxFrame   = 8 << 20
)

// Session is one WebSocket connection held by the relay.
type Session struct {
	*models.Session
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	active atomic.Int64
	topics map[string]struct{} // guarded by hub.mu
}

func newSession(conn *websocket.Conn, hub *Hub, remoteAddr string) *Session {
	s := &Session{
		Session: models.NewSession(remoteAddr),
		conn:    conn,
		send:    make(chan []byte, hub.cfg.SendBuffer),
		hub:     hub,
		topics:  make(map[string]struct{}),
	}
	s.touch()
	return s
}

func (s *Session) touch() { s.active.Store(time.Now().UnixNano()) }

func (s *Session) lastActive() time.Time { return time.Unix(0, s.active.Load()) }

// Info is a copy of the session description with a current LastActiveAt.
func (s *Session) Info() models.Session {
	info := *s.Session
	info.LastActiveAt = s.lastActive()
	return info
}

// ReadPump reads frames until the connection fails, then unregisters.
func (s *Session) ReadPump(ctx context.Context) {
	defer func() {
		s.hub.Unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxFrame)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.touch()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Warn().Err(err).Str("session_id", s.ID).Msg("websocket read failed")
			}
			return
		}
		s.touch()
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if err := s.handleFrame(ctx, data); err != nil {
			s.reject(err)
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, data []byte) error {
	var f models.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		metrics.RelayRejected.WithLabelValues(metrics.ReasonMalformed).Inc()
		return fmt.Errorf("malformed frame: %w", err)
	}

	switch f.Op {
	case models.FrameSubscribe, models.FrameUnsubscribe:
		if _, err := parseTopic(f.Topic, models.TopicPrefix); err != nil {
			metrics.RelayRejected.WithLabelValues(metrics.ReasonUnknownTopic).Inc()
			return err
		}
		if f.Op == models.FrameSubscribe {
			s.hub.Subscribe(s, f.Topic)
		} else {
			s.hub.Unsubscribe(s, f.Topic)
		}
		return nil

	case models.FramePublish:
		kind, err := parseTopic(f.Topic, models.AppPrefix)
		if err != nil {
			metrics.RelayRejected.WithLabelValues(metrics.ReasonUnknownTopic).Inc()
			return err
		}
		if len(f.Payload) == 0 || !json.Valid(f.Payload) {
			metrics.RelayRejected.WithLabelValues(metrics.ReasonMalformed).Inc()
			return fmt.Errorf("publish to %s: payload is not JSON", f.Topic)
		}

		ctx, span := middleware.StartSpan(ctx, "Relay.Publish",
			attribute.String("session.id", s.ID),
			attribute.String("topic", f.Topic),
			attribute.Int("message.size", len(f.Payload)),
		)
		defer span.End()

		out := models.TopicPrefix + strings.TrimPrefix(f.Topic, models.AppPrefix)
		s.hub.Publish(ctx, out, f.Payload)
		metrics.RelayPublished.WithLabelValues(string(kind)).Inc()
		return nil
	}

	metrics.RelayRejected.WithLabelValues(metrics.ReasonMalformed).Inc()
	return fmt.Errorf("unknown op %q", f.Op)
}

// parseTopic accepts prefix + "/rooms/{roomId}/{event}" with a known event.
func parseTopic(topic, prefix string) (models.EventKind, error) {
	if !strings.HasPrefix(topic, prefix+"/") {
		return "", fmt.Errorf("destination %q must start with %s/", topic, prefix)
	}
	_, kind, err := models.ParseRoomTopic(topic)
	if err != nil {
		return "", err
	}
	return kind, nil
}

// reject queues an error frame without blocking.
func (s *Session) reject(err error) {
	frame, _ := json.Marshal(models.Frame{Op: models.FrameError, Message: err.Error()})

	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	if _, ok := s.hub.sessions[s]; !ok {
		return
	}
	select {
	case s.send <- frame:
	default:
	}
}

// WritePump drains the send buffer to the socket and keeps it alive with
// pings. It returns when the hub closes the buffer or a write fails.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
