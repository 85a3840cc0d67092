// Package relay is the reference broadcast bus: a WebSocket endpoint that
// fans published room messages out to every subscriber of the topic.
package relay

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"collab-board/internal/metrics"
	"collab-board/internal/models"
)

/*
LEARNING: TOPIC HUB

One goroutine owns fan-out. Sessions register directly (under mu) so a
subscribe frame can never overtake its own registration; unregistering and
broadcasting go through channels into the select loop, as does everything a
Redis backplane hands back.

Fan-out never blocks: a session whose send buffer is full is closed and
dropped. A peer that falls behind cannot stall the room.

Sends happen under the read lock and closing a send channel under the write
lock, so a channel is never written after it is closed.
*/

// Backplane carries publishes between relay instances.
type Backplane interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Run delivers every message published by any instance until ctx ends.
	Run(ctx context.Context, deliver func(topic string, payload []byte)) error
	Close() error
}

type Config struct {
	SendBuffer      int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

// Delivery is one message bound for the subscribers of Topic.
type Delivery struct {
	Topic   string
	Payload json.RawMessage
}

type Hub struct {
	cfg       Config
	logger    zerolog.Logger
	backplane Backplane

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	topics   map[string]map[*Session]struct{}

	unregister chan *Session
	broadcast  chan *Delivery

	done     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

// NewHub returns a hub. backplane may be nil for a single relay instance.
func NewHub(cfg Config, backplane Backplane, logger zerolog.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 30 * time.Second
	}
	return &Hub{
		cfg:        cfg,
		logger:     logger.With().Str("component", "hub").Logger(),
		backplane:  backplane,
		sessions:   make(map[*Session]struct{}),
		topics:     make(map[string]map[*Session]struct{}),
		unregister: make(chan *Session, 64),
		broadcast:  make(chan *Delivery, 256),
		done:       make(chan struct{}),
	}
}

// Start runs the fan-out loop, the idle reaper and, if configured, the
// backplane subscription.
func (h *Hub) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	go h.loop()
	go h.cleanupLoop()

	if h.backplane != nil {
		go func() {
			if err := h.backplane.Run(ctx, h.enqueue); err != nil && ctx.Err() == nil {
				h.logger.Error().Err(err).Msg("backplane subscription ended")
			}
		}()
	}
	h.logger.Info().Bool("backplane", h.backplane != nil).Msg("hub started")
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.done:
			return
		case s := <-h.unregister:
			h.remove(s)
		case d := <-h.broadcast:
			h.fanOut(d)
		}
	}
}

// Register adds a session with no subscriptions.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	n := len(h.sessions)
	h.mu.Unlock()

	metrics.RelaySessions.Inc()
	h.logger.Info().Str("session_id", s.ID).Str("remote_addr", s.RemoteAddr).Int("sessions", n).Msg("session opened")
}

// Unregister queues s for removal. Safe to call more than once.
func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	for topic := range s.topics {
		if subs, ok := h.topics[topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(h.topics, topic)
			}
		}
	}
	s.topics = nil
	close(s.send)

	metrics.RelaySessions.Dec()
	h.logger.Info().Str("session_id", s.ID).Int("sessions", len(h.sessions)).Msg("session closed")
}

func (h *Hub) Subscribe(s *Session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s]; !ok {
		return
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Session]struct{})
		h.topics[topic] = subs
	}
	subs[s] = struct{}{}
	s.topics[topic] = struct{}{}
}

func (h *Hub) Unsubscribe(s *Session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.topics[topic]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(s.topics, topic)
}

// Publish sends payload to every subscriber of topic, on every relay
// instance when a backplane is configured.
func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) {
	if h.backplane != nil {
		err := h.backplane.Publish(ctx, topic, payload)
		if err == nil {
			return
		}
		h.logger.Warn().Err(err).Str("topic", topic).Msg("backplane publish failed, delivering locally")
	}
	h.enqueue(topic, payload)
}

func (h *Hub) enqueue(topic string, payload []byte) {
	select {
	case h.broadcast <- &Delivery{Topic: topic, Payload: payload}:
	case <-h.done:
	}
}

func (h *Hub) fanOut(d *Delivery) {
	frame, err := json.Marshal(models.Frame{Op: models.FrameMessage, Topic: d.Topic, Payload: d.Payload})
	if err != nil {
		h.logger.Error().Err(err).Str("topic", d.Topic).Msg("encoding message frame")
		return
	}

	var slow []*Session
	h.mu.RLock()
	for s := range h.topics[d.Topic] {
		select {
		case s.send <- frame:
			metrics.RelayDelivered.Inc()
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn().Str("session_id", s.ID).Msg("send buffer full, closing session")
		metrics.RelaySlowSessions.Inc()
		h.remove(s)
	}
}

// Subscribers returns the number of sessions subscribed to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// RoomTopics returns the subscriber count of every topic in roomID.
func (h *Hub) RoomTopics(roomID string) map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]int)
	for topic, subs := range h.topics {
		room, _, err := models.ParseRoomTopic(topic)
		if err == nil && room == roomID {
			out[topic] = len(subs)
		}
	}
	return out
}

// Sessions describes every open session, oldest first.
func (h *Hub) Sessions() []models.Session {
	h.mu.RLock()
	out := make([]models.Session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s.Info())
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

func (h *Hub) cleanupLoop() {
	ticker := time.NewTicker(h.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.Reap(time.Now())
		}
	}
}

// Reap closes sessions that have been silent longer than the idle timeout
// as of now.
func (h *Hub) Reap(now time.Time) {
	var stale []*Session
	h.mu.RLock()
	for s := range h.sessions {
		if now.Sub(s.lastActive()) > h.cfg.IdleTimeout {
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stale {
		h.logger.Info().Str("session_id", s.ID).Msg("reaping idle session")
		h.remove(s)
	}
}

// Shutdown stops the hub and closes every session.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		h.logger.Info().Msg("hub shutting down")
		close(h.done)
		if h.cancel != nil {
			h.cancel()
		}

		h.mu.Lock()
		for s := range h.sessions {
			close(s.send)
			if s.conn != nil {
				s.conn.Close()
			}
			metrics.RelaySessions.Dec()
		}
		h.sessions = make(map[*Session]struct{})
		h.topics = make(map[string]map[*Session]struct{})
		h.mu.Unlock()

		if h.backplane != nil {
			if err := h.backplane.Close(); err != nil {
				h.logger.Warn().Err(err).Msg("closing backplane")
			}
		}
		h.logger.Info().Msg("hub shutdown complete")
	})
}
