// Package wsclient speaks the relay's frame protocol over a gorilla
// WebSocket and keeps the connection alive across network failures.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"collab-board/internal/gateway"
	"collab-board/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// ErrSendBufferFull is returned by Publish when the writer is backed up.
var ErrSendBufferFull = errors.New("send buffer full")

type Config struct {
	URL            string
	ReconnectDelay time.Duration
	Logger         zerolog.Logger
}

/*
LEARNING: RECONNECTING CLIENT

run owns the connection lifecycle:

	dial (constant backoff) → resubscribe → OnConnect → read until error
	        ▲                                                │
	        └──────── OnConnectionLost, wait delay ◀─────────┘

Each live connection gets its own send channel and write pump, so a message
queued for a dead socket is simply dropped with it.
*/

// Transport implements gateway.Transport against the relay.
type Transport struct {
	cfg    Config
	logger zerolog.Logger
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	send    chan []byte
	subs    map[string]struct{}
	handler gateway.Handler
	cancel  context.CancelFunc
	closed  bool
}

func New(cfg Config) *Transport {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Transport{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "wsclient").Str("url", cfg.URL).Logger(),
		dialer: websocket.DefaultDialer,
		subs:   make(map[string]struct{}),
	}
}

// Dialer returns a gateway.Dialer handing out transports for cfg.
func Dialer(cfg Config) gateway.Dialer {
	return func() gateway.Transport { return New(cfg) }
}

// Connect starts the connection loop and returns immediately.
func (t *Transport) Connect(ctx context.Context, h gateway.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.New("transport closed")
	}
	if t.handler != nil {
		return errors.New("transport already connecting")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.handler = h
	t.cancel = cancel
	go t.run(runCtx, h)
	return nil
}

func (t *Transport) run(ctx context.Context, h gateway.Handler) {
	for {
		conn, err := t.dial(ctx)
		if err != nil {
			return
		}

		send := t.attach(conn)
		if send == nil {
			conn.Close()
			return
		}
		stop := make(chan struct{})
		go t.writePump(conn, send, stop)

		h.OnConnect()
		err = t.readPump(conn, h)

		close(stop)
		t.detach(conn)

		if ctx.Err() != nil {
			return
		}
		h.OnConnectionLost(err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.cfg.ReconnectDelay):
		}
	}
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	op := func() error {
		c, _, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		t.logger.Warn().Err(err).Dur("retry_in", wait).Msg("relay unreachable")
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(t.cfg.ReconnectDelay), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	t.logger.Info().Msg("connected to relay")
	return conn, nil
}

// attach makes conn current and replays remembered subscriptions onto it.
// It returns nil if the transport was closed while dialling.
func (t *Transport) attach(conn *websocket.Conn) chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	send := make(chan []byte, sendBuffer)
	t.conn = conn
	t.send = send
	for topic := range t.subs {
		if frame, err := subscribeFrame(models.FrameSubscribe, topic); err == nil {
			send <- frame
		}
	}
	return send
}

func (t *Transport) detach(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
		t.send = nil
	}
	t.mu.Unlock()
	conn.Close()
}

func (t *Transport) readPump(conn *websocket.Conn, h gateway.Handler) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var f models.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.logger.Debug().Err(err).Msg("malformed frame from relay")
			continue
		}
		switch f.Op {
		case models.FrameMessage:
			topic := strings.TrimPrefix(f.Topic, models.TopicPrefix+"/")
			h.OnMessage(topic, f.Payload)
		case models.FrameError:
			t.logger.Warn().Str("message", f.Message).Msg("relay rejected a frame")
		default:
			t.logger.Debug().Str("op", string(f.Op)).Msg("unexpected frame from relay")
		}
	}
}

func (t *Transport) writePump(conn *websocket.Conn, send <-chan []byte, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if msg == nil {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// Subscribe remembers topic and, when connected, subscribes to it now.
func (t *Transport) Subscribe(topic string) error {
	frame, err := subscribeFrame(models.FrameSubscribe, topic)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[topic] = struct{}{}
	if t.send == nil {
		return nil
	}
	return t.enqueue(frame)
}

// Unsubscribe forgets topic.
func (t *Transport) Unsubscribe(topic string) error {
	frame, err := subscribeFrame(models.FrameUnsubscribe, topic)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, topic)
	if t.send == nil {
		return nil
	}
	return t.enqueue(frame)
}

// Publish sends payload to the relay. It fails with gateway.ErrNotConnected
// while the connection is down.
func (t *Transport) Publish(topic string, payload []byte) error {
	frame, err := json.Marshal(models.Frame{
		Op:      models.FramePublish,
		Topic:   models.AppPrefix + "/" + topic,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("encode publish frame: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.send == nil {
		return gateway.ErrNotConnected
	}
	return t.enqueue(frame)
}

// enqueue must be called with t.mu held.
func (t *Transport) enqueue(frame []byte) error {
	select {
	case t.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops reconnecting and closes the socket once frames already
// queued have been written.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.cancel != nil {
		t.cancel()
	}
	if t.conn == nil {
		return nil
	}

	conn := t.conn
	select {
	case t.send <- nil:
		time.AfterFunc(writeWait, func() { conn.Close() })
		return nil
	default:
		return conn.Close()
	}
}

func subscribeFrame(op models.FrameOp, topic string) ([]byte, error) {
	b, err := json.Marshal(models.Frame{Op: op, Topic: models.TopicPrefix + "/" + topic})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", op, err)
	}
	return b, nil
}
