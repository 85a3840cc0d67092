package models

import (
	"encoding/json"
	"time"

	"github.com/segmentio/ksuid"
)

// Session describes one WebSocket connection held by the relay.
type Session struct {
	ID           string    `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func NewSession(remoteAddr string) *Session {
	now := time.Now()
	return &Session{
		ID:           ksuid.New().String(),
		RemoteAddr:   remoteAddr,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}

// FrameOp is the discriminator of a relay frame.
type FrameOp string

const (
	// Client to relay
	FrameSubscribe   FrameOp = "subscribe"
	FrameUnsubscribe FrameOp = "unsubscribe"
	FramePublish     FrameOp = "publish"

	// Relay to client
	FrameMessage FrameOp = "message"
	FrameError   FrameOp = "error"
)

// Frame is the envelope spoken on the relay WebSocket in both directions.
type Frame struct {
	Op      FrameOp         `json:"op"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}
