// Package memory is an in-process broadcast bus. Every connection on the
// same Bus sees every message published to a topic it subscribed to,
// including its own. Delivery is synchronous, which keeps tests
// deterministic.
package memory

import (
	"context"
	"errors"
	"sync"

	"collab-board/internal/gateway"
)

// ErrDropped is passed to OnConnectionLost by Conn.Drop.
var ErrDropped = errors.New("connection dropped")

// Message is one publish seen by the bus.
type Message struct {
	Topic   string
	Payload []byte
}

type Bus struct {
	mu    sync.Mutex
	subs  map[string]map[*Conn]struct{}
	conns []*Conn
	log   []Message
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[*Conn]struct{})}
}

// Dialer hands out a new connection on this bus per call.
func (b *Bus) Dialer() gateway.Dialer {
	return func() gateway.Transport { return b.NewConn() }
}

func (b *Bus) NewConn() *Conn {
	c := &Conn{bus: b, topics: make(map[string]struct{})}
	b.mu.Lock()
	b.conns = append(b.conns, c)
	b.mu.Unlock()
	return c
}

// Conns returns every connection dialled so far, oldest first.
func (b *Bus) Conns() []*Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Conn(nil), b.conns...)
}

// Messages returns every publish the bus has carried.
func (b *Bus) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.log...)
}

// Inject delivers payload on topic as if some other client had sent it.
func (b *Bus) Inject(topic string, payload []byte) {
	b.deliver(topic, payload)
}

func (b *Bus) subscribe(c *Conn, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[topic]
	if !ok {
		set = make(map[*Conn]struct{})
		b.subs[topic] = set
	}
	set[c] = struct{}{}
}

func (b *Bus) unsubscribeAll(c *Conn, topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		if set, ok := b.subs[topic]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(b.subs, topic)
			}
		}
	}
}

func (b *Bus) deliver(topic string, payload []byte) {
	b.mu.Lock()
	b.log = append(b.log, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	targets := make([]*Conn, 0, len(b.subs[topic]))
	for c := range b.subs[topic] {
		targets = append(targets, c)
	}
	b.mu.Unlock()

	for _, c := range targets {
		if h := c.activeHandler(); h != nil {
			h.OnMessage(topic, append([]byte(nil), payload...))
		}
	}
}

// Conn is one client's connection to a Bus. It implements gateway.Transport.
type Conn struct {
	bus *Bus

	mu        sync.Mutex
	handler   gateway.Handler
	connected bool
	closed    bool
	topics    map[string]struct{}
}

func (c *Conn) Connect(_ context.Context, h gateway.Handler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("connection closed")
	}
	c.handler = h
	c.connected = true
	c.mu.Unlock()

	h.OnConnect()
	return nil
}

func (c *Conn) Subscribe(topic string) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return gateway.ErrNotConnected
	}
	c.topics[topic] = struct{}{}
	c.mu.Unlock()

	c.bus.subscribe(c, topic)
	return nil
}

func (c *Conn) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return gateway.ErrNotConnected
	}
	c.bus.deliver(topic, payload)
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.connected = false
	topics := c.drainTopics()
	c.mu.Unlock()

	c.bus.unsubscribeAll(c, topics)
	return nil
}

// Connected reports whether the connection is currently up.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Drop simulates a network loss. The bus forgets the subscriptions, as a
// broker does for a clean session.
func (c *Conn) Drop() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	h := c.handler
	topics := c.drainTopics()
	c.mu.Unlock()

	c.bus.unsubscribeAll(c, topics)
	if h != nil {
		h.OnConnectionLost(ErrDropped)
	}
}

// Reconnect brings a dropped connection back up and fires OnConnect.
func (c *Conn) Reconnect() {
	c.mu.Lock()
	if c.closed || c.connected || c.handler == nil {
		c.mu.Unlock()
		return
	}
	c.connected = true
	h := c.handler
	c.mu.Unlock()

	h.OnConnect()
}

// Deliver hands a message to this connection alone, as a late delivery from
// the bus would. It is not logged and reaches no other connection.
func (c *Conn) Deliver(topic string, payload []byte) {
	c.mu.Lock()
	_, subscribed := c.topics[topic]
	c.mu.Unlock()
	if !subscribed {
		return
	}
	if h := c.activeHandler(); h != nil {
		h.OnMessage(topic, append([]byte(nil), payload...))
	}
}

func (c *Conn) activeHandler() gateway.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	return c.handler
}

// drainTopics must be called with c.mu held.
func (c *Conn) drainTopics() []string {
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	c.topics = make(map[string]struct{})
	return topics
}
