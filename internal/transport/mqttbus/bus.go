// Package mqttbus carries room traffic over an MQTT broker. Room topics map
// one to one onto broker topics.
package mqttbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"collab-board/internal/gateway"
)

const (
	qos            = 0
	publishTimeout = 2 * time.Second
	quiesceMillis  = 250
)

type Config struct {
	// Broker is host:port or a full tcp://, ssl:// or ws:// URL.
	Broker         string
	ClientID       string
	ReconnectDelay time.Duration
	Logger         zerolog.Logger
}

// Transport implements gateway.Transport with a paho client.
type Transport struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	client  mqtt.Client
	handler gateway.Handler
	subs    map[string]struct{}
	closed  bool
}

func New(cfg Config) *Transport {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Transport{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "mqttbus").Str("broker", cfg.Broker).Logger(),
		subs:   make(map[string]struct{}),
	}
}

// Dialer returns a gateway.Dialer handing out transports for cfg.
func Dialer(cfg Config) gateway.Dialer {
	return func() gateway.Transport { return New(cfg) }
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func (t *Transport) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(t.cfg.Broker))
	opts.SetClientID(t.cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(t.cfg.ReconnectDelay)
	opts.SetMaxReconnectInterval(t.cfg.ReconnectDelay)
	opts.SetOnConnectHandler(t.onConnect)
	opts.SetConnectionLostHandler(t.onConnectionLost)
	return opts
}

// Connect starts connecting and returns immediately; paho keeps retrying
// until the broker answers or Close is called.
func (t *Transport) Connect(ctx context.Context, h gateway.Handler) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errors.New("transport closed")
	}
	if t.client != nil {
		t.mu.Unlock()
		return errors.New("transport already connecting")
	}
	t.handler = h
	t.client = mqtt.NewClient(t.options())
	client := t.client
	t.mu.Unlock()

	t.logger.Info().Msg("connecting to mqtt broker")
	token := client.Connect()
	go func() {
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				t.logger.Error().Err(err).Msg("mqtt connect failed")
			}
		case <-ctx.Done():
		}
	}()
	return nil
}

func (t *Transport) onConnect(c mqtt.Client) {
	t.mu.Lock()
	h := t.handler
	topics := make([]string, 0, len(t.subs))
	for topic := range t.subs {
		topics = append(topics, topic)
	}
	t.mu.Unlock()

	t.logger.Info().Msg("mqtt connection established")
	for _, topic := range topics {
		if err := t.subscribe(c, topic); err != nil {
			t.logger.Warn().Err(err).Str("topic", topic).Msg("resubscribe failed")
		}
	}
	if h != nil {
		h.OnConnect()
	}
}

func (t *Transport) onConnectionLost(_ mqtt.Client, err error) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()

	t.logger.Warn().Err(err).Dur("retry_interval", t.cfg.ReconnectDelay).Msg("mqtt connection lost, will auto-reconnect")
	if h != nil {
		h.OnConnectionLost(err)
	}
}

func (t *Transport) onMessage(_ mqtt.Client, msg mqtt.Message) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()

	if h != nil {
		h.OnMessage(msg.Topic(), msg.Payload())
	}
}

func (t *Transport) subscribe(c mqtt.Client, topic string) error {
	token := c.Subscribe(topic, qos, t.onMessage)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Subscribe remembers topic and subscribes now when connected.
func (t *Transport) Subscribe(topic string) error {
	t.mu.Lock()
	t.subs[topic] = struct{}{}
	client := t.client
	t.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return nil
	}
	return t.subscribe(client, topic)
}

func (t *Transport) Publish(topic string, payload []byte) error {
	t.mu.Lock()
	client, closed := t.client, t.closed
	t.mu.Unlock()

	if closed || client == nil || !client.IsConnectionOpen() {
		return gateway.ErrNotConnected
	}

	token := client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	client := t.client
	t.handler = nil
	t.mu.Unlock()

	if client != nil {
		client.Disconnect(quiesceMillis)
		t.logger.Info().Msg("mqtt disconnected")
	}
	return nil
}
