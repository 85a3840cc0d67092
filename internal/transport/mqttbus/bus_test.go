package mqttbus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-board/internal/gateway"
)

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://localhost:1883", brokerURL("localhost:1883"))
	assert.Equal(t, "ws://broker:9001/mqtt", brokerURL("ws://broker:9001/mqtt"))
}

func TestOptionsReconnectAtFixedInterval(t *testing.T) {
	tr := New(Config{Broker: "localhost:1883", ClientID: "client-1", ReconnectDelay: 3 * time.Second, Logger: zerolog.Nop()})
	opts := tr.options()

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://localhost:1883", opts.Servers[0].String())
	assert.Equal(t, "client-1", opts.ClientID)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.ConnectRetry)
	assert.True(t, opts.CleanSession)
	assert.Equal(t, 3*time.Second, opts.ConnectRetryInterval)
	assert.Equal(t, 3*time.Second, opts.MaxReconnectInterval)
}

func TestDefaultReconnectDelay(t *testing.T) {
	tr := New(Config{Broker: "localhost:1883"})
	assert.Equal(t, 5*time.Second, tr.cfg.ReconnectDelay)
}

func TestPublishWithoutConnectionFails(t *testing.T) {
	tr := New(Config{Broker: "localhost:1883", Logger: zerolog.Nop()})
	assert.ErrorIs(t, tr.Publish("rooms/r1/line-created", []byte(`{}`)), gateway.ErrNotConnected)
	assert.NoError(t, tr.Subscribe("rooms/r1/line-created"))
	assert.Contains(t, tr.subs, "rooms/r1/line-created")
	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
}
