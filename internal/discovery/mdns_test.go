package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
)

func TestRelayURL(t *testing.T) {
	url, ok := relayURL(&mdns.ServiceEntry{AddrV4: net.IPv4(192, 168, 1, 20), Port: 8080})
	assert.True(t, ok)
	assert.Equal(t, "ws://192.168.1.20:8080/ws", url)

	_, ok = relayURL(&mdns.ServiceEntry{Port: 8080})
	assert.False(t, ok, "entries without an IPv4 address are skipped")

	_, ok = relayURL(&mdns.ServiceEntry{AddrV4: net.IPv4(10, 0, 0, 1)})
	assert.False(t, ok)

	_, ok = relayURL(nil)
	assert.False(t, ok)
}
