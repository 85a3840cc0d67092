package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func familyNames(t *testing.T, g prometheus.Gatherer) []string {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	return names
}

func TestClientCollectorsStayOffRelayRegistry(t *testing.T) {
	GatewayInbound.WithLabelValues("line-created").Inc()
	GatewayDropped.WithLabelValues(ReasonOwnEcho).Inc()
	HistoryDepth.Set(3)

	for _, name := range familyNames(t, prometheus.DefaultGatherer) {
		assert.False(t, strings.HasPrefix(name, "board_gateway_"), name)
		assert.NotEqual(t, "board_history_depth", name)
	}

	names := familyNames(t, ClientRegistry)
	assert.Contains(t, names, "board_gateway_inbound_total")
	assert.Contains(t, names, "board_gateway_dropped_total")
	assert.Contains(t, names, "board_history_depth")
	assert.Equal(t, 3.0, testutil.ToFloat64(HistoryDepth))
}

func TestRelayCollectorsOnDefaultRegistry(t *testing.T) {
	RelaySessions.Inc()
	defer RelaySessions.Dec()

	assert.Contains(t, familyNames(t, prometheus.DefaultGatherer), "board_relay_sessions")
}
