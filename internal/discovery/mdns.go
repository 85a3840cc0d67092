// Package discovery advertises the relay on the local network over mDNS and
// finds it from boardctl.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
)

const ServiceType = "_collabboard._tcp"

// ErrNoRelay is returned when no relay answered before the timeout.
var ErrNoRelay = errors.New("no relay found on the local network")

// Advertise announces a relay listening on port. Shut the server down to
// withdraw the announcement.
func Advertise(port int, logger zerolog.Logger) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}

	service, err := mdns.NewMDNSService(host, ServiceType, "", "", port, nil, []string{"path=/ws"})
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	logger.Info().Str("service", ServiceType).Str("host", host).Int("port", port).Msg("advertising relay over mDNS")
	return server, nil
}

// Discover browses for a relay and returns the WebSocket URL of the first
// one that answers.
func Discover(ctx context.Context, timeout time.Duration) (string, error) {
	entries := make(chan *mdns.ServiceEntry, 8)
	found := make(chan string, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for e := range entries {
			if url, ok := relayURL(e); ok {
				select {
				case found <- url:
				default:
				}
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	err := mdns.QueryContext(ctx, params)
	close(entries)
	<-done

	select {
	case url := <-found:
		return url, nil
	default:
	}
	if err != nil {
		return "", fmt.Errorf("mdns query: %w", err)
	}
	return "", ErrNoRelay
}

func relayURL(e *mdns.ServiceEntry) (string, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return "", false
	}
	return fmt.Sprintf("ws://%s:%d/ws", e.AddrV4.String(), e.Port), true
}
