package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"collab-board/internal/config"
	"collab-board/internal/discovery"
	"collab-board/internal/gateway"
	"collab-board/internal/ids"
	"collab-board/internal/metrics"
	"collab-board/internal/telemetry"
	"collab-board/internal/transport/mqttbus"
	"collab-board/internal/transport/wsclient"
	"collab-board/internal/whiteboard"
)

const defaultRelayURL = "ws://localhost:8080/ws"

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(cfg.LogLevel).
		With().Timestamp().Logger()

	if cfg.JaegerEndpoint != "" {
		shutdown, err := telemetry.InitJaeger("boardctl", cfg.JaegerEndpoint, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("tracing disabled")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(ctx)
			}()
		}
	}

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientID := ids.NewClientID()
	dial, err := dialer(ctx, cfg, clientID, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("no transport")
	}

	client := whiteboard.New(dial, whiteboard.Options{
		ClientID:         clientID,
		Color:            cfg.Color,
		HistoryLimit:     cfg.HistoryLimit,
		PasteCommitDelay: cfg.PasteCommitDelay,
		Logger:           logger,
	})

	room, err := client.Join(ctx, cfg.Room)
	if err != nil {
		logger.Fatal().Err(err).Msg("join failed")
	}
	logger.Info().Str("room", room).Str("client_id", clientID).Str("transport", cfg.Transport).Msg("joined")

	sh := &shell{client: client, out: os.Stdout}
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case line, ok := <-lines:
			if !ok {
				done = true
				break
			}
			if err := sh.exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					done = true
					break
				}
				fmt.Fprintln(os.Stderr, "error:", err)
			}
		}
	}

	if err := client.Leave(); err != nil {
		logger.Debug().Err(err).Msg("leave")
	}
}

// serveMetrics exposes the gateway and history collectors on addr.
func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.ClientRegistry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("addr", addr).Msg("serving client metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("metrics listener stopped")
		}
	}()
	return srv
}

// dialer picks the transport named by BOARD_TRANSPORT. Without a relay URL
// the WebSocket transport looks for a relay on the LAN first.
func dialer(ctx context.Context, cfg *config.Client, clientID string, logger zerolog.Logger) (gateway.Dialer, error) {
	switch cfg.Transport {
	case config.TransportMQTT:
		return mqttbus.Dialer(mqttbus.Config{
			Broker:         cfg.MQTTBroker,
			ClientID:       "board-" + clientID,
			ReconnectDelay: cfg.ReconnectDelay,
			Logger:         logger,
		}), nil

	case config.TransportWebSocket:
		url := cfg.RelayURL
		if url == "" {
			found, err := discovery.Discover(ctx, 2*time.Second)
			if err != nil {
				logger.Info().Err(err).Str("url", defaultRelayURL).Msg("no relay discovered, using default")
				url = defaultRelayURL
			} else {
				logger.Info().Str("url", found).Msg("discovered relay")
				url = found
			}
		}
		return wsclient.Dialer(wsclient.Config{
			URL:            url,
			ReconnectDelay: cfg.ReconnectDelay,
			Logger:         logger,
		}), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}
