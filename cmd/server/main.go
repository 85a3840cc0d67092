package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"collab-board/internal/api"
	"collab-board/internal/config"
	"collab-board/internal/discovery"
	"collab-board/internal/relay"
	"collab-board/internal/telemetry"
)

/*
LEARNING: GRACEFUL SHUTDOWN PATTERN WITH OBSERVABILITY

Startup order: config, tracing, backplane, hub, HTTP, mDNS.
Once SIGINT or SIGTERM arrives the server stops accepting requests and the
hub closes every session; deferred calls then withdraw the mDNS record and
flush spans.
*/

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("service", "board-relay").Logger()

	logger.Info().Msg("starting whiteboard relay")

	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Learning: Do this FIRST so all operations are traced
	jaegerShutdown, err := telemetry.InitJaeger("board-relay", cfg.JaegerEndpoint, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize jaeger, continuing without tracing")
		jaegerShutdown = telemetry.Noop
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := jaegerShutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to shutdown jaeger")
		}
	}()

	var backplane relay.Backplane
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rb, err := relay.NewRedisBackplane(ctx, cfg.RedisAddr, logger)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("failed to connect redis backplane")
		}
		backplane = rb
	}

	hub := relay.NewHub(relay.Config{
		SendBuffer:  cfg.SessionSendBuffer,
		IdleTimeout: cfg.SessionIdleTimeout,
	}, backplane, logger)
	hub.Start()

	handler := api.NewHandler(hub, logger)
	router := api.SetupRoutes(handler, relay.NewWebSocketHandler(hub), logger)

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: hijacked WebSocket connections manage their own deadlines.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Addr()).
			Str("websocket", "/ws").
			Str("metrics", "/metrics").
			Msg("relay listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	if cfg.MDNSEnabled {
		mdnsServer, err := discovery.Advertise(cfg.Port(), logger)
		if err != nil {
			logger.Warn().Err(err).Msg("mDNS advertisement disabled")
		} else {
			defer mdnsServer.Shutdown()
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down relay")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	// Learning: Shutdown does not wait for hijacked connections, so the hub
	// closes them itself.
	hub.Shutdown()

	logger.Info().Msg("relay shutdown complete")
}
