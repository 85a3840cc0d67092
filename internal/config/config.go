package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Server configures the relay.
type Server struct {
	ServerHost string
	ServerPort string

	// Observability
	JaegerEndpoint string

	// Optional Redis backplane for running several relays; empty disables it.
	RedisAddr string

	MDNSEnabled bool

	SessionSendBuffer  int
	SessionIdleTimeout time.Duration
}

// Transport names accepted by BOARD_TRANSPORT.
const (
	TransportWebSocket = "ws"
	TransportMQTT      = "mqtt"
)

// Client configures boardctl.
type Client struct {
	Transport  string
	RelayURL   string
	MQTTBroker string

	Room  string
	Color string

	ReconnectDelay   time.Duration
	HistoryLimit     int
	PasteCommitDelay time.Duration

	LogLevel zerolog.Level

	// Empty disables client tracing / the client metrics listener.
	JaegerEndpoint string
	MetricsAddr    string
}

func LoadServer() (*Server, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Server{
		ServerHost: getEnv("SERVER_HOST", "localhost"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),

		RedisAddr:   getEnv("REDIS_ADDR", ""),
		MDNSEnabled: getEnvBool("MDNS_ENABLED", false),

		SessionSendBuffer:  getEnvInt("SESSION_SEND_BUFFER", 256),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 5*time.Minute),
	}

	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		return nil, fmt.Errorf("SERVER_PORT must be a number, got %q", cfg.ServerPort)
	}
	if cfg.SessionSendBuffer <= 0 {
		return nil, fmt.Errorf("SESSION_SEND_BUFFER must be positive")
	}
	return cfg, nil
}

// Addr is the listen address host:port.
func (c *Server) Addr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

// Port is ServerPort as a number.
func (c *Server) Port() int {
	p, _ := strconv.Atoi(c.ServerPort)
	return p
}

func LoadClient() (*Client, error) {
	_ = godotenv.Load()

	cfg := &Client{
		Transport:  strings.ToLower(getEnv("BOARD_TRANSPORT", TransportWebSocket)),
		RelayURL:   getEnv("BOARD_RELAY_URL", ""),
		MQTTBroker: getEnv("MQTT_BROKER", "localhost:1883"),

		Room:  getEnv("BOARD_ROOM", ""),
		Color: getEnv("BOARD_COLOR", "#000000"),

		ReconnectDelay:   getEnvDuration("RECONNECT_DELAY", 5*time.Second),
		HistoryLimit:     getEnvInt("HISTORY_LIMIT", 0),
		PasteCommitDelay: getEnvDuration("PASTE_COMMIT_DELAY", 500*time.Millisecond),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		MetricsAddr:    getEnv("BOARD_METRICS_ADDR", ""),
	}

	switch cfg.Transport {
	case TransportWebSocket, TransportMQTT:
	default:
		return nil, fmt.Errorf("BOARD_TRANSPORT must be %q or %q, got %q", TransportWebSocket, TransportMQTT, cfg.Transport)
	}
	if cfg.HistoryLimit < 0 {
		return nil, fmt.Errorf("HISTORY_LIMIT must not be negative")
	}

	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("5s") or plain milliseconds ("5000").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
