package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"collab-board/internal/middleware"
)

// SetupRoutes wires the HTTP API, the metrics endpoint and the relay
// WebSocket endpoint ws onto one router.
func SetupRoutes(h *Handler, ws http.Handler, logger zerolog.Logger) *mux.Router {
	r := mux.NewRouter()

	// Learning: Middleware runs in order - tracing first, then recovery, then CORS
	r.Use(middleware.Tracing(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods("GET")
	api.HandleFunc("/rooms", h.NewRoom).Methods("POST")
	api.HandleFunc("/rooms/{id}", h.GetRoom).Methods("GET")
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.Handle("/ws", ws)

	return r
}
