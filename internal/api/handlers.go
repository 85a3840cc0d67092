package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"collab-board/internal/ids"
	"collab-board/internal/telemetry"
)

// Handler serves the relay's read-only HTTP API.
type Handler struct {
	stats  RelayStats
	logger zerolog.Logger
}

func NewHandler(stats RelayStats, logger zerolog.Logger) *Handler {
	return &Handler{stats: stats, logger: logger}
}

// RoomInfo is the body of GET /api/rooms/{id}.
type RoomInfo struct {
	Room        string         `json:"room"`
	Topics      map[string]int `json:"topics"`
	Subscribers int            `json:"subscribers"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  telemetry.Version,
		"sessions": len(h.stats.Sessions()),
	})
}

// GetRoom reports the subscriber count of every topic in a room. A room
// nobody is in reports no topics rather than 404: rooms exist implicitly.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	topics := h.stats.RoomTopics(id)
	info := RoomInfo{Room: id, Topics: topics}
	for _, n := range topics {
		info.Subscribers += n
	}
	h.writeJSON(w, http.StatusOK, info)
}

// NewRoom hands out a fresh room name.
func (h *Handler) NewRoom(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusCreated, map[string]string{"room": ids.NewRoomID()})
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.stats.Sessions()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn().Err(err).Msg("failed to write response")
	}
}
