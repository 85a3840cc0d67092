package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-board/internal/models"
)

type fakeStats struct {
	topics   map[string]map[string]int
	sessions []models.Session
}

func (f *fakeStats) RoomTopics(roomID string) map[string]int {
	if t, ok := f.topics[roomID]; ok {
		return t
	}
	return map[string]int{}
}

func (f *fakeStats) Sessions() []models.Session { return f.sessions }

func newTestRouter(stats RelayStats) http.Handler {
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return SetupRoutes(NewHandler(stats, zerolog.Nop()), ws, zerolog.Nop())
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	stats := &fakeStats{sessions: []models.Session{{ID: "a"}, {ID: "b"}}}
	rec := do(t, newTestRouter(stats), http.MethodGet, "/api/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["sessions"])
}

func TestGetRoom(t *testing.T) {
	stats := &fakeStats{topics: map[string]map[string]int{
		"r1": {
			"/topic/rooms/r1/line-created":   2,
			"/topic/rooms/r1/cursor-updated": 1,
		},
	}}
	router := newTestRouter(stats)

	rec := do(t, router, http.MethodGet, "/api/rooms/r1")
	require.Equal(t, http.StatusOK, rec.Code)

	var info RoomInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "r1", info.Room)
	assert.Equal(t, 3, info.Subscribers)
	assert.Equal(t, 2, info.Topics["/topic/rooms/r1/line-created"])

	rec = do(t, router, http.MethodGet, "/api/rooms/empty")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "empty", info.Room)
	assert.Zero(t, info.Subscribers)
	assert.Empty(t, info.Topics)
}

func TestNewRoom(t *testing.T) {
	rec := do(t, newTestRouter(&fakeStats{}), http.MethodPost, "/api/rooms")
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["room"], 10)
}

func TestListSessions(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	stats := &fakeStats{sessions: []models.Session{{ID: "s1", RemoteAddr: "10.0.0.1:5000", ConnectedAt: now, LastActiveAt: now}}}

	rec := do(t, newTestRouter(stats), http.MethodGet, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions []models.Session `json:"sessions"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "s1", body.Sessions[0].ID)
	assert.True(t, now.Equal(body.Sessions[0].ConnectedAt))
}

func TestRoutesWebSocketAndMetrics(t *testing.T) {
	router := newTestRouter(&fakeStats{})

	assert.Equal(t, http.StatusTeapot, do(t, router, http.MethodGet, "/ws").Code)

	rec := do(t, router, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, router, http.MethodDelete, "/api/health").Code)
}

func TestCORSPreflight(t *testing.T) {
	rec := do(t, newTestRouter(&fakeStats{}), http.MethodOptions, "/ws")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
