package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-board/internal/board"
	"collab-board/internal/models"
)

func TestEncodeCarriesRoomID(t *testing.T) {
	payload, err := Encode(Envelope{RoomID: "room1"}, board.Created(models.Stroke{ID: "s1", Points: []float64{1, 2}, Color: "#000"}))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(payload, &fields))
	assert.Equal(t, "room1", fields["roomId"])
	assert.Equal(t, "s1", fields["id"])
	assert.Equal(t, []any{1.0, 2.0}, fields["points"])
}

func TestEncodeRemovedAndPresenceBodies(t *testing.T) {
	payload, err := Encode(Envelope{RoomID: "r"}, board.Removed(models.CollectionImages, "i1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"i1","roomId":"r"}`, string(payload))

	payload, err = Encode(Envelope{RoomID: "r"}, board.RequestState("c1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"requesterId":"c1","roomId":"r"}`, string(payload))

	payload, err = Encode(Envelope{RoomID: "r"}, board.CursorLeft("c1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c1","roomId":"r"}`, string(payload))
}

func TestEncodeElementEventWithoutElementFails(t *testing.T) {
	_, err := Encode(Envelope{RoomID: "r"}, board.Event{Kind: models.EventShapeCreated})
	assert.Error(t, err)
}

func TestDecodePartialStateSync(t *testing.T) {
	ev, env, err := Decode(models.EventStateSync,
		[]byte(`{"roomId":"r","lines":[{"id":"s1","points":[0,0]}]}`))
	require.NoError(t, err)
	assert.Equal(t, Envelope{RoomID: "r"}, env)
	require.NotNil(t, ev.Sync.Lines)
	assert.Len(t, *ev.Sync.Lines, 1)
	assert.Nil(t, ev.Sync.Shapes)
	assert.Nil(t, ev.Sync.Images)
	assert.Nil(t, ev.Sync.Texts)
}

func TestDecodeRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name    string
		kind    models.EventKind
		payload string
	}{
		{"not json", models.EventTextCreated, `hello`},
		{"missing id", models.EventTextUpdated, `{"content":"x"}`},
		{"removed without id", models.EventLineRemoved, `{"roomId":"r"}`},
		{"odd points", models.EventLineUpdated, `{"id":"s1","points":[1,2,3]}`},
		{"cursor without owner", models.EventCursorUpdated, `{"x":1,"y":2}`},
		{"request without requester", models.EventRequestState, `{}`},
		{"points wrong type", models.EventLineCreated, `{"id":"s1","points":"abc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.kind, []byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestEncodeDecodeShapeKeepsGeometry(t *testing.T) {
	tr := models.Transform{X: 10, Y: 20, ScaleX: 1.5, ScaleY: 1.5, Rotation: 45}
	shape := models.Shape{ID: "sh1", Kind: models.ShapeCircle, X: 5, Y: 6, Radius: 7, Color: "#123456", Transform: &tr}

	payload, err := Encode(Envelope{RoomID: "room"}, board.Updated(shape))
	require.NoError(t, err)

	ev, env, err := Decode(models.EventShapeUpdated, payload)
	require.NoError(t, err)
	assert.Equal(t, "room", env.RoomID)
	assert.Equal(t, shape, ev.Element)
}

func TestEnvelopeCarriesOrigin(t *testing.T) {
	payload, err := Encode(Envelope{RoomID: "r", OriginID: "alice"}, board.Removed(models.CollectionLines, "s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"s1","roomId":"r","originId":"alice"}`, string(payload))

	ev, env, err := Decode(models.EventLineRemoved, payload)
	require.NoError(t, err)
	assert.Equal(t, Envelope{RoomID: "r", OriginID: "alice"}, env)
	assert.Equal(t, "s1", ev.ID)
}
