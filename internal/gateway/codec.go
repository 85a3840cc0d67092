package gateway

import (
	"encoding/json"
	"fmt"

	"collab-board/internal/board"
	"collab-board/internal/models"
)

// Envelope is the routing header merged into every body: the room and the
// client that published it.
type Envelope struct {
	RoomID   string `json:"roomId"`
	OriginID string `json:"originId,omitempty"`
}

// Encode renders ev as the JSON body published on the room topic, with the
// envelope fields next to the event fields.
func Encode(env Envelope, ev board.Event) ([]byte, error) {
	var body any
	if _, op, ok := ev.Kind.ElementEvent(); ok {
		switch op {
		case models.OpCreated, models.OpUpdated:
			if ev.Element == nil {
				return nil, fmt.Errorf("encode %s: no element", ev.Kind)
			}
			body = ev.Element
		case models.OpRemoved:
			body = idBody{ID: ev.ID}
		}
	} else {
		switch ev.Kind {
		case models.EventCursorUpdated:
			body = ev.Cursor
		case models.EventCursorLeft:
			body = idBody{ID: ev.ID}
		case models.EventRequestState:
			body = requestBody{RequesterID: ev.RequesterID}
		case models.EventStateSync:
			body = ev.Sync
		default:
			return nil, fmt.Errorf("encode: unknown event kind %q", ev.Kind)
		}
	}
	return withEnvelope(env, body)
}

// Decode parses a body received on a topic of the given kind. Bodies that do
// not parse or lack required fields return an error.
func Decode(kind models.EventKind, payload []byte) (board.Event, Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return board.Event{}, Envelope{}, fmt.Errorf("decode %s: %w", kind, err)
	}

	ev := board.Event{Kind: kind}
	var err error
	if c, op, ok := kind.ElementEvent(); ok {
		if op == models.OpRemoved {
			var b idBody
			err = json.Unmarshal(payload, &b)
			ev.ID = b.ID
		} else {
			ev.Element, err = decodeElement(c, payload)
		}
	} else {
		switch kind {
		case models.EventCursorUpdated:
			err = json.Unmarshal(payload, &ev.Cursor)
		case models.EventCursorLeft:
			var b idBody
			err = json.Unmarshal(payload, &b)
			ev.ID = b.ID
		case models.EventRequestState:
			var b requestBody
			err = json.Unmarshal(payload, &b)
			ev.RequesterID = b.RequesterID
		case models.EventStateSync:
			err = json.Unmarshal(payload, &ev.Sync)
		default:
			err = fmt.Errorf("unknown event kind %q", kind)
		}
	}
	if err != nil {
		return board.Event{}, Envelope{}, fmt.Errorf("decode %s: %w", kind, err)
	}
	if err := ev.Validate(); err != nil {
		return board.Event{}, Envelope{}, err
	}
	return ev, env, nil
}

type idBody struct {
	ID string `json:"id"`
}

type requestBody struct {
	RequesterID string `json:"requesterId"`
}

func decodeElement(c models.Collection, payload []byte) (models.Element, error) {
	switch c {
	case models.CollectionLines:
		var v models.Stroke
		err := json.Unmarshal(payload, &v)
		return v, err
	case models.CollectionShapes:
		var v models.Shape
		err := json.Unmarshal(payload, &v)
		return v, err
	case models.CollectionImages:
		var v models.Image
		err := json.Unmarshal(payload, &v)
		return v, err
	case models.CollectionTexts:
		var v models.Text
		err := json.Unmarshal(payload, &v)
		return v, err
	}
	return nil, fmt.Errorf("unknown collection %q", c)
}

func withEnvelope(env Envelope, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	room, err := json.Marshal(env.RoomID)
	if err != nil {
		return nil, err
	}
	fields["roomId"] = room
	if env.OriginID != "" {
		origin, err := json.Marshal(env.OriginID)
		if err != nil {
			return nil, err
		}
		fields["originId"] = origin
	}
	return json.Marshal(fields)
}
