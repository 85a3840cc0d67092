package models

import (
	"fmt"
	"strings"
)

// EventKind is the closed set of messages exchanged inside a room.
type EventKind string

const (
	EventLineCreated  EventKind = "line-created"
	EventLineUpdated  EventKind = "line-updated"
	EventLineRemoved  EventKind = "line-removed"
	EventShapeCreated EventKind = "shape-created"
	EventShapeUpdated EventKind = "shape-updated"
	EventShapeRemoved EventKind = "shape-removed"
	EventImageCreated EventKind = "image-created"
	EventImageUpdated EventKind = "image-updated"
	EventImageRemoved EventKind = "image-removed"
	EventTextCreated  EventKind = "text-created"
	EventTextUpdated  EventKind = "text-updated"
	EventTextRemoved  EventKind = "text-removed"

	// Presence, never persisted in snapshots.
	EventCursorUpdated EventKind = "cursor-updated"
	EventCursorLeft    EventKind = "cursor-left"

	// Reconciliation handshake.
	EventRequestState EventKind = "request-state"
	EventStateSync    EventKind = "state-sync"
)

// EventKinds lists every kind a client subscribes to when joining a room.
var EventKinds = []EventKind{
	EventLineCreated, EventLineUpdated, EventLineRemoved,
	EventShapeCreated, EventShapeUpdated, EventShapeRemoved,
	EventImageCreated, EventImageUpdated, EventImageRemoved,
	EventTextCreated, EventTextUpdated, EventTextRemoved,
	EventCursorUpdated, EventCursorLeft,
	EventRequestState, EventStateSync,
}

var eventKindSet = func() map[string]EventKind {
	m := make(map[string]EventKind, len(EventKinds))
	for _, k := range EventKinds {
		m[string(k)] = k
	}
	return m
}()

// ParseEventKind maps a wire name to its EventKind.
func ParseEventKind(name string) (EventKind, bool) {
	k, ok := eventKindSet[name]
	return k, ok
}

// EventOp is the mutation family of an element event.
type EventOp int

const (
	OpNone EventOp = iota
	OpCreated
	OpUpdated
	OpRemoved
)

// ElementEvent returns the collection and operation of an element event.
// Presence and handshake kinds return ok=false.
func (k EventKind) ElementEvent() (Collection, EventOp, bool) {
	switch k {
	case EventLineCreated:
		return CollectionLines, OpCreated, true
	case EventLineUpdated:
		return CollectionLines, OpUpdated, true
	case EventLineRemoved:
		return CollectionLines, OpRemoved, true
	case EventShapeCreated:
		return CollectionShapes, OpCreated, true
	case EventShapeUpdated:
		return CollectionShapes, OpUpdated, true
	case EventShapeRemoved:
		return CollectionShapes, OpRemoved, true
	case EventImageCreated:
		return CollectionImages, OpCreated, true
	case EventImageUpdated:
		return CollectionImages, OpUpdated, true
	case EventImageRemoved:
		return CollectionImages, OpRemoved, true
	case EventTextCreated:
		return CollectionTexts, OpCreated, true
	case EventTextUpdated:
		return CollectionTexts, OpUpdated, true
	case EventTextRemoved:
		return CollectionTexts, OpRemoved, true
	case EventCursorUpdated, EventCursorLeft, EventRequestState, EventStateSync:
		return "", OpNone, false
	}
	return "", OpNone, false
}

// ElementEventKind is the inverse of ElementEvent.
func ElementEventKind(c Collection, op EventOp) (EventKind, error) {
	for _, k := range EventKinds {
		if kc, kop, ok := k.ElementEvent(); ok && kc == c && kop == op {
			return k, nil
		}
	}
	return "", fmt.Errorf("no event for collection %q op %d", c, op)
}

// Topic prefixes. Clients publish to the application prefix and subscribe to
// the broker prefix; the relay maps one onto the other.
const (
	AppPrefix   = "/app"
	TopicPrefix = "/topic"
)

// RoomTopic returns "rooms/{roomID}/{kind}".
func RoomTopic(roomID string, kind EventKind) string {
	return "rooms/" + roomID + "/" + string(kind)
}

// ParseRoomTopic splits "rooms/{roomID}/{kind}", with or without a leading
// "/app" or "/topic" prefix.
func ParseRoomTopic(topic string) (roomID string, kind EventKind, err error) {
	t := strings.TrimPrefix(topic, AppPrefix+"/")
	t = strings.TrimPrefix(t, TopicPrefix+"/")
	parts := strings.Split(t, "/")
	if len(parts) != 3 || parts[0] != "rooms" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed room topic %q", topic)
	}
	k, ok := ParseEventKind(parts[2])
	if !ok {
		return "", "", fmt.Errorf("unknown event %q in topic %q", parts[2], topic)
	}
	return parts[1], k, nil
}
