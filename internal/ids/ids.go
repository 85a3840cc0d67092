// Package ids generates identifiers for elements, rooms and client instances.
package ids

import (
	"strings"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// NewID returns an element id: a KSUID, i.e. a second-resolution timestamp
// followed by 128 random bits. No registry is consulted, collisions are
// accepted as negligible at human edit rates.
func NewID() string {
	return ksuid.New().String()
}

// NewClientID returns the identity of this client instance. It is generated
// once at startup and tags cursor ownership and reconciliation requests.
func NewClientID() string {
	return uuid.NewString()
}

// NewRoomID returns a short random room name for joins with a blank room.
func NewRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
