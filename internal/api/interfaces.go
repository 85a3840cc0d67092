package api

import "collab-board/internal/models"

/*
LEARNING: CONSUMER-DRIVEN INTERFACES (Go Idiom)

The api package only reads relay state, so it declares the two queries it
needs instead of importing the hub type. Tests hand it a fake.
*/

// RelayStats is what the HTTP handlers need from the relay hub.
type RelayStats interface {
	RoomTopics(roomID string) map[string]int
	Sessions() []models.Session
}
