package board

import (
	"errors"
	"fmt"

	"collab-board/internal/models"
)

// ErrInvalidEvent is wrapped by every Validate failure.
var ErrInvalidEvent = errors.New("invalid event")

// Event is one semantic mutation, local or remote. Which fields are set
// depends on Kind:
//
//	*-created, *-updated  Element
//	*-removed, cursor-left ID
//	cursor-updated         Cursor
//	request-state          RequesterID
//	state-sync             Sync
type Event struct {
	Kind        models.EventKind
	Element     models.Element
	ID          string
	Cursor      models.Cursor
	RequesterID string
	Sync        models.StateSync
}

// Created builds the *-created event for el.
func Created(el models.Element) Event {
	k, _ := models.ElementEventKind(el.Collection(), models.OpCreated)
	return Event{Kind: k, Element: el}
}

// Updated builds the *-updated event for el.
func Updated(el models.Element) Event {
	k, _ := models.ElementEventKind(el.Collection(), models.OpUpdated)
	return Event{Kind: k, Element: el}
}

// Removed builds the *-removed event for an element id.
func Removed(c models.Collection, id string) Event {
	k, _ := models.ElementEventKind(c, models.OpRemoved)
	return Event{Kind: k, ID: id}
}

func CursorMoved(c models.Cursor) Event {
	return Event{Kind: models.EventCursorUpdated, Cursor: c}
}

func CursorLeft(owner string) Event {
	return Event{Kind: models.EventCursorLeft, ID: owner}
}

func RequestState(requesterID string) Event {
	return Event{Kind: models.EventRequestState, RequesterID: requesterID}
}

func StateSync(s models.StateSync) Event {
	return Event{Kind: models.EventStateSync, Sync: s}
}

// Validate checks that the fields required by Kind are present.
func (e Event) Validate() error {
	if c, op, ok := e.Kind.ElementEvent(); ok {
		if op == models.OpRemoved {
			if e.ID == "" {
				return fmt.Errorf("%w: %s without id", ErrInvalidEvent, e.Kind)
			}
			return nil
		}
		if e.Element == nil || e.Element.ElementID() == "" {
			return fmt.Errorf("%w: %s without element id", ErrInvalidEvent, e.Kind)
		}
		if e.Element.Collection() != c {
			return fmt.Errorf("%w: %s carries a %s element", ErrInvalidEvent, e.Kind, e.Element.Collection())
		}
		return validateElement(e.Element)
	}

	switch e.Kind {
	case models.EventCursorUpdated:
		if e.Cursor.ID == "" {
			return fmt.Errorf("%w: cursor without owner", ErrInvalidEvent)
		}
	case models.EventCursorLeft:
		if e.ID == "" {
			return fmt.Errorf("%w: cursor-left without owner", ErrInvalidEvent)
		}
	case models.EventRequestState:
		if e.RequesterID == "" {
			return fmt.Errorf("%w: request-state without requesterId", ErrInvalidEvent)
		}
	case models.EventStateSync:
		return validateSync(e.Sync)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	return nil
}

func validateElement(el models.Element) error {
	switch v := el.(type) {
	case models.Stroke:
		if len(v.Points) == 0 || len(v.Points)%2 != 0 {
			return fmt.Errorf("%w: line %s has %d coordinates", ErrInvalidEvent, v.ID, len(v.Points))
		}
	case models.Shape:
		if !v.Kind.Valid() {
			return fmt.Errorf("%w: shape %s has kind %q", ErrInvalidEvent, v.ID, v.Kind)
		}
	}
	return nil
}

func validateSync(s models.StateSync) error {
	check := func(els []models.Element) error {
		for _, el := range els {
			if el.ElementID() == "" {
				return fmt.Errorf("%w: state-sync element without id", ErrInvalidEvent)
			}
			if err := validateElement(el); err != nil {
				return err
			}
		}
		return nil
	}
	if s.Lines != nil {
		if err := check(asElements(*s.Lines)); err != nil {
			return err
		}
	}
	if s.Shapes != nil {
		if err := check(asElements(*s.Shapes)); err != nil {
			return err
		}
	}
	if s.Images != nil {
		if err := check(asElements(*s.Images)); err != nil {
			return err
		}
	}
	if s.Texts != nil {
		if err := check(asElements(*s.Texts)); err != nil {
			return err
		}
	}
	return nil
}

func asElements[T models.Element](items []T) []models.Element {
	out := make([]models.Element, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}
