package board

import (
	"fmt"

	"collab-board/internal/models"
)

/*
LEARNING: MERGE POLICY

The relay guarantees nothing about ordering or duplicates, so every rule is
chosen to be safe under reordering of events on DIFFERENT ids:

  *-created     insert if absent   (duplicates and own echoes collapse)
  *-updated     replace if present (update before create is dropped)
  *-removed     remove if present  (unknown id is a no-op)
  state-sync    replace each carried collection wholesale

Two writers on the SAME id, or two concurrent state-syncs, resolve to
whichever message is applied last.
*/

// Apply runs one event against the store and reports whether anything
// changed. request-state never mutates the document and returns false.
func Apply(s *Store, ev Event) bool {
	if c, op, ok := ev.Kind.ElementEvent(); ok {
		switch op {
		case models.OpCreated:
			return ev.Element != nil && s.UpsertIfAbsent(ev.Element)
		case models.OpUpdated:
			return ev.Element != nil && s.ReplaceByID(ev.Element)
		case models.OpRemoved:
			return s.RemoveByID(c, ev.ID)
		}
		return false
	}

	switch ev.Kind {
	case models.EventCursorUpdated:
		s.SetCursor(ev.Cursor.ID, ev.Cursor)
		return true
	case models.EventCursorLeft:
		return s.RemoveCursor(ev.ID)
	case models.EventStateSync:
		return s.ReplaceCollections(ev.Sync)
	case models.EventRequestState:
		return false
	}
	return false
}

// AppendPoints extends the stroke being drawn with one or more (x, y) pairs
// and returns the full updated stroke, ready to go out as line-updated.
func AppendPoints(s *Store, id string, xy ...float64) (models.Stroke, error) {
	if len(xy) == 0 || len(xy)%2 != 0 {
		return models.Stroke{}, fmt.Errorf("append to line %s: need (x, y) pairs, got %d values", id, len(xy))
	}
	line, ok := s.Line(id)
	if !ok {
		return models.Stroke{}, fmt.Errorf("append to line %s: not found", id)
	}
	line.Points = append(line.Points, xy...)
	s.ReplaceByID(line)
	return line, nil
}
