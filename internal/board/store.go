// Package board holds the in-memory replica of a shared whiteboard and the
// merge rules that mutate it.
package board

import (
	"maps"
	"slices"

	"collab-board/internal/models"
)

type element[T any] interface {
	models.Element
	Clone() T
}

// collection is an insertion-ordered list of elements addressed by id.
type collection[T element[T]] struct {
	items []T
}

func (c *collection[T]) index(id string) int {
	return slices.IndexFunc(c.items, func(it T) bool { return it.ElementID() == id })
}

func (c *collection[T]) get(id string) (T, bool) {
	if i := c.index(id); i >= 0 {
		return c.items[i].Clone(), true
	}
	var zero T
	return zero, false
}

func (c *collection[T]) upsertIfAbsent(item T) bool {
	if c.index(item.ElementID()) >= 0 {
		return false
	}
	c.items = append(c.items, item.Clone())
	return true
}

func (c *collection[T]) replaceByID(item T) bool {
	i := c.index(item.ElementID())
	if i < 0 {
		return false
	}
	c.items[i] = item.Clone()
	return true
}

func (c *collection[T]) removeByID(id string) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	return true
}

func (c *collection[T]) replace(items []T) {
	c.items = make([]T, len(items))
	for i, it := range items {
		c.items[i] = it.Clone()
	}
}

func (c *collection[T]) snapshot() []T {
	out := make([]T, len(c.items))
	for i, it := range c.items {
		out[i] = it.Clone()
	}
	return out
}

// Store is the single source of truth for one client's copy of the document.
// It is not safe for concurrent use; callers serialise access.
type Store struct {
	lines   collection[models.Stroke]
	shapes  collection[models.Shape]
	images  collection[models.Image]
	texts   collection[models.Text]
	cursors map[string]models.Cursor

	version uint64
}

// NewStore returns an empty document.
func NewStore() *Store {
	return &Store{cursors: make(map[string]models.Cursor)}
}

// Version increases on every change that a renderer should redraw.
func (s *Store) Version() uint64 { return s.version }

func (s *Store) touch(changed bool) bool {
	if changed {
		s.version++
	}
	return changed
}

// UpsertIfAbsent inserts el unless an element with the same id exists.
func (s *Store) UpsertIfAbsent(el models.Element) bool {
	switch v := el.(type) {
	case models.Stroke:
		return s.touch(s.lines.upsertIfAbsent(v))
	case models.Shape:
		return s.touch(s.shapes.upsertIfAbsent(v))
	case models.Image:
		return s.touch(s.images.upsertIfAbsent(v))
	case models.Text:
		return s.touch(s.texts.upsertIfAbsent(v))
	}
	return false
}

// ReplaceByID overwrites the element with el's id. Unknown ids are ignored.
func (s *Store) ReplaceByID(el models.Element) bool {
	switch v := el.(type) {
	case models.Stroke:
		return s.touch(s.lines.replaceByID(v))
	case models.Shape:
		return s.touch(s.shapes.replaceByID(v))
	case models.Image:
		return s.touch(s.images.replaceByID(v))
	case models.Text:
		return s.touch(s.texts.replaceByID(v))
	}
	return false
}

// RemoveByID deletes an element. Unknown ids are a no-op.
func (s *Store) RemoveByID(c models.Collection, id string) bool {
	switch c {
	case models.CollectionLines:
		return s.touch(s.lines.removeByID(id))
	case models.CollectionShapes:
		return s.touch(s.shapes.removeByID(id))
	case models.CollectionImages:
		return s.touch(s.images.removeByID(id))
	case models.CollectionTexts:
		return s.touch(s.texts.removeByID(id))
	}
	return false
}

// ReplaceCollections swaps every collection carried by sync wholesale and
// leaves the others untouched.
func (s *Store) ReplaceCollections(sync models.StateSync) bool {
	if sync.Empty() {
		return false
	}
	if sync.Lines != nil {
		s.lines.replace(*sync.Lines)
	}
	if sync.Shapes != nil {
		s.shapes.replace(*sync.Shapes)
	}
	if sync.Images != nil {
		s.images.replace(*sync.Images)
	}
	if sync.Texts != nil {
		s.texts.replace(*sync.Texts)
	}
	return s.touch(true)
}

// Restore replaces all four collections from snap.
func (s *Store) Restore(snap models.Snapshot) {
	s.ReplaceCollections(snap.Sync())
}

// Snapshot returns a deep copy of the durable collections. Later mutations of
// the store never show through it.
func (s *Store) Snapshot() models.Snapshot {
	return models.Snapshot{
		Lines:  s.lines.snapshot(),
		Shapes: s.shapes.snapshot(),
		Images: s.images.snapshot(),
		Texts:  s.texts.snapshot(),
	}
}

// Read-only projections for the renderer.
func (s *Store) Lines() []models.Stroke { return s.lines.snapshot() }
func (s *Store) Shapes() []models.Shape { return s.shapes.snapshot() }
func (s *Store) Images() []models.Image { return s.images.snapshot() }
func (s *Store) Texts() []models.Text   { return s.texts.snapshot() }

func (s *Store) Line(id string) (models.Stroke, bool) { return s.lines.get(id) }
func (s *Store) Shape(id string) (models.Shape, bool) { return s.shapes.get(id) }
func (s *Store) Image(id string) (models.Image, bool) { return s.images.get(id) }
func (s *Store) Text(id string) (models.Text, bool)   { return s.texts.get(id) }

// Element looks an element up in the given collection.
func (s *Store) Element(c models.Collection, id string) (models.Element, bool) {
	var (
		el models.Element
		ok bool
	)
	switch c {
	case models.CollectionLines:
		el, ok = s.Line(id)
	case models.CollectionShapes:
		el, ok = s.Shape(id)
	case models.CollectionImages:
		el, ok = s.Image(id)
	case models.CollectionTexts:
		el, ok = s.Text(id)
	}
	if !ok {
		return nil, false
	}
	return el, true
}

// Count returns the number of elements in collection c carrying id.
func (s *Store) Count(c models.Collection, id string) int {
	var n int
	count := func(el models.Element) {
		if el.ElementID() == id {
			n++
		}
	}
	switch c {
	case models.CollectionLines:
		for _, el := range s.lines.items {
			count(el)
		}
	case models.CollectionShapes:
		for _, el := range s.shapes.items {
			count(el)
		}
	case models.CollectionImages:
		for _, el := range s.images.items {
			count(el)
		}
	case models.CollectionTexts:
		for _, el := range s.texts.items {
			count(el)
		}
	}
	return n
}

// SetCursor records the pointer of a remote client.
func (s *Store) SetCursor(owner string, c models.Cursor) {
	c.ID = owner
	s.cursors[owner] = c
	s.touch(true)
}

// RemoveCursor forgets a remote client's pointer.
func (s *Store) RemoveCursor(owner string) bool {
	if _, ok := s.cursors[owner]; !ok {
		return false
	}
	delete(s.cursors, owner)
	return s.touch(true)
}

// ClearCursors drops every remote pointer, e.g. after a disconnect.
func (s *Store) ClearCursors() {
	if len(s.cursors) == 0 {
		return
	}
	clear(s.cursors)
	s.touch(true)
}

// Cursors returns a copy of the presence table.
func (s *Store) Cursors() map[string]models.Cursor {
	return maps.Clone(s.cursors)
}
