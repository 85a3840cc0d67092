package models

// Snapshot is an alias-free copy of the four durable collections. Cursors are
// never part of a snapshot.
type Snapshot struct {
	Lines  []Stroke `json:"lines"`
	Shapes []Shape  `json:"shapes"`
	Images []Image  `json:"images"`
	Texts  []Text   `json:"texts"`
}

// EmptySnapshot returns a snapshot with empty, non-nil collections.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Lines:  []Stroke{},
		Shapes: []Shape{},
		Images: []Image{},
		Texts:  []Text{},
	}
}

// Clone deep-copies every element.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Lines:  cloneAll(s.Lines),
		Shapes: cloneAll(s.Shapes),
		Images: cloneAll(s.Images),
		Texts:  cloneAll(s.Texts),
	}
}

// Len is the total number of elements across all collections.
func (s Snapshot) Len() int {
	return len(s.Lines) + len(s.Shapes) + len(s.Images) + len(s.Texts)
}

// Sync wraps the whole snapshot as a state-sync body carrying every collection.
func (s Snapshot) Sync() StateSync {
	c := s.Clone()
	return StateSync{Lines: &c.Lines, Shapes: &c.Shapes, Images: &c.Images, Texts: &c.Texts}
}

// StateSync is a bulk replacement of one or more collections. A nil field
// means the collection was absent from the message and must be left alone.
type StateSync struct {
	Lines  *[]Stroke `json:"lines,omitempty"`
	Shapes *[]Shape  `json:"shapes,omitempty"`
	Images *[]Image  `json:"images,omitempty"`
	Texts  *[]Text   `json:"texts,omitempty"`
}

// Empty reports whether the sync carries no collection at all.
func (s StateSync) Empty() bool {
	return s.Lines == nil && s.Shapes == nil && s.Images == nil && s.Texts == nil
}

func cloneAll[T interface{ Clone() T }](items []T) []T {
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}
