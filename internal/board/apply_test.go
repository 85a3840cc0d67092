package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-board/internal/models"
)

func stroke(id string, pts ...float64) models.Stroke {
	return models.Stroke{ID: id, Points: pts, Color: "#000000", StrokeWidth: 2}
}

func TestDuplicateCreateIsIdempotent(t *testing.T) {
	s := NewStore()
	ev := Created(stroke("s1", 0, 0, 10, 10))

	assert.True(t, Apply(s, ev))
	assert.False(t, Apply(s, ev))

	for _, el := range []models.Element{
		stroke("s1", 0, 0),
		models.Shape{ID: "s1", Kind: models.ShapeRect},
		models.Image{ID: "s1"},
		models.Text{ID: "s1"},
	} {
		Apply(s, Created(el))
		Apply(s, Created(el))
		assert.Equal(t, 1, s.Count(el.Collection(), "s1"), "collection %s", el.Collection())
	}
}

func TestCreateKeepsFirstWriter(t *testing.T) {
	s := NewStore()
	Apply(s, Created(stroke("s1", 0, 0)))
	Apply(s, Created(stroke("s1", 5, 5)))

	got, ok := s.Line("s1")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0}, got.Points)
}

func TestUpdateBeforeCreateIsIgnored(t *testing.T) {
	s := NewStore()
	Apply(s, Created(stroke("other", 1, 1)))
	before := s.Snapshot()
	version := s.Version()

	assert.False(t, Apply(s, Updated(stroke("ghost", 1, 2, 3, 4))))
	assert.Equal(t, before, s.Snapshot())
	assert.Equal(t, version, s.Version())
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	s := NewStore()
	Apply(s, Created(models.Shape{ID: "sh1", Kind: models.ShapeCircle, Radius: 4}))
	before := s.Snapshot()

	for _, c := range models.Collections {
		assert.False(t, Apply(s, Removed(c, "missing")))
	}
	assert.Equal(t, before, s.Snapshot())

	assert.True(t, Apply(s, Removed(models.CollectionShapes, "sh1")))
	assert.Empty(t, s.Shapes())
}

func TestLastUpdateWins(t *testing.T) {
	s := NewStore()
	Apply(s, Created(models.Shape{ID: "sh1", Kind: models.ShapeRect}))
	Apply(s, Updated(models.Shape{ID: "sh1", Kind: models.ShapeRect, Width: 50, Height: 50}))
	Apply(s, Updated(models.Shape{ID: "sh1", Kind: models.ShapeRect, Width: 100, Height: 100}))

	got, ok := s.Shape("sh1")
	require.True(t, ok)
	assert.Equal(t, models.Shape{ID: "sh1", Kind: models.ShapeRect, Width: 100, Height: 100}, got)
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore()
	Apply(s, Created(stroke("s1", 0, 0, 1, 1)))
	tr := models.IdentityTransform()
	Apply(s, Created(models.Text{ID: "t1", Content: "hi", Transform: &tr}))

	snap := s.Snapshot()

	_, err := AppendPoints(s, "s1", 2, 2)
	require.NoError(t, err)
	moved := models.Transform{X: 40, Y: 40, ScaleX: 2, ScaleY: 2}
	Apply(s, Updated(models.Text{ID: "t1", Content: "changed", Transform: &moved}))
	Apply(s, Created(models.Image{ID: "i1", Src: "data:image/png;base64,AA=="}))

	assert.Equal(t, []float64{0, 0, 1, 1}, snap.Lines[0].Points)
	assert.Equal(t, "hi", snap.Texts[0].Content)
	assert.Equal(t, 0.0, snap.Texts[0].Transform.X)
	assert.Empty(t, snap.Images)
}

func TestSnapshotMutationDoesNotLeakIntoStore(t *testing.T) {
	s := NewStore()
	Apply(s, Created(stroke("s1", 0, 0)))

	snap := s.Snapshot()
	snap.Lines[0].Points[0] = 99

	got, _ := s.Line("s1")
	assert.Equal(t, 0.0, got.Points[0])
}

func TestStateSyncReplacesOnlyCarriedCollections(t *testing.T) {
	s := NewStore()
	Apply(s, Created(stroke("s1", 0, 0)))
	Apply(s, Created(models.Shape{ID: "sh1", Kind: models.ShapeRect}))

	lines := []models.Stroke{stroke("s2", 3, 3)}
	assert.True(t, Apply(s, StateSync(models.StateSync{Lines: &lines})))

	snap := s.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "s2", snap.Lines[0].ID)
	require.Len(t, snap.Shapes, 1, "shapes were not in the payload")

	empty := []models.Shape{}
	Apply(s, StateSync(models.StateSync{Shapes: &empty}))
	assert.Empty(t, s.Shapes())
	assert.Len(t, s.Lines(), 1)
}

func TestCursorsStayOutOfSnapshots(t *testing.T) {
	s := NewStore()
	Apply(s, CursorMoved(models.Cursor{ID: "peer", X: 1, Y: 2, Color: "red"}))
	assert.Equal(t, models.EmptySnapshot(), s.Snapshot())
	assert.Contains(t, s.Cursors(), "peer")

	Apply(s, StateSync(models.EmptySnapshot().Sync()))
	assert.Contains(t, s.Cursors(), "peer")

	assert.True(t, Apply(s, CursorLeft("peer")))
	assert.False(t, Apply(s, CursorLeft("peer")))
	assert.Empty(t, s.Cursors())
}

func TestAppendPoints(t *testing.T) {
	s := NewStore()
	Apply(s, Created(stroke("s1", 0, 0)))

	line, err := AppendPoints(s, "s1", 1, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 1, 2, 2}, line.Points)

	_, err = AppendPoints(s, "s1", 3)
	assert.Error(t, err)
	_, err = AppendPoints(s, "nope", 1, 1)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		ok   bool
	}{
		{"line created", Created(stroke("s1", 0, 0)), true},
		{"line without points", Created(stroke("s1")), false},
		{"odd coordinates", Updated(stroke("s1", 0, 0, 1)), false},
		{"element without id", Created(models.Image{}), false},
		{"bad shape kind", Created(models.Shape{ID: "x", Kind: "star"}), false},
		{"removed without id", Removed(models.CollectionTexts, ""), false},
		{"wrong collection", Event{Kind: models.EventLineCreated, Element: models.Text{ID: "t"}}, false},
		{"cursor without owner", CursorMoved(models.Cursor{}), false},
		{"request without requester", RequestState(""), false},
		{"empty state sync", StateSync(models.StateSync{}), true},
		{"unknown kind", Event{Kind: "explode"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidEvent)
			}
		})
	}
}
