package whiteboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-board/internal/board"
	"collab-board/internal/gateway"
	"collab-board/internal/models"
	"collab-board/internal/transport/memory"
)

func newClient(t *testing.T, bus *memory.Bus, id string) *Client {
	t.Helper()
	return New(bus.Dialer(), Options{ClientID: id, Color: "#ff0000", Logger: zerolog.Nop()})
}

func joined(t *testing.T, bus *memory.Bus, id, room string) *Client {
	t.Helper()
	c := newClient(t, bus, id)
	got, err := c.Join(context.Background(), room)
	require.NoError(t, err)
	require.Equal(t, room, got)
	return c
}

func countKind(bus *memory.Bus, kind models.EventKind) int {
	n := 0
	for _, m := range bus.Messages() {
		if _, k, err := models.ParseRoomTopic(m.Topic); err == nil && k == kind {
			n++
		}
	}
	return n
}

// Scenario 1: a late joiner gets the room's document from a peer.
func TestLateJoinerReceivesStroke(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")
	assert.Zero(t, countKind(bus, models.EventStateSync), "empty room must not answer")
	assert.Empty(t, a.Lines())

	line := a.BeginLine(0, 0)
	require.NoError(t, a.AppendPoints(line.ID, 10, 10))
	require.NoError(t, a.EndLine(line.ID))

	b := joined(t, bus, "B", "r1")

	got := b.Lines()
	require.Len(t, got, 1)
	assert.Equal(t, line.ID, got[0].ID)
	assert.Equal(t, []float64{0, 0, 10, 10}, got[0].Points)
	assert.Equal(t, 1, countKind(bus, models.EventStateSync))
}

// Scenario 2: successive updates replace, they do not accumulate.
func TestShapeUpdatesLastWriterWins(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")
	b := joined(t, bus, "B", "r1")

	shape, err := a.BeginShape(models.ShapeRect, 0, 0)
	require.NoError(t, err)
	require.NoError(t, a.ResizeShape(shape.ID, 50, 50))
	require.NoError(t, a.ResizeShape(shape.ID, 100, 100))

	for _, c := range []*Client{a, b} {
		got := c.Shapes()
		require.Len(t, got, 1)
		assert.Equal(t, 100.0, got[0].Width)
		assert.Equal(t, 100.0, got[0].Height)
	}
}

// Scenario 3: undo twice, then a new checkpoint drops the redo branch.
func TestUndoThenCheckpointDiscardsRedo(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")

	line := a.BeginLine(1, 1)
	require.NoError(t, a.EndLine(line.ID))
	afterDraw := a.Snapshot()

	require.NoError(t, a.TransformElement(models.CollectionLines, line.ID, models.Transform{X: 5, Y: 5, ScaleX: 1, ScaleY: 1}))
	a.CommitTransform()
	require.NoError(t, a.RemoveElement(models.CollectionLines, line.ID))
	assert.Equal(t, 3, a.HistoryStep())

	require.True(t, a.Undo())
	require.True(t, a.Undo())
	assert.Equal(t, 1, a.HistoryStep())
	assert.Equal(t, afterDraw, a.Snapshot())
	assert.True(t, a.CanRedo())

	a.Checkpoint()
	assert.False(t, a.CanRedo())
	assert.False(t, a.Redo())
	assert.Equal(t, 2, a.HistoryStep())
}

func TestUndoBroadcastsStateSync(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")
	b := joined(t, bus, "B", "r1")

	shape, err := a.BeginShape(models.ShapeCircle, 10, 10)
	require.NoError(t, err)
	require.NoError(t, a.ResizeShape(shape.ID, 3, 4))
	require.NoError(t, a.EndShape(shape.ID))
	require.Len(t, b.Shapes(), 1)
	assert.Equal(t, 5.0, b.Shapes()[0].Radius)

	require.True(t, a.Undo())
	assert.Empty(t, a.Shapes())
	assert.Empty(t, b.Shapes())

	require.True(t, a.Redo())
	assert.Len(t, b.Shapes(), 1)
	assert.Equal(t, a.Snapshot(), b.Snapshot())
}

func TestUndoAtStartIsNoop(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")

	before := len(bus.Messages())
	assert.False(t, a.Undo())
	assert.False(t, a.Redo())
	assert.Len(t, bus.Messages(), before)
}

func TestEndShapeNormalisesNegativeExtent(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")

	shape, err := a.BeginShape(models.ShapeRect, 100, 100)
	require.NoError(t, err)
	require.NoError(t, a.ResizeShape(shape.ID, -40, -20))
	require.NoError(t, a.EndShape(shape.ID))

	got := a.Shapes()[0]
	assert.Equal(t, 60.0, got.X)
	assert.Equal(t, 80.0, got.Y)
	assert.Equal(t, 40.0, got.Width)
	assert.Equal(t, 20.0, got.Height)
}

func TestTextLifecycle(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")
	b := joined(t, bus, "B", "r1")

	text := a.CreateText(5, 5)
	assert.True(t, text.IsNew)
	assert.Equal(t, 0, a.HistoryStep(), "opening a text box is not a checkpoint")
	require.Len(t, b.Texts(), 1)

	require.NoError(t, a.EditText(text.ID, "hello"))
	require.NoError(t, a.CommitText(text.ID))
	assert.Equal(t, 1, a.HistoryStep())
	assert.Equal(t, "hello", b.Texts()[0].Content)
	assert.False(t, b.Texts()[0].IsNew)

	empty := a.CreateText(0, 0)
	require.NoError(t, a.CommitText(empty.ID))
	assert.Len(t, a.Texts(), 1)
	assert.Len(t, b.Texts(), 1)
}

func TestPasteImageCheckpointsAfterDelay(t *testing.T) {
	bus := memory.NewBus()
	a := New(bus.Dialer(), Options{ClientID: "A", PasteCommitDelay: 10 * time.Millisecond, Logger: zerolog.Nop()})
	_, err := a.Join(context.Background(), "r1")
	require.NoError(t, err)

	img, err := a.PasteImage(context.Background(), "data:image/png;base64,AA==", 1, 2, 30, 40)
	require.NoError(t, err)
	assert.Equal(t, 1, a.HistoryStep())
	require.Len(t, a.Images(), 1)
	assert.Equal(t, img, a.Images()[0])
	assert.Equal(t, 1, countKind(bus, models.EventImageCreated))
}

func TestPasteImageCancelledSkipsCheckpoint(t *testing.T) {
	bus := memory.NewBus()
	a := New(bus.Dialer(), Options{ClientID: "A", PasteCommitDelay: time.Hour, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.PasteImage(ctx, "x", 0, 0, 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, a.HistoryStep())
	assert.Len(t, a.Images(), 1)
}

func TestCursorPresence(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")
	b := joined(t, bus, "B", "r1")

	a.MoveCursor(7, 8)
	assert.Empty(t, a.Cursors(), "own cursor echo is ignored")
	require.Contains(t, b.Cursors(), "A")
	assert.Equal(t, models.Cursor{ID: "A", X: 7, Y: 8, Color: "#ff0000"}, b.Cursors()["A"])
	assert.Empty(t, b.Snapshot().Lines)

	require.NoError(t, a.Leave())
	assert.NotContains(t, b.Cursors(), "A")
	assert.Equal(t, gateway.StateDisconnected, a.State())
}

func TestDisconnectClearsCursorsKeepsDocument(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")
	b := joined(t, bus, "B", "r1")

	b.MoveCursor(1, 1)
	b.BeginLine(2, 2)
	require.Len(t, a.Cursors(), 1)

	bus.Conns()[0].Drop()
	assert.Empty(t, a.Cursors())
	assert.Len(t, a.Lines(), 1)

	// Local edits while offline stay local.
	a.BeginLine(3, 3)
	assert.Len(t, b.Lines(), 1)
}

func TestUnknownElementErrors(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")

	assert.True(t, errors.Is(a.EndLine("nope"), ErrUnknownElement))
	assert.ErrorIs(t, a.ResizeShape("nope", 1, 1), ErrUnknownElement)
	assert.ErrorIs(t, a.EditText("nope", "x"), ErrUnknownElement)
	assert.ErrorIs(t, a.RemoveElement(models.CollectionImages, "nope"), ErrUnknownElement)
	assert.ErrorIs(t, a.TransformElement(models.CollectionTexts, "nope", models.IdentityTransform()), ErrUnknownElement)
	assert.Error(t, a.AppendPoints("nope", 1, 1))

	_, err := a.BeginShape("star", 0, 0)
	assert.Error(t, err)
}

func TestOnChangeFiresForRemoteEdits(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")
	b := joined(t, bus, "B", "r1")

	calls := 0
	a.OnChange(func() { calls++ })

	b.BeginLine(0, 0)
	assert.Equal(t, 1, calls)

	// A duplicate create changes nothing.
	a.ApplyRemote(board.Created(b.Lines()[0]))
	assert.Equal(t, 1, calls)
}

func TestHistoryLimit(t *testing.T) {
	bus := memory.NewBus()
	a := New(bus.Dialer(), Options{ClientID: "A", HistoryLimit: 3, Logger: zerolog.Nop()})

	for i := 0; i < 5; i++ {
		line := a.BeginLine(float64(i), 0)
		require.NoError(t, a.EndLine(line.ID))
	}
	assert.Equal(t, 2, a.HistoryStep())
	require.True(t, a.Undo())
	require.True(t, a.Undo())
	assert.False(t, a.Undo())
	assert.Len(t, a.Lines(), 3)
}

func lastMessage(t *testing.T, bus *memory.Bus, kind models.EventKind) memory.Message {
	t.Helper()
	msgs := bus.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if _, k, err := models.ParseRoomTopic(msgs[i].Topic); err == nil && k == kind {
			return msgs[i]
		}
	}
	t.Fatalf("no %s message on the bus", kind)
	return memory.Message{}
}

// The relay echoes a publish back to its sender one round trip later, by
// which time the sender may have moved on.
func TestLateOwnUpdateDoesNotRollBackStroke(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")
	b := joined(t, bus, "B", "r1")
	connA := bus.Conns()[0]

	line := a.BeginLine(0, 0)
	require.NoError(t, a.AppendPoints(line.ID, 10, 10))
	stale := lastMessage(t, bus, models.EventLineUpdated)
	require.NoError(t, a.AppendPoints(line.ID, 20, 20))

	connA.Deliver(stale.Topic, stale.Payload)
	require.NoError(t, a.AppendPoints(line.ID, 30, 30))
	require.NoError(t, a.EndLine(line.ID))

	want := []float64{0, 0, 10, 10, 20, 20, 30, 30}
	require.Len(t, a.Lines(), 1)
	require.Len(t, b.Lines(), 1)
	assert.Equal(t, want, a.Lines()[0].Points)
	assert.Equal(t, want, b.Lines()[0].Points)
}

func TestLateOwnStateSyncKeepsLaterEdits(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")
	b := joined(t, bus, "B", "r1")
	connA := bus.Conns()[0]

	first := a.BeginLine(0, 0)
	require.NoError(t, a.EndLine(first.ID))
	require.True(t, a.Undo())
	stale := lastMessage(t, bus, models.EventStateSync)

	second := a.BeginLine(5, 5)
	require.NoError(t, a.EndLine(second.ID))

	connA.Deliver(stale.Topic, stale.Payload)

	require.Len(t, a.Lines(), 1)
	assert.Equal(t, second.ID, a.Lines()[0].ID)
	assert.Equal(t, a.Snapshot(), b.Snapshot())
}

func TestLateOwnCreateDoesNotResurrectErased(t *testing.T) {
	bus := memory.NewBus()
	a := joined(t, bus, "A", "r1")
	connA := bus.Conns()[0]

	line := a.BeginLine(0, 0)
	stale := lastMessage(t, bus, models.EventLineCreated)
	require.NoError(t, a.RemoveElement(models.CollectionLines, line.ID))

	connA.Deliver(stale.Topic, stale.Payload)
	assert.Empty(t, a.Lines())
}
