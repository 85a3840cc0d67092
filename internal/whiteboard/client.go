// Package whiteboard is the entry point a renderer drives: local input goes
// in through the mutation methods, the document comes out through read-only
// projections and the OnChange callback.
package whiteboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"collab-board/internal/board"
	"collab-board/internal/gateway"
	"collab-board/internal/history"
	"collab-board/internal/ids"
	"collab-board/internal/models"
)

// ErrUnknownElement is returned when an entry point names an id that is not
// on the board.
var ErrUnknownElement = errors.New("unknown element")

const (
	defaultColor       = "#000000"
	defaultStrokeWidth = 2
	defaultFontSize    = 20
)

// Options configures a Client. Zero values pick the defaults.
type Options struct {
	ClientID         string
	Color            string
	StrokeWidth      float64
	HistoryLimit     int
	PasteCommitDelay time.Duration
	Logger           zerolog.Logger
}

/*
LEARNING: TWO LOCKS

outMu serialises the entry points, so a gesture runs to completion before the
next one starts, and a paste holds its place until its checkpoint lands.

mu guards the store and the history. It is never held while publishing:
transports may deliver our own echo (or a peer's synchronous reply) on the
calling goroutine, and that delivery needs mu to apply it.
*/

type Client struct {
	id          string
	color       string
	strokeWidth float64
	pasteDelay  time.Duration
	logger      zerolog.Logger

	gw *gateway.Gateway

	outMu sync.Mutex

	mu       sync.Mutex
	store    *board.Store
	history  *history.Engine
	onChange func()
}

// New returns a client that reaches its room through transports from dial.
// It is not connected until Join.
func New(dial gateway.Dialer, opts Options) *Client {
	if opts.ClientID == "" {
		opts.ClientID = ids.NewClientID()
	}
	if opts.Color == "" {
		opts.Color = defaultColor
	}
	if opts.StrokeWidth <= 0 {
		opts.StrokeWidth = defaultStrokeWidth
	}

	c := &Client{
		id:          opts.ClientID,
		color:       opts.Color,
		strokeWidth: opts.StrokeWidth,
		pasteDelay:  opts.PasteCommitDelay,
		logger:      opts.Logger.With().Str("component", "whiteboard").Logger(),
		store:       board.NewStore(),
		history:     history.New(opts.HistoryLimit),
	}
	c.gw = gateway.New(opts.ClientID, dial, c, opts.Logger)
	return c
}

func (c *Client) ClientID() string     { return c.id }
func (c *Client) RoomID() string       { return c.gw.RoomID() }
func (c *Client) State() gateway.State { return c.gw.State() }

// OnChange registers fn to be called after every change to the document or
// the cursor table. fn runs without the client's locks held.
func (c *Client) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Join connects to roomID, or to a fresh room when roomID is blank, and
// returns the room joined. The local document is kept.
func (c *Client) Join(ctx context.Context, roomID string) (string, error) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.gw.Join(ctx, roomID)
}

// Leave announces our departure and disconnects.
func (c *Client) Leave() error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.gw.Leave()
}

// Replica

func (c *Client) ApplyRemote(ev board.Event) {
	c.mu.Lock()
	changed := board.Apply(c.store, ev)
	fn := c.onChange
	c.mu.Unlock()

	if changed && fn != nil {
		fn()
	}
}

func (c *Client) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Snapshot()
}

func (c *Client) ClearCursors() {
	c.mu.Lock()
	had := len(c.store.Cursors()) > 0
	c.store.ClearCursors()
	fn := c.onChange
	c.mu.Unlock()

	if had && fn != nil {
		fn()
	}
}

// Projections

func (c *Client) Lines() []models.Stroke {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Lines()
}

func (c *Client) Shapes() []models.Shape {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Shapes()
}

func (c *Client) Images() []models.Image {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Images()
}

func (c *Client) Texts() []models.Text {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Texts()
}

func (c *Client) Cursors() map[string]models.Cursor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Cursors()
}

// Version increases whenever the document or the cursor table changes.
func (c *Client) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Version()
}

func (c *Client) HistoryStep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Step()
}

func (c *Client) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.CanUndo()
}

func (c *Client) CanRedo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.CanRedo()
}

// Strokes

// BeginLine starts a stroke at (x, y) and publishes it.
func (c *Client) BeginLine(x, y float64) models.Stroke {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	line := models.Stroke{
		ID:          ids.NewID(),
		Points:      []float64{x, y},
		Color:       c.color,
		StrokeWidth: c.strokeWidth,
	}
	c.local(board.Created(line))
	return line
}

// AppendPoints extends the stroke being drawn by one or more x,y pairs and
// publishes the whole point list.
func (c *Client) AppendPoints(id string, xy ...float64) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	c.mu.Lock()
	line, err := board.AppendPoints(c.store, id, xy...)
	fn := c.onChange
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.notify(fn)
	c.gw.Publish(board.Updated(line))
	return nil
}

// EndLine finishes a stroke and checkpoints.
func (c *Client) EndLine(id string) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.store.Line(id); !ok {
		return fmt.Errorf("end line %s: %w", id, ErrUnknownElement)
	}
	c.checkpointLocked()
	return nil
}

// Shapes

// BeginShape starts a zero-sized shape anchored at (x, y).
func (c *Client) BeginShape(kind models.ShapeKind, x, y float64) (models.Shape, error) {
	if !kind.Valid() {
		return models.Shape{}, fmt.Errorf("begin shape: unknown kind %q", kind)
	}

	c.outMu.Lock()
	defer c.outMu.Unlock()

	shape := models.Shape{ID: ids.NewID(), Kind: kind, X: x, Y: y, Color: c.color}
	c.local(board.Created(shape))
	return shape, nil
}

// ResizeShape drags a shape out to the offset (dx, dy) from its anchor. A
// rectangle takes it as width and height, a circle as its radius vector.
// Negative extents are allowed until EndShape.
func (c *Client) ResizeShape(id string, dx, dy float64) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	c.mu.Lock()
	shape, ok := c.store.Shape(id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("resize shape %s: %w", id, ErrUnknownElement)
	}

	switch shape.Kind {
	case models.ShapeRect:
		shape.Width, shape.Height = dx, dy
	case models.ShapeCircle:
		shape.Radius = math.Hypot(dx, dy)
	}
	c.local(board.Updated(shape))
	return nil
}

// EndShape normalises the geometry of a dragged shape and checkpoints.
func (c *Client) EndShape(id string) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	c.mu.Lock()
	shape, ok := c.store.Shape(id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("end shape %s: %w", id, ErrUnknownElement)
	}

	if norm := shape.Normalize(); norm != shape {
		c.local(board.Updated(norm))
	}
	c.Checkpoint()
	return nil
}

// Transforms and removal

// TransformElement sets the affine transform of any element and publishes
// it. CommitTransform ends the gesture.
func (c *Client) TransformElement(col models.Collection, id string, t models.Transform) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	c.mu.Lock()
	el, ok := c.store.Element(col, id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("transform %s %s: %w", col, id, ErrUnknownElement)
	}

	switch v := el.(type) {
	case models.Stroke:
		v.Transform = &t
		el = v
	case models.Shape:
		v.Transform = &t
		el = v
	case models.Image:
		v.Transform = t
		el = v
	case models.Text:
		v.Transform = &t
		el = v
	}
	c.local(board.Updated(el))
	return nil
}

// CommitTransform checkpoints the end of a transform gesture.
func (c *Client) CommitTransform() {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.Checkpoint()
}

// RemoveElement deletes an element of any kind and checkpoints.
func (c *Client) RemoveElement(col models.Collection, id string) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	if !c.local(board.Removed(col, id)) {
		return fmt.Errorf("remove %s %s: %w", col, id, ErrUnknownElement)
	}
	c.Checkpoint()
	return nil
}

// Text

// CreateText opens a new empty text box at (x, y). It is published at once
// but only checkpointed by CommitText.
func (c *Client) CreateText(x, y float64) models.Text {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	text := models.Text{
		ID:       ids.NewID(),
		X:        x,
		Y:        y,
		Color:    c.color,
		FontSize: defaultFontSize,
		IsNew:    true,
	}
	c.local(board.Created(text))
	return text
}

// EditText replaces the content of a text box.
func (c *Client) EditText(id, content string) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	c.mu.Lock()
	text, ok := c.store.Text(id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("edit text %s: %w", id, ErrUnknownElement)
	}

	text.Content = content
	c.local(board.Updated(text))
	return nil
}

// CommitText ends editing. A box left empty is removed; either way the
// result is checkpointed.
func (c *Client) CommitText(id string) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	c.mu.Lock()
	text, ok := c.store.Text(id)
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("commit text %s: %w", id, ErrUnknownElement)
	}

	if strings.TrimSpace(text.Content) == "" {
		c.local(board.Removed(models.CollectionTexts, id))
	} else {
		text.IsNew = false
		c.local(board.Updated(text))
	}
	c.Checkpoint()
	return nil
}

// Images

// PasteImage places an image with its top-left corner at (x, y) and
// publishes it, then waits out the paste commit delay before checkpointing.
// Other entry points wait behind it.
func (c *Client) PasteImage(ctx context.Context, src string, x, y, width, height float64) (models.Image, error) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	img := models.Image{
		ID:        ids.NewID(),
		Src:       src,
		Width:     width,
		Height:    height,
		Transform: models.Transform{X: x, Y: y, ScaleX: 1, ScaleY: 1},
	}
	c.local(board.Created(img))

	if c.pasteDelay > 0 {
		timer := time.NewTimer(c.pasteDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return img, fmt.Errorf("paste image %s: %w", img.ID, ctx.Err())
		}
	}
	c.Checkpoint()
	return img, nil
}

// Presence

// MoveCursor broadcasts our pointer position. It never touches the document.
func (c *Client) MoveCursor(x, y float64) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.gw.Publish(board.CursorMoved(models.Cursor{ID: c.id, X: x, Y: y, Color: c.color}))
}

// History

// Checkpoint records the current document as a new undo step, discarding
// anything that could have been redone.
func (c *Client) Checkpoint() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkpointLocked()
}

func (c *Client) checkpointLocked() {
	c.history.Checkpoint(c.store.Snapshot())
	c.logger.Debug().Int("step", c.history.Step()).Msg("checkpoint")
}

// Undo restores the previous snapshot and broadcasts it. It returns false at
// the oldest step.
func (c *Client) Undo() bool {
	return c.travel(c.history.Undo, "undo")
}

// Redo restores the next snapshot and broadcasts it. It returns false at the
// newest step.
func (c *Client) Redo() bool {
	return c.travel(c.history.Redo, "redo")
}

func (c *Client) travel(move func() (models.Snapshot, bool), op string) bool {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	c.mu.Lock()
	snap, ok := move()
	if ok {
		c.store.Restore(snap)
	}
	step := c.history.Step()
	fn := c.onChange
	c.mu.Unlock()

	if !ok {
		return false
	}
	c.logger.Debug().Str("op", op).Int("step", step).Msg("history moved")
	c.notify(fn)
	c.gw.Publish(board.StateSync(snap.Sync()))
	return true
}

// local applies ev to the store, then publishes it. Callers hold outMu.
func (c *Client) local(ev board.Event) bool {
	c.mu.Lock()
	changed := board.Apply(c.store, ev)
	fn := c.onChange
	c.mu.Unlock()

	if !changed {
		return false
	}
	c.notify(fn)
	c.gw.Publish(ev)
	return true
}

func (c *Client) notify(fn func()) {
	if fn != nil {
		fn()
	}
}
