package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"collab-board/internal/models"
	"collab-board/internal/whiteboard"
)

var errQuit = errors.New("quit")

const usage = `commands:
  join [room]                 join a room, blank for a new one
  draw x y [x y ...]          draw a freehand line
  rect x y w h                draw a rectangle
  circle x y r                draw a circle
  text x y words...           place a text label
  paste src x y w h           paste an image
  move <kind> id x y          move an element (kind: line, shape, image, text)
  erase <kind> id             remove an element
  cursor x y                  move the presence cursor
  undo | redo                 walk the history
  dump                        print the document as JSON
  status                      connection, room and history position
  leave                       leave the room
  quit`

// shell runs boardctl commands against one whiteboard client.
type shell struct {
	client *whiteboard.Client
	out    io.Writer
}

func (s *shell) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		fmt.Fprintln(s.out, usage)
		return nil

	case "join":
		room := ""
		if len(args) > 0 {
			room = args[0]
		}
		got, err := s.client.Join(ctx, room)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "joined %s\n", got)
		return nil

	case "draw":
		xy, err := floats(args, -1)
		if err != nil {
			return err
		}
		if len(xy) < 2 || len(xy)%2 != 0 {
			return fmt.Errorf("draw needs pairs of coordinates")
		}
		stroke := s.client.BeginLine(xy[0], xy[1])
		if len(xy) > 2 {
			if err := s.client.AppendPoints(stroke.ID, xy[2:]...); err != nil {
				return err
			}
		}
		if err := s.client.EndLine(stroke.ID); err != nil {
			return err
		}
		fmt.Fprintln(s.out, stroke.ID)
		return nil

	case "rect", "circle":
		n := 4
		if cmd == "circle" {
			n = 3
		}
		v, err := floats(args, n)
		if err != nil {
			return err
		}
		shape, err := s.client.BeginShape(models.ShapeKind(cmd), v[0], v[1])
		if err != nil {
			return err
		}
		dx, dy := v[2], 0.0
		if cmd == "rect" {
			dy = v[3]
		}
		if err := s.client.ResizeShape(shape.ID, dx, dy); err != nil {
			return err
		}
		if err := s.client.EndShape(shape.ID); err != nil {
			return err
		}
		fmt.Fprintln(s.out, shape.ID)
		return nil

	case "text":
		if len(args) < 3 {
			return fmt.Errorf("usage: text x y words...")
		}
		v, err := floats(args[:2], 2)
		if err != nil {
			return err
		}
		t := s.client.CreateText(v[0], v[1])
		if err := s.client.EditText(t.ID, strings.Join(args[2:], " ")); err != nil {
			return err
		}
		if err := s.client.CommitText(t.ID); err != nil {
			return err
		}
		fmt.Fprintln(s.out, t.ID)
		return nil

	case "paste":
		if len(args) != 5 {
			return fmt.Errorf("usage: paste src x y w h")
		}
		v, err := floats(args[1:], 4)
		if err != nil {
			return err
		}
		img, err := s.client.PasteImage(ctx, args[0], v[0], v[1], v[2], v[3])
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, img.ID)
		return nil

	case "move":
		if len(args) != 4 {
			return fmt.Errorf("usage: move <kind> id x y")
		}
		col, err := parseCollection(args[0])
		if err != nil {
			return err
		}
		v, err := floats(args[2:], 2)
		if err != nil {
			return err
		}
		t := models.Transform{X: v[0], Y: v[1], ScaleX: 1, ScaleY: 1}
		if err := s.client.TransformElement(col, args[1], t); err != nil {
			return err
		}
		s.client.CommitTransform()
		return nil

	case "erase":
		if len(args) != 2 {
			return fmt.Errorf("usage: erase <kind> id")
		}
		col, err := parseCollection(args[0])
		if err != nil {
			return err
		}
		return s.client.RemoveElement(col, args[1])

	case "cursor":
		v, err := floats(args, 2)
		if err != nil {
			return err
		}
		s.client.MoveCursor(v[0], v[1])
		return nil

	case "undo":
		if !s.client.Undo() {
			fmt.Fprintln(s.out, "nothing to undo")
		}
		return nil

	case "redo":
		if !s.client.Redo() {
			fmt.Fprintln(s.out, "nothing to redo")
		}
		return nil

	case "dump":
		enc := json.NewEncoder(s.out)
		enc.SetIndent("", "  ")
		return enc.Encode(s.client.Snapshot().Sync())

	case "status":
		fmt.Fprintf(s.out, "client=%s room=%s state=%s step=%d cursors=%d\n",
			s.client.ClientID(), s.client.RoomID(), s.client.State(),
			s.client.HistoryStep(), len(s.client.Cursors()))
		return nil

	case "leave":
		return s.client.Leave()

	case "quit", "exit":
		return errQuit
	}
	return fmt.Errorf("unknown command %q, try help", cmd)
}

// floats parses args as numbers; n < 0 accepts any count.
func floats(args []string, n int) ([]float64, error) {
	if n >= 0 && len(args) != n {
		return nil, fmt.Errorf("expected %d numbers, got %d", n, len(args))
	}
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		out[i] = f
	}
	return out, nil
}

func parseCollection(name string) (models.Collection, error) {
	c := models.Collection(strings.ToLower(name))
	if !strings.HasSuffix(string(c), "s") {
		c += "s"
	}
	for _, known := range models.Collections {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown element kind %q", name)
}
