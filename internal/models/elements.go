package models

import "slices"

/*
LEARNING: FLAT DOCUMENT MODEL

Every element kind lives in one flat document. There is no grouping, no
z-index tree and no parent/child relation. Each element is addressed only by
its id, which is what makes whole-object replacement by id a workable merge
rule.

  Collection  Wire name  Element
  lines       line       Stroke
  shapes      shape      Shape
  images      image      Image
  texts       text       Text
*/

// Collection identifies one of the four durable element collections.
type Collection string

const (
	CollectionLines  Collection = "lines"
	CollectionShapes Collection = "shapes"
	CollectionImages Collection = "images"
	CollectionTexts  Collection = "texts"
)

// Collections lists the durable collections in document order.
var Collections = []Collection{CollectionLines, CollectionShapes, CollectionImages, CollectionTexts}

// Element is implemented by every durable element kind.
type Element interface {
	ElementID() string
	Collection() Collection
}

// Transform is the affine transform applied to an element after it was drawn.
type Transform struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
	Rotation float64 `json:"rotation"`
}

// IdentityTransform returns a transform that leaves an element where it is.
func IdentityTransform() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

func cloneTransform(t *Transform) *Transform {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Stroke is a freehand line. Points is a flat [x0, y0, x1, y1, ...] list.
type Stroke struct {
	ID          string     `json:"id"`
	Points      []float64  `json:"points"`
	Color       string     `json:"color"`
	StrokeWidth float64    `json:"strokeWidth"`
	Transform   *Transform `json:"transform,omitempty"`
}

func (s Stroke) ElementID() string      { return s.ID }
func (s Stroke) Collection() Collection { return CollectionLines }

// Clone returns a copy that shares no memory with s.
func (s Stroke) Clone() Stroke {
	s.Points = slices.Clone(s.Points)
	s.Transform = cloneTransform(s.Transform)
	return s
}

// ShapeKind is the geometry family of a Shape.
type ShapeKind string

const (
	ShapeRect   ShapeKind = "rect"
	ShapeCircle ShapeKind = "circle"
)

// Valid reports whether k is a known shape kind.
func (k ShapeKind) Valid() bool {
	return k == ShapeRect || k == ShapeCircle
}

// Shape is a rectangle (X, Y, Width, Height) or a circle (X, Y, Radius).
type Shape struct {
	ID        string     `json:"id"`
	Kind      ShapeKind  `json:"kind"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	Width     float64    `json:"width,omitempty"`
	Height    float64    `json:"height,omitempty"`
	Radius    float64    `json:"radius,omitempty"`
	Color     string     `json:"color"`
	Transform *Transform `json:"transform,omitempty"`
}

func (s Shape) ElementID() string      { return s.ID }
func (s Shape) Collection() Collection { return CollectionShapes }

func (s Shape) Clone() Shape {
	s.Transform = cloneTransform(s.Transform)
	return s
}

// Normalize flips negative extents produced by dragging up or left so the
// geometry is non-negative once drawing completes.
func (s Shape) Normalize() Shape {
	if s.Width < 0 {
		s.X += s.Width
		s.Width = -s.Width
	}
	if s.Height < 0 {
		s.Y += s.Height
		s.Height = -s.Height
	}
	if s.Radius < 0 {
		s.Radius = -s.Radius
	}
	return s
}

// Image is a pasted bitmap. Src is a data URI or a URL.
type Image struct {
	ID        string    `json:"id"`
	Src       string    `json:"src"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	Transform Transform `json:"transform"`
}

func (i Image) ElementID() string      { return i.ID }
func (i Image) Collection() Collection { return CollectionImages }

func (i Image) Clone() Image { return i }

// Text is a text box. IsNew stays true until the first commit.
type Text struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	Color     string     `json:"color"`
	FontSize  float64    `json:"fontSize,omitempty"`
	IsNew     bool       `json:"isNew,omitempty"`
	Transform *Transform `json:"transform,omitempty"`
}

func (t Text) ElementID() string      { return t.ID }
func (t Text) Collection() Collection { return CollectionTexts }

func (t Text) Clone() Text {
	t.Transform = cloneTransform(t.Transform)
	return t
}

// Cursor is the live pointer of a remote client. ID is the owning client's
// identity, not an element id.
type Cursor struct {
	ID    string  `json:"id"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Color string  `json:"color"`
}
