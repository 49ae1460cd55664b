package editor

import "github.com/procertify/studio/backend-go/internal/document"

// Rect represents an axis-aligned box in logical units.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Contains checks if a point is inside the rect.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// IsEmpty checks if the rect has zero or negative area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Union returns the smallest rect containing both rects.
func (r Rect) Union(other Rect) Rect {
	if r.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return r
	}

	minX := min(r.X, other.X)
	minY := min(r.Y, other.Y)
	maxX := max(r.X+r.Width, other.X+other.Width)
	maxY := max(r.Y+r.Height, other.Y+other.Height)

	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Affordance geometry, in logical units.
const (
	handleSize   = 20.0
	handleInset  = 12.0 // handle overlaps the corner by this much
	deleteSize   = 22.0
	deleteOffset = 32.0 // distance from the element's top to the control's top
)

// ElementBounds is the element's primary box.
func ElementBounds(el document.Element) Rect {
	return Rect{X: el.X, Y: el.Y, Width: el.Width, Height: el.Height}
}

// SecondaryBounds is the second option box of a choice box. Both boxes share
// the element's width and height.
func SecondaryBounds(el document.Element) Rect {
	sx, sy := document.DefaultSecondary(el)
	return Rect{X: sx, Y: sy, Width: el.Width, Height: el.Height}
}

// HandleBounds is the resize handle at the bottom-right corner.
func HandleBounds(el document.Element) Rect {
	return Rect{
		X:      el.X + el.Width - handleInset,
		Y:      el.Y + el.Height - handleInset,
		Width:  handleSize,
		Height: handleSize,
	}
}

// DeleteBounds is the delete control above the top-right corner.
func DeleteBounds(el document.Element) Rect {
	return Rect{
		X:      el.X + el.Width - deleteSize,
		Y:      el.Y - deleteOffset,
		Width:  deleteSize,
		Height: deleteSize,
	}
}

// Part identifies what a pointer landed on.
type Part int

const (
	PartBackground Part = iota
	PartBody
	PartSecondary
	PartResizeHandle
	PartDelete
)

func (p Part) String() string {
	switch p {
	case PartBody:
		return "body"
	case PartSecondary:
		return "secondary"
	case PartResizeHandle:
		return "handle"
	case PartDelete:
		return "delete"
	default:
		return "background"
	}
}

// Hit is the result of a hit test.
type Hit struct {
	ElementID string `json:"elementId,omitempty"`
	Part      Part   `json:"part"`
}

// HitTest finds what lies under logical point p. The selected element draws
// above all others and is the only one with a handle and delete control, so
// it is tested first; the rest are tested front to back.
func HitTest(elements []document.Element, selectedID string, p Point) Hit {
	if selectedID != "" {
		for i := range elements {
			if elements[i].ID != selectedID {
				continue
			}
			el := elements[i]
			if DeleteBounds(el).Contains(p) {
				return Hit{ElementID: el.ID, Part: PartDelete}
			}
			if HandleBounds(el).Contains(p) {
				return Hit{ElementID: el.ID, Part: PartResizeHandle}
			}
			if part := hitElement(el, p); part != PartBackground {
				return Hit{ElementID: el.ID, Part: part}
			}
			break
		}
	}

	for i := len(elements) - 1; i >= 0; i-- {
		el := elements[i]
		if el.ID == selectedID {
			continue
		}
		if part := hitElement(el, p); part != PartBackground {
			return Hit{ElementID: el.ID, Part: part}
		}
	}

	return Hit{Part: PartBackground}
}

func hitElement(el document.Element, p Point) Part {
	if el.Type == document.ElementChoiceBox && SecondaryBounds(el).Contains(p) {
		return PartSecondary
	}
	if ElementBounds(el).Contains(p) {
		return PartBody
	}
	return PartBackground
}
