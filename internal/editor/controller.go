package editor

import (
	"github.com/procertify/studio/backend-go/internal/document"
)

// State is the controller's session state.
type State int

const (
	StateIdle State = iota
	StateDragging
	StateResizing
)

func (s State) String() string {
	switch s {
	case StateDragging:
		return "dragging"
	case StateResizing:
		return "resizing"
	default:
		return "idle"
	}
}

// DragMode selects which position a drag moves.
type DragMode int

const (
	// DragMain moves the element's primary position. A choice box's second
	// option box follows by the same delta.
	DragMain DragMode = iota
	// DragSecondary moves only a choice box's second option box.
	DragSecondary
)

// Host receives the controller's side effects. The host owns the elements;
// the controller only reports what should change.
type Host interface {
	// OnSelect is called with the selected id, or "" to deselect.
	OnSelect(id string)
	OnUpdateElement(id string, patch document.ElementPatch)
	OnDeleteElement(id string)
	// CapturePointer routes all pointer input to the controller until the
	// returned release func is called.
	CapturePointer() (release func())
}

// ElementSource is read by the controller on every sample.
type ElementSource interface {
	Get(id string) (document.Element, bool)
}

type session struct {
	state    State
	targetID string

	// Dragging
	mode DragMode
	grab Point

	// Resizing
	startPointer  Point
	startWidth    float64
	startHeight   float64
	startFontSize float64
}

// Controller is the drag/resize state machine. It holds the authoritative
// session state and reads element geometry fresh on every sample.
type Controller struct {
	elements ElementSource
	host     Host

	s       session
	release func()
}

func NewController(elements ElementSource, host Host) *Controller {
	return &Controller{elements: elements, host: host}
}

func (c *Controller) State() State      { return c.s.state }
func (c *Controller) Target() string    { return c.s.targetID }
func (c *Controller) Mode() DragMode    { return c.s.mode }
func (c *Controller) GrabOffset() Point { return c.s.grab }

// BeginDrag starts a drag session on element id from screen point screen.
// It selects the element and captures the pointer. It does nothing unless
// the controller is idle and the element exists.
func (c *Controller) BeginDrag(id string, mode DragMode, screen Point, vp Viewport) bool {
	if c.s.state != StateIdle {
		return false
	}
	el, ok := c.elements.Get(id)
	if !ok {
		return false
	}
	if el.Type != document.ElementChoiceBox {
		mode = DragMain
	}

	pointer := vp.ToLogical(screen)
	var anchor Point
	switch mode {
	case DragSecondary:
		sx, sy := document.DefaultSecondary(el)
		anchor = Point{sx, sy}
	default:
		anchor = Point{el.X, el.Y}
	}

	c.s = session{
		state:    StateDragging,
		targetID: id,
		mode:     mode,
		grab:     pointer.Sub(anchor),
	}
	c.host.OnSelect(id)
	c.acquire()
	return true
}

// BeginResize starts a resize session from the element's handle. The start
// pointer stays in screen space; deltas are scaled on every move. A start
// size below MinElementSize is taken as the floor.
func (c *Controller) BeginResize(id string, screen Point) bool {
	if c.s.state != StateIdle {
		return false
	}
	el, ok := c.elements.Get(id)
	if !ok {
		return false
	}

	c.s = session{
		state:         StateResizing,
		targetID:      id,
		startPointer:  screen,
		startWidth:    max(document.MinElementSize, el.Width),
		startHeight:   max(document.MinElementSize, el.Height),
		startFontSize: el.EffectiveFontSize(),
	}
	c.host.OnSelect(id)
	c.acquire()
	return true
}

// Move applies one pointer sample to the active session.
func (c *Controller) Move(screen Point, vp Viewport) {
	switch c.s.state {
	case StateDragging:
		c.drag(screen, vp)
	case StateResizing:
		c.resize(screen, vp)
	}
}

func (c *Controller) drag(screen Point, vp Viewport) {
	el, ok := c.elements.Get(c.s.targetID)
	if !ok {
		return
	}

	next := vp.ToLogical(screen).Sub(c.s.grab)

	var patch document.ElementPatch
	if c.s.mode == DragSecondary {
		patch.SecondaryX = document.Float(next.X)
		patch.SecondaryY = document.Float(next.Y)
	} else {
		patch.X = document.Float(next.X)
		patch.Y = document.Float(next.Y)
		if el.Type == document.ElementChoiceBox {
			sx, sy := document.DefaultSecondary(el)
			patch.SecondaryX = document.Float(sx + next.X - el.X)
			patch.SecondaryY = document.Float(sy + next.Y - el.Y)
		}
	}

	c.host.OnUpdateElement(c.s.targetID, patch)
}

func (c *Controller) resize(screen Point, vp Viewport) {
	el, ok := c.elements.Get(c.s.targetID)
	if !ok {
		return
	}

	d := vp.Delta(c.s.startPointer, screen)
	width := max(document.MinElementSize, c.s.startWidth+d.X)
	height := max(document.MinElementSize, c.s.startHeight+d.Y)

	patch := document.ElementPatch{
		Width:  document.Float(width),
		Height: document.Float(height),
	}
	// Font follows the horizontal ratio only. A degenerate start width
	// leaves the font where it was.
	if el.Type.TextBearing() && c.s.startWidth > 0 {
		patch.FontSize = document.Float(max(document.MinFontSize, c.s.startFontSize*(width/c.s.startWidth)))
	}

	c.host.OnUpdateElement(c.s.targetID, patch)
}

// End finishes the active session, wherever the pointer is. It is safe to
// call when idle.
func (c *Controller) End() {
	c.s = session{}
	c.releaseCapture()
}

func (c *Controller) acquire() {
	c.releaseCapture()
	c.release = c.host.CapturePointer()
}

func (c *Controller) releaseCapture() {
	if c.release == nil {
		return
	}
	release := c.release
	c.release = nil
	release()
}
