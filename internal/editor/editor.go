package editor

import (
	"encoding/json"
	"fmt"

	"github.com/procertify/studio/backend-go/internal/document"
)

// Listener is notified of every change the editor commits, so the
// collaborator that owns persistent state can record it.
type Listener interface {
	OnSelect(id string)
	OnUpdateElement(id string, patch document.ElementPatch)
	OnDeleteElement(id string)
}

// CreateListener is implemented by listeners that also want to hear about
// elements added through AddElement.
type CreateListener interface {
	OnCreateElement(el document.Element)
}

// PointerCapture routes global pointer input to the editor while a session
// is active. The returned func releases the capture.
type PointerCapture interface {
	Capture() (release func())
}

// Options wires the editor to its host. Every field is optional.
type Options struct {
	Renderer ArtifactRenderer
	Frames   Scheduler
	Capture  PointerCapture
	Listener Listener
}

// Editor is the canvas editor for one side of a certificate. It owns the
// element store, the interaction controller and the artifact cache, and is
// driven from a single UI goroutine.
type Editor struct {
	opts Options

	store     *Store
	ctrl      *Controller
	artifacts *ArtifactCache
	frame     *FrameSlot

	// Canvas state
	bgURL  string
	width  int
	height int

	viewport Viewport
	readOnly bool
	selected string

	ensuredStore   *Store
	ensuredVersion uint64
	dirty          bool
	closed         bool
}

// New creates an editor with an empty side.
func New(opts Options) *Editor {
	e := &Editor{
		opts:      opts,
		store:     NewStore(nil),
		artifacts: NewArtifactCache(opts.Renderer),
		frame:     NewFrameSlot(opts.Frames),
		viewport:  Viewport{Scale: 1},
		dirty:     true,
	}
	e.ctrl = NewController(e.store, editorHost{e})
	return e
}

// --- Commands ---

// LoadSide replaces the edited side with the given one. Any active session
// ends and the selection is cleared.
func (e *Editor) LoadSide(side document.Side, width, height int) {
	e.ctrl.End()
	e.frame.Cancel()

	e.store = NewStore(side.Elements)
	e.ctrl = NewController(e.store, editorHost{e})
	e.bgURL = side.BgURL
	e.width = width
	e.height = height
	e.selected = ""
	e.dirty = true

	e.ensureArtifacts()
}

// LoadSideJSON decodes a side from JSON and loads it.
func (e *Editor) LoadSideJSON(jsonData string, width, height int) error {
	var side document.Side
	if err := json.Unmarshal([]byte(jsonData), &side); err != nil {
		return fmt.Errorf("decode side: %w", err)
	}
	e.LoadSide(side, width, height)
	return nil
}

// SetViewport sets the screen origin of the canvas and the zoom factor.
// It may change during a session; the next sample uses the new values.
func (e *Editor) SetViewport(originX, originY, scale float64) {
	e.viewport = Viewport{Origin: Point{originX, originY}, Scale: scale}
	e.dirty = true
}

// SetScale changes only the zoom factor.
func (e *Editor) SetScale(scale float64) {
	e.viewport.Scale = scale
	e.dirty = true
}

// SetReadOnly toggles view mode. Entering read-only ends any session.
func (e *Editor) SetReadOnly(readOnly bool) {
	if readOnly {
		e.frame.Cancel()
		e.ctrl.End()
	}
	e.readOnly = readOnly
	e.dirty = true
}

// PointerDown handles a primary-button press at a screen point.
func (e *Editor) PointerDown(x, y float64) {
	if e.closed || e.readOnly || e.ctrl.State() != StateIdle {
		return
	}

	screen := Point{x, y}
	p := e.viewport.ToLogical(screen)
	hit := HitTest(e.store.List(), e.selected, p)
	// The selected element's affordances may overhang the canvas edge.
	if !e.onCanvas(p) && hit.Part != PartDelete && hit.Part != PartResizeHandle {
		return
	}

	switch hit.Part {
	case PartDelete:
		e.DeleteElement(hit.ElementID)
	case PartResizeHandle:
		e.ctrl.BeginResize(hit.ElementID, screen)
	case PartSecondary:
		e.ctrl.BeginDrag(hit.ElementID, DragSecondary, screen, e.viewport)
	case PartBody:
		e.ctrl.BeginDrag(hit.ElementID, DragMain, screen, e.viewport)
	default:
		e.Select("")
	}
}

func (e *Editor) onCanvas(p Point) bool {
	if e.width <= 0 || e.height <= 0 {
		return true
	}
	return p.X >= 0 && p.Y >= 0 && p.X <= float64(e.width) && p.Y <= float64(e.height)
}

// PointerMove records a pointer sample. Only the latest sample per frame is
// applied; the viewport is read when the sample runs, not when it arrives.
func (e *Editor) PointerMove(x, y float64) {
	if e.closed || e.ctrl.State() == StateIdle {
		return
	}
	screen := Point{x, y}
	e.frame.Schedule(func() {
		e.ctrl.Move(screen, e.viewport)
	})
}

// PointerUp ends the active session after applying the last sample.
func (e *Editor) PointerUp() {
	if e.ctrl.State() == StateIdle {
		return
	}
	e.frame.Flush()
	e.ctrl.End()
	e.dirty = true
}

// Tick runs once per display frame: it applies the coalesced pointer
// sample, starts renders for new QR keys and publishes finished ones. It
// reports whether the canvas needs to be redrawn.
func (e *Editor) Tick() bool {
	if e.closed {
		return false
	}
	e.frame.Flush()
	e.ensureArtifacts()
	if e.artifacts.Publish() > 0 {
		e.dirty = true
	}
	return e.dirty
}

func (e *Editor) ensureArtifacts() {
	v := e.store.Version()
	if e.store == e.ensuredStore && v == e.ensuredVersion {
		return
	}
	e.artifacts.Ensure(e.store.List())
	e.ensuredStore = e.store
	e.ensuredVersion = v
}

// Select sets the selection ("" deselects) and notifies the listener.
func (e *Editor) Select(id string) {
	if id != "" {
		if _, ok := e.store.Get(id); !ok {
			return
		}
	}
	e.selected = id
	e.dirty = true
	if e.opts.Listener != nil {
		e.opts.Listener.OnSelect(id)
	}
}

// UpdateElement applies a property edit through the same contract as a
// drag step. Unknown ids are ignored.
func (e *Editor) UpdateElement(id string, patch document.ElementPatch) {
	if !e.store.Update(id, patch) {
		return
	}
	e.dirty = true
	if e.opts.Listener != nil {
		e.opts.Listener.OnUpdateElement(id, patch)
	}
}

// AddElement inserts a new element with palette defaults and selects it.
func (e *Editor) AddElement(t document.ElementType, x, y float64) (string, error) {
	if !t.Valid() {
		return "", fmt.Errorf("unknown element type %q", t)
	}
	el := document.NewElement(t, x, y)
	e.store.Insert(el, nil)
	e.dirty = true
	if cl, ok := e.opts.Listener.(CreateListener); ok {
		cl.OnCreateElement(el.Clone())
	}
	e.Select(el.ID)
	return el.ID, nil
}

// InsertElement adds an element created elsewhere, such as by a
// collaborator. Duplicate ids are ignored.
func (e *Editor) InsertElement(el document.Element, index *int) bool {
	if !e.store.Insert(el, index) {
		return false
	}
	e.dirty = true
	return true
}

// DeleteElement removes an element and clears the selection if it pointed
// at it. An active session on that element degrades to no-ops until pointer-up.
func (e *Editor) DeleteElement(id string) {
	if !e.store.Delete(id) {
		return
	}
	if e.selected == id {
		e.selected = ""
	}
	e.dirty = true
	if e.opts.Listener != nil {
		e.opts.Listener.OnDeleteElement(id)
	}
}

// DeleteSelected removes the selected element, if any.
func (e *Editor) DeleteSelected() {
	if e.selected != "" {
		e.DeleteElement(e.selected)
	}
}

// ToggleChoice selects option 1 or 2 of a choice box, or clears it when that
// option is already selected.
func (e *Editor) ToggleChoice(id string, option int) {
	el, ok := e.store.Get(id)
	if !ok || el.Type != document.ElementChoiceBox || (option != 1 && option != 2) {
		return
	}
	content := document.ChoiceLabels(el)[option-1]
	if document.ChoiceSelection(el) == option {
		content = ""
	}
	e.UpdateElement(id, document.ElementPatch{Content: document.String(content)})
}

// Close tears the editor down: the session ends, pending frames are dropped
// and in-flight renders are abandoned.
func (e *Editor) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.frame.Cancel()
	e.ctrl.End()
	e.artifacts.Close()
}

// --- Queries ---

// Scene is everything the host needs to draw the canvas.
type Scene struct {
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	BgURL     string          `json:"bgUrl"`
	Viewport  []float64       `json:"viewport"`
	ReadOnly  bool            `json:"readOnly"`
	Visuals   []Visual        `json:"visuals"`
	Selection *SelectionFrame `json:"selection,omitempty"`
}

// SelectionFrame places the selected element's outline and affordances in
// screen pixels, so overlays can be drawn outside the canvas.
type SelectionFrame struct {
	ElementID string `json:"elementId"`
	Bounds    Rect   `json:"bounds"`
	Handle    Rect   `json:"handle"`
	Delete    Rect   `json:"delete"`
}

// Scene projects the current state.
func (e *Editor) Scene() Scene {
	e.dirty = false
	m := e.viewport.Matrix()
	return Scene{
		Width:     e.width,
		Height:    e.height,
		BgURL:     e.bgURL,
		Viewport:  m.ToSlice(),
		ReadOnly:  e.readOnly,
		Visuals:   ProjectAll(e.store.List(), e.selected, e.readOnly, e.artifacts),
		Selection: e.selectionFrame(m),
	}
}

func (e *Editor) selectionFrame(m Matrix2D) *SelectionFrame {
	if e.readOnly || e.selected == "" {
		return nil
	}
	el, ok := e.store.Get(e.selected)
	if !ok {
		return nil
	}

	bounds := ElementBounds(el)
	if el.Type == document.ElementChoiceBox {
		bounds = bounds.Union(SecondaryBounds(el))
	}
	return &SelectionFrame{
		ElementID: el.ID,
		Bounds:    m.TransformRect(bounds),
		Handle:    m.TransformRect(HandleBounds(el)),
		Delete:    m.TransformRect(DeleteBounds(el)),
	}
}

// Render returns the scene as JSON.
func (e *Editor) Render() string {
	data, err := json.Marshal(e.Scene())
	if err != nil {
		return "{}"
	}
	return string(data)
}

// HitTest reports what lies under a screen point.
func (e *Editor) HitTest(x, y float64) Hit {
	return HitTest(e.store.List(), e.selected, e.viewport.ToLogical(Point{x, y}))
}

// Side returns the edited side.
func (e *Editor) Side() document.Side {
	return document.Side{BgURL: e.bgURL, Elements: e.store.List()}
}

// Element returns one element by id.
func (e *Editor) Element(id string) (document.Element, bool) {
	return e.store.Get(id)
}

func (e *Editor) Selection() string  { return e.selected }
func (e *Editor) State() State       { return e.ctrl.State() }
func (e *Editor) ReadOnly() bool     { return e.readOnly }
func (e *Editor) Viewport() Viewport { return e.viewport }

// editorHost adapts the editor to the controller's Host.
type editorHost struct{ e *Editor }

func (h editorHost) OnSelect(id string) { h.e.Select(id) }

func (h editorHost) OnUpdateElement(id string, patch document.ElementPatch) {
	h.e.UpdateElement(id, patch)
}

func (h editorHost) OnDeleteElement(id string) { h.e.DeleteElement(id) }

func (h editorHost) CapturePointer() func() {
	if h.e.opts.Capture == nil {
		return func() {}
	}
	return h.e.opts.Capture.Capture()
}
