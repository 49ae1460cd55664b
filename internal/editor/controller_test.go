package editor

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/procertify/studio/backend-go/internal/document"
)

// storeHost applies controller callbacks to a Store and records them.
type storeHost struct {
	store    *Store
	selected []string
	updates  []document.ElementPatch
	deletes  []string
	captures int
	releases int
}

func newStoreHost(elements ...document.Element) *storeHost {
	return &storeHost{store: NewStore(elements)}
}

func (h *storeHost) OnSelect(id string) { h.selected = append(h.selected, id) }

func (h *storeHost) OnUpdateElement(id string, patch document.ElementPatch) {
	h.updates = append(h.updates, patch)
	h.store.Update(id, patch)
}

func (h *storeHost) OnDeleteElement(id string) {
	h.deletes = append(h.deletes, id)
	h.store.Delete(id)
}

func (h *storeHost) CapturePointer() func() {
	h.captures++
	return func() { h.releases++ }
}

func (h *storeHost) get(t *testing.T, id string) document.Element {
	t.Helper()
	el, ok := h.store.Get(id)
	if !ok {
		t.Fatalf("element %q missing", id)
	}
	return el
}

var unitViewport = Viewport{Scale: 1}

func box(id string, t document.ElementType, x, y, w, h float64) document.Element {
	return document.Element{ID: id, Type: t, X: x, Y: y, Width: w, Height: h}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestDragKeepsGrabOffset(t *testing.T) {
	host := newStoreHost(box("a", document.ElementImage, 100, 100, 50, 50))
	c := NewController(host.store, host)

	if !c.BeginDrag("a", DragMain, Point{120, 130}, unitViewport) {
		t.Fatal("BeginDrag refused")
	}
	if got := c.GrabOffset(); got != (Point{20, 30}) {
		t.Fatalf("grab offset = %v, want {20 30}", got)
	}
	if c.State() != StateDragging || c.Target() != "a" {
		t.Fatalf("state = %v target = %q", c.State(), c.Target())
	}

	c.Move(Point{200, 200}, unitViewport)

	el := host.get(t, "a")
	if el.X != 180 || el.Y != 170 {
		t.Fatalf("position = (%v, %v), want (180, 170)", el.X, el.Y)
	}
	if len(host.selected) != 1 || host.selected[0] != "a" {
		t.Fatalf("selection notifications = %v, want [a]", host.selected)
	}
}

func TestDragWithOffsetViewport(t *testing.T) {
	host := newStoreHost(box("a", document.ElementImage, 100, 100, 50, 50))
	c := NewController(host.store, host)
	vp := Viewport{Origin: Point{40, 60}, Scale: 2}

	// Logical (120, 130) on screen.
	start := ToScreen(Point{120, 130}, vp.Origin, vp.Scale)
	c.BeginDrag("a", DragMain, start, vp)
	if got := c.GrabOffset(); !approx(got.X, 20) || !approx(got.Y, 30) {
		t.Fatalf("grab offset = %v, want {20 30}", got)
	}

	c.Move(ToScreen(Point{200, 200}, vp.Origin, vp.Scale), vp)
	el := host.get(t, "a")
	if !approx(el.X, 180) || !approx(el.Y, 170) {
		t.Fatalf("position = (%v, %v), want (180, 170)", el.X, el.Y)
	}
}

func TestDragReadsScaleEverySample(t *testing.T) {
	host := newStoreHost(box("a", document.ElementImage, 0, 0, 50, 50))
	c := NewController(host.store, host)

	c.BeginDrag("a", DragMain, Point{10, 10}, Viewport{Scale: 1})

	// Zoom to 2x mid-drag: screen (50, 50) is logical (25, 25).
	c.Move(Point{50, 50}, Viewport{Scale: 2})
	el := host.get(t, "a")
	if el.X != 15 || el.Y != 15 {
		t.Fatalf("position = (%v, %v), want (15, 15)", el.X, el.Y)
	}
}

func TestChoiceBoxMainDragMovesPair(t *testing.T) {
	choice := box("c", document.ElementChoiceBox, 300, 200, 40, 40)
	host := newStoreHost(choice)
	c := NewController(host.store, host)

	c.BeginDrag("c", DragMain, Point{310, 210}, unitViewport)
	c.Move(Point{320, 210}, unitViewport)

	el := host.get(t, "c")
	sx, sy := document.DefaultSecondary(el)
	if el.X != 310 || el.Y != 200 {
		t.Fatalf("primary = (%v, %v), want (310, 200)", el.X, el.Y)
	}
	if sx != 410 || sy != 200 {
		t.Fatalf("secondary = (%v, %v), want (410, 200)", sx, sy)
	}
}

func TestChoiceBoxMainDragPreservesCustomOffset(t *testing.T) {
	choice := box("c", document.ElementChoiceBox, 0, 0, 40, 40)
	choice.SecondaryX = document.Float(30)
	choice.SecondaryY = document.Float(90)
	host := newStoreHost(choice)
	c := NewController(host.store, host)

	c.BeginDrag("c", DragMain, Point{5, 5}, unitViewport)
	c.Move(Point{12, 0}, unitViewport)
	c.Move(Point{25, 17}, unitViewport)

	el := host.get(t, "c")
	sx, sy := document.DefaultSecondary(el)
	dx, dy := el.X-0, el.Y-0
	if dx != 20 || dy != 12 {
		t.Fatalf("primary delta = (%v, %v), want (20, 12)", dx, dy)
	}
	if sx != 30+dx || sy != 90+dy {
		t.Fatalf("secondary = (%v, %v), want (%v, %v)", sx, sy, 30+dx, 90+dy)
	}
}

func TestChoiceBoxSecondaryDragMovesOnlySecondary(t *testing.T) {
	choice := box("c", document.ElementChoiceBox, 300, 200, 40, 40)
	host := newStoreHost(choice)
	c := NewController(host.store, host)

	// Default secondary is at (400, 200); grab it 5 units in.
	c.BeginDrag("c", DragSecondary, Point{405, 205}, unitViewport)
	if c.Mode() != DragSecondary {
		t.Fatalf("mode = %v, want secondary", c.Mode())
	}
	if got := c.GrabOffset(); got != (Point{5, 5}) {
		t.Fatalf("grab offset = %v, want {5 5}", got)
	}

	c.Move(Point{455, 305}, unitViewport)

	el := host.get(t, "c")
	if el.X != 300 || el.Y != 200 {
		t.Fatalf("primary moved to (%v, %v)", el.X, el.Y)
	}
	sx, sy := document.DefaultSecondary(el)
	if sx != 450 || sy != 300 {
		t.Fatalf("secondary = (%v, %v), want (450, 300)", sx, sy)
	}
}

func TestSecondaryModeFallsBackToMainForOtherTypes(t *testing.T) {
	host := newStoreHost(box("t", document.ElementText, 0, 0, 100, 40))
	c := NewController(host.store, host)

	c.BeginDrag("t", DragSecondary, Point{10, 10}, unitViewport)
	if c.Mode() != DragMain {
		t.Fatalf("mode = %v, want main", c.Mode())
	}
	c.Move(Point{20, 10}, unitViewport)
	if el := host.get(t, "t"); el.X != 10 || el.SecondaryX != nil {
		t.Fatalf("unexpected element after drag: %+v", el)
	}
}

func TestResizeScalesFontForTextVariants(t *testing.T) {
	tests := []struct {
		typ      document.ElementType
		wantFont float64
	}{
		{document.ElementText, 30},
		{document.ElementDropdown, 30},
		{document.ElementCompany, 30},
		{document.ElementTCKN, 30},
		{document.ElementImage, 20},
		{document.ElementQRCode, 20},
		{document.ElementSignature, 20},
		{document.ElementChoiceBox, 20},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			el := box("e", tt.typ, 0, 0, 100, 50)
			el.FontSize = 20
			host := newStoreHost(el)
			c := NewController(host.store, host)

			c.BeginResize("e", Point{100, 50})
			c.Move(Point{150, 50}, unitViewport)

			got := host.get(t, "e")
			if got.Width != 150 || got.Height != 50 {
				t.Fatalf("size = %vx%v, want 150x50", got.Width, got.Height)
			}
			if got.FontSize != tt.wantFont {
				t.Fatalf("fontSize = %v, want %v", got.FontSize, tt.wantFont)
			}
			if !tt.typ.TextBearing() && host.updates[0].FontSize != nil {
				t.Fatal("non-text resize patched fontSize")
			}
		})
	}
}

func TestResizeFontIgnoresHeight(t *testing.T) {
	el := box("e", document.ElementText, 0, 0, 100, 50)
	el.FontSize = 20
	host := newStoreHost(el)
	c := NewController(host.store, host)

	c.BeginResize("e", Point{0, 0})
	c.Move(Point{0, 300}, unitViewport)

	if got := host.get(t, "e"); got.FontSize != 20 || got.Height != 350 {
		t.Fatalf("fontSize = %v height = %v, want 20 and 350", got.FontSize, got.Height)
	}
}

func TestResizeDefaultsMissingFontSize(t *testing.T) {
	host := newStoreHost(box("e", document.ElementText, 0, 0, 100, 50))
	c := NewController(host.store, host)

	c.BeginResize("e", Point{0, 0})
	c.Move(Point{100, 0}, unitViewport)

	if got := host.get(t, "e"); got.FontSize != 40 {
		t.Fatalf("fontSize = %v, want 40 (default 20 doubled)", got.FontSize)
	}
}

func TestResizeClampsToFloor(t *testing.T) {
	el := box("e", document.ElementText, 0, 0, 100, 50)
	el.FontSize = 20
	host := newStoreHost(el)
	c := NewController(host.store, host)

	c.BeginResize("e", Point{0, 0})
	c.Move(Point{-500, -500}, unitViewport)

	got := host.get(t, "e")
	if got.Width != document.MinElementSize || got.Height != document.MinElementSize {
		t.Fatalf("size = %vx%v, want floor", got.Width, got.Height)
	}
	// 20 * (20/100) = 4, clamped to the font floor.
	if got.FontSize != document.MinFontSize {
		t.Fatalf("fontSize = %v, want %v", got.FontSize, document.MinFontSize)
	}
}

// rawSource serves elements as given, bypassing the store's size floor.
type rawSource map[string]document.Element

func (r rawSource) Get(id string) (document.Element, bool) {
	el, ok := r[id]
	return el, ok
}

func TestResizeSubFloorStartWidth(t *testing.T) {
	tests := []struct {
		name      string
		width     float64
		move      Point
		wantWidth float64
		wantFont  float64
	}{
		{"zero width, no motion", 0, Point{100, 100}, 20, 20},
		{"width 5, no motion", 5, Point{100, 100}, 20, 20},
		{"width 5, grow", 5, Point{130, 100}, 50, 50},
		{"width 5, shrink", 5, Point{40, 100}, 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := box("e", document.ElementText, 0, 0, tt.width, 0)
			el.FontSize = 20
			host := newStoreHost(el)
			c := NewController(rawSource{"e": el}, host)

			c.BeginResize("e", Point{100, 100})
			c.Move(tt.move, unitViewport)

			if len(host.updates) != 1 {
				t.Fatalf("updates = %d, want 1", len(host.updates))
			}
			patch := host.updates[0]
			if *patch.Width != tt.wantWidth || *patch.Height != document.MinElementSize {
				t.Fatalf("size = %vx%v, want %vx20", *patch.Width, *patch.Height, tt.wantWidth)
			}
			if patch.FontSize == nil || *patch.FontSize != tt.wantFont {
				t.Fatalf("fontSize = %v, want %v", patch.FontSize, tt.wantFont)
			}
		})
	}
}

func TestResizeDeltaUsesScale(t *testing.T) {
	host := newStoreHost(box("e", document.ElementImage, 0, 0, 100, 100))
	c := NewController(host.store, host)

	c.BeginResize("e", Point{500, 500})
	c.Move(Point{600, 540}, Viewport{Scale: 2})

	if got := host.get(t, "e"); got.Width != 150 || got.Height != 120 {
		t.Fatalf("size = %vx%v, want 150x120", got.Width, got.Height)
	}
}

func TestResizeSessionFontMatchesFinalWidth(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		startW := 20 + rng.Float64()*400
		startFont := 10 + rng.Float64()*60
		el := box("e", document.ElementText, 0, 0, startW, 20+rng.Float64()*200)
		el.FontSize = startFont
		host := newStoreHost(el)
		c := NewController(host.store, host)
		scale := []float64{0.25, 1, 2, 4}[rng.IntN(4)]
		vp := Viewport{Scale: scale}

		c.BeginResize("e", Point{0, 0})
		for j := 0; j < 10; j++ {
			c.Move(Point{(rng.Float64() - 0.5) * 2000, (rng.Float64() - 0.5) * 2000}, vp)
			got := host.get(t, "e")
			if got.Width < document.MinElementSize || got.Height < document.MinElementSize {
				t.Fatalf("size %vx%v below floor", got.Width, got.Height)
			}
		}
		c.End()

		got := host.get(t, "e")
		want := max(document.MinFontSize, startFont*(got.Width/startW))
		if !approx(got.FontSize, want) {
			t.Fatalf("fontSize = %v, want %v", got.FontSize, want)
		}
	}
}

func TestSessionStartRequiresIdle(t *testing.T) {
	host := newStoreHost(
		box("a", document.ElementImage, 0, 0, 50, 50),
		box("b", document.ElementImage, 100, 0, 50, 50),
	)
	c := NewController(host.store, host)

	c.BeginDrag("a", DragMain, Point{1, 1}, unitViewport)
	if c.BeginDrag("b", DragMain, Point{101, 1}, unitViewport) {
		t.Fatal("second drag started while dragging")
	}
	if c.BeginResize("b", Point{0, 0}) {
		t.Fatal("resize started while dragging")
	}
	if c.Target() != "a" {
		t.Fatalf("target = %q, want a", c.Target())
	}
	if host.captures != 1 {
		t.Fatalf("captures = %d, want 1", host.captures)
	}
}

func TestBeginOnMissingElementStaysIdle(t *testing.T) {
	host := newStoreHost()
	c := NewController(host.store, host)

	if c.BeginDrag("ghost", DragMain, Point{}, unitViewport) || c.BeginResize("ghost", Point{}) {
		t.Fatal("session started on a missing element")
	}
	if c.State() != StateIdle || len(host.selected) != 0 || host.captures != 0 {
		t.Fatal("missing element produced side effects")
	}
}

func TestDeleteMidSessionIsSilent(t *testing.T) {
	host := newStoreHost(box("a", document.ElementImage, 0, 0, 50, 50))
	c := NewController(host.store, host)

	c.BeginDrag("a", DragMain, Point{10, 10}, unitViewport)
	host.OnDeleteElement("a")

	c.Move(Point{30, 30}, unitViewport)
	if len(host.updates) != 0 {
		t.Fatalf("updates after delete: %v", host.updates)
	}
	if host.store.Len() != 0 {
		t.Fatal("store changed after delete")
	}

	c.End()
	if c.State() != StateIdle {
		t.Fatalf("state = %v after End", c.State())
	}
	if host.releases != 1 {
		t.Fatalf("releases = %d, want 1", host.releases)
	}
}

func TestEndReleasesCaptureOnce(t *testing.T) {
	host := newStoreHost(box("a", document.ElementImage, 0, 0, 50, 50))
	c := NewController(host.store, host)

	c.BeginResize("a", Point{50, 50})
	c.End()
	c.End()

	if host.captures != 1 || host.releases != 1 {
		t.Fatalf("captures = %d releases = %d, want 1 and 1", host.captures, host.releases)
	}

	// Moves after the session ends change nothing.
	c.Move(Point{500, 500}, unitViewport)
	if len(host.updates) != 0 {
		t.Fatal("move applied while idle")
	}
}
