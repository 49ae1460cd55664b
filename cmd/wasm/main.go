//go:build js && wasm

package main

import (
	"encoding/json"
	"syscall/js"

	"github.com/procertify/studio/backend-go/internal/document"
	"github.com/procertify/studio/backend-go/internal/editor"
	"github.com/procertify/studio/backend-go/internal/qr"
)

var (
	ed       *editor.Editor
	listener = &jsListener{}
)

func main() {
	ed = editor.New(editor.Options{
		Renderer: qr.NewRenderer(qr.DefaultSize),
		Frames:   rafScheduler{},
		Capture:  &windowCapture{},
		Listener: listener,
	})

	api := js.Global().Get("Object").New()

	// --- Commands (frontend → editor) ---
	api.Set("loadSide", js.FuncOf(loadSide))
	api.Set("setViewport", js.FuncOf(setViewport))
	api.Set("setScale", js.FuncOf(setScale))
	api.Set("setReadOnly", js.FuncOf(setReadOnly))
	api.Set("setListener", js.FuncOf(setListener))
	api.Set("pointerDown", js.FuncOf(pointerDown))
	api.Set("pointerMove", js.FuncOf(pointerMove))
	api.Set("pointerUp", js.FuncOf(pointerUp))
	api.Set("tick", js.FuncOf(tick))
	api.Set("select", js.FuncOf(selectElement))
	api.Set("updateElement", js.FuncOf(updateElement))
	api.Set("addElement", js.FuncOf(addElement))
	api.Set("deleteElement", js.FuncOf(deleteElement))
	api.Set("deleteSelected", js.FuncOf(deleteSelected))
	api.Set("toggleChoice", js.FuncOf(toggleChoice))
	api.Set("dispose", js.FuncOf(dispose))

	// --- Remote changes (collaborators → editor), not echoed to the listener ---
	api.Set("applyRemoteCreate", js.FuncOf(applyRemoteCreate))
	api.Set("applyRemoteUpdate", js.FuncOf(applyRemoteUpdate))
	api.Set("applyRemoteDelete", js.FuncOf(applyRemoteDelete))

	// --- Queries (frontend ← editor) ---
	api.Set("render", js.FuncOf(render))
	api.Set("hitTest", js.FuncOf(hitTest))
	api.Set("getSide", js.FuncOf(getSide))
	api.Set("getSelection", js.FuncOf(getSelection))
	api.Set("getState", js.FuncOf(getState))
	api.Set("expandFilename", js.FuncOf(expandFilename))

	js.Global().Set("procertifyEditor", api)
	js.Global().Set("procertifyWasmReady", js.ValueOf(true))

	select {}
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{"error": msg})
}

func okResult() interface{} {
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func toJSON(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(err.Error())
	}
	return js.ValueOf(string(data))
}

// --- Host adapters ---

// rafScheduler defers frame tasks with requestAnimationFrame.
type rafScheduler struct{}

func (rafScheduler) Schedule(task func()) func() {
	var cb js.Func
	cb = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		cb.Release()
		task()
		return nil
	})
	id := js.Global().Call("requestAnimationFrame", cb)
	return func() {
		js.Global().Call("cancelAnimationFrame", id)
		cb.Release()
	}
}

// windowCapture routes window pointer events to the editor while a drag or
// resize is active, so the session survives the pointer leaving the canvas.
type windowCapture struct {
	move, up js.Func
}

func (c *windowCapture) Capture() func() {
	window := js.Global().Get("window")
	c.move = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if len(args) > 0 {
			ed.PointerMove(args[0].Get("clientX").Float(), args[0].Get("clientY").Float())
		}
		return nil
	})
	c.up = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		ed.PointerUp()
		return nil
	})
	window.Call("addEventListener", "pointermove", c.move)
	window.Call("addEventListener", "pointerup", c.up)

	move, up := c.move, c.up
	return func() {
		window.Call("removeEventListener", "pointermove", move)
		window.Call("removeEventListener", "pointerup", up)
		move.Release()
		up.Release()
	}
}

// jsListener forwards committed changes to callbacks registered from JS.
type jsListener struct {
	target js.Value
	muted  bool
}

func (l *jsListener) call(method string, args ...interface{}) {
	if l.muted || l.target.IsUndefined() || l.target.IsNull() {
		return
	}
	if fn := l.target.Get(method); fn.Type() == js.TypeFunction {
		l.target.Call(method, args...)
	}
}

func (l *jsListener) OnSelect(id string) { l.call("onSelect", id) }

func (l *jsListener) OnUpdateElement(id string, patch document.ElementPatch) {
	data, err := json.Marshal(patch)
	if err != nil {
		return
	}
	l.call("onUpdateElement", id, string(data))
}

func (l *jsListener) OnDeleteElement(id string) { l.call("onDeleteElement", id) }

func (l *jsListener) OnCreateElement(el document.Element) {
	data, err := json.Marshal(el)
	if err != nil {
		return
	}
	l.call("onCreateElement", string(data))
}

// silently runs fn without notifying the listener.
func silently(fn func()) {
	listener.muted = true
	defer func() { listener.muted = false }()
	fn()
}

// --- Command handlers ---

func loadSide(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("usage: loadSide(sideJSON, width, height)")
	}
	if err := ed.LoadSideJSON(args[0].String(), args[1].Int(), args[2].Int()); err != nil {
		return errorResult(err.Error())
	}
	return okResult()
}

func setViewport(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("usage: setViewport(originX, originY, scale)")
	}
	ed.SetViewport(args[0].Float(), args[1].Float(), args[2].Float())
	return nil
}

func setScale(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("missing scale")
	}
	ed.SetScale(args[0].Float())
	return nil
}

func setReadOnly(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("missing flag")
	}
	ed.SetReadOnly(args[0].Bool())
	return nil
}

func setListener(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		listener.target = js.Undefined()
		return nil
	}
	listener.target = args[0]
	return nil
}

func pointerDown(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return nil
	}
	ed.PointerDown(args[0].Float(), args[1].Float())
	return nil
}

func pointerMove(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return nil
	}
	ed.PointerMove(args[0].Float(), args[1].Float())
	return nil
}

func pointerUp(this js.Value, args []js.Value) interface{} {
	ed.PointerUp()
	return nil
}

// tick reports whether the canvas needs to be redrawn.
func tick(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(ed.Tick())
}

func selectElement(this js.Value, args []js.Value) interface{} {
	id := ""
	if len(args) > 0 && args[0].Type() == js.TypeString {
		id = args[0].String()
	}
	ed.Select(id)
	return nil
}

func decodePatch(args []js.Value) (string, document.ElementPatch, bool) {
	var patch document.ElementPatch
	if len(args) < 2 {
		return "", patch, false
	}
	if err := json.Unmarshal([]byte(args[1].String()), &patch); err != nil {
		return "", patch, false
	}
	return args[0].String(), patch, true
}

func updateElement(this js.Value, args []js.Value) interface{} {
	id, patch, ok := decodePatch(args)
	if !ok {
		return errorResult("usage: updateElement(id, patchJSON)")
	}
	ed.UpdateElement(id, patch)
	return okResult()
}

func addElement(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return errorResult("usage: addElement(type, x, y)")
	}
	id, err := ed.AddElement(document.ElementType(args[0].String()), args[1].Float(), args[2].Float())
	if err != nil {
		return errorResult(err.Error())
	}
	return js.ValueOf(id)
}

func deleteElement(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return nil
	}
	ed.DeleteElement(args[0].String())
	return nil
}

func deleteSelected(this js.Value, args []js.Value) interface{} {
	ed.DeleteSelected()
	return nil
}

func toggleChoice(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return nil
	}
	ed.ToggleChoice(args[0].String(), args[1].Int())
	return nil
}

func dispose(this js.Value, args []js.Value) interface{} {
	ed.Close()
	return nil
}

func applyRemoteCreate(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("usage: applyRemoteCreate(elementJSON, index?)")
	}
	var el document.Element
	if err := json.Unmarshal([]byte(args[0].String()), &el); err != nil {
		return errorResult(err.Error())
	}
	var index *int
	if len(args) > 1 && args[1].Type() == js.TypeNumber {
		i := args[1].Int()
		index = &i
	}
	return js.ValueOf(ed.InsertElement(el, index))
}

func applyRemoteUpdate(this js.Value, args []js.Value) interface{} {
	id, patch, ok := decodePatch(args)
	if !ok {
		return errorResult("usage: applyRemoteUpdate(id, patchJSON)")
	}
	silently(func() { ed.UpdateElement(id, patch) })
	return okResult()
}

func applyRemoteDelete(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return nil
	}
	silently(func() { ed.DeleteElement(args[0].String()) })
	return nil
}

// --- Query handlers ---

func render(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(ed.Render())
}

func hitTest(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return nil
	}
	return toJSON(ed.HitTest(args[0].Float(), args[1].Float()))
}

func getSide(this js.Value, args []js.Value) interface{} {
	return toJSON(ed.Side())
}

func getSelection(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(ed.Selection())
}

func getState(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(ed.State().String())
}

func expandFilename(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("")
	}
	return js.ValueOf(document.ExpandFilename(args[0].String(), ed.Side(), "sertifika"))
}
