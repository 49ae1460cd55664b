package collab

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/procertify/studio/backend-go/internal/document"
)

type savedDoc struct {
	projectID string
	doc       *document.Project
}

type fakeStore struct {
	mu      sync.Mutex
	loads   int
	failFor string
	saved   chan savedDoc
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(chan savedDoc, 16)}
}

func (f *fakeStore) load(_ context.Context, projectID string) (*document.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if projectID == f.failFor {
		return nil, errors.New("db down")
	}
	doc := testDoc()
	doc.ID = projectID
	return doc, nil
}

func (f *fakeStore) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

func (f *fakeStore) save(_ context.Context, projectID string, doc *document.Project) error {
	f.saved <- savedDoc{projectID: projectID, doc: doc}
	return nil
}

func startHub(t *testing.T, store *fakeStore) *Hub {
	t.Helper()
	h := NewHub(store.load, store.save, time.Hour)
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func join(t *testing.T, h *Hub, userID, clientID string) *Client {
	t.Helper()
	c := NewClient(h, nil, userID, "Kullanıcı "+userID, "proj_1", clientID)
	if !h.Register(c) {
		t.Fatal("hub refused client")
	}
	return c
}

func recv(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatalf("%s: send channel closed", c.ClientID)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		return &msg
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: no message", c.ClientID)
		return nil
	}
}

func expect(t *testing.T, c *Client, msgType string) *Message {
	t.Helper()
	msg := recv(t, c)
	if msg.Type != msgType {
		t.Fatalf("%s: got %s, want %s", c.ClientID, msg.Type, msgType)
	}
	return msg
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("%s: unexpected message %s", c.ClientID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func submit(h *Hub, c *Client, op Operation) {
	payload, _ := json.Marshal(OperationSubmitPayload{Operation: op})
	h.handleMessage(c, &Message{Type: TypeOpSubmit, Payload: payload})
}

func TestHubJoinSyncsDocument(t *testing.T) {
	store := newFakeStore()
	h := startHub(t, store)

	c1 := join(t, h, "user_1", "c1")
	welcome := expect(t, c1, TypeWelcome)
	var w WelcomePayload
	json.Unmarshal(welcome.Payload, &w)
	if w.ClientID != "c1" || w.ServerSeq != 0 {
		t.Fatalf("welcome = %+v", w)
	}

	syncMsg := expect(t, c1, TypeDocSync)
	var ds DocSyncPayload
	json.Unmarshal(syncMsg.Payload, &ds)
	var doc document.Project
	if err := json.Unmarshal(ds.Document, &doc); err != nil || len(doc.Front.Elements) != 2 {
		t.Fatalf("synced doc: %v %+v", err, doc.Front)
	}

	c2 := join(t, h, "user_2", "c2")
	expect(t, c2, TypeWelcome)
	expect(t, c2, TypeDocSync)
	if msg := expect(t, c1, TypePresenceJoin); msg.UserID != "user_2" {
		t.Fatalf("join user = %q", msg.UserID)
	}

	if n := store.loadCount(); n != 1 {
		t.Fatalf("document loaded %d times, want once per room", n)
	}
}

func TestHubOperations(t *testing.T) {
	h := startHub(t, newFakeStore())
	c1 := join(t, h, "user_1", "c1")
	expect(t, c1, TypeWelcome)
	expect(t, c1, TypeDocSync)
	c2 := join(t, h, "user_2", "c2")
	expect(t, c2, TypeWelcome)
	expect(t, c2, TypeDocSync)
	expect(t, c1, TypePresenceJoin)

	submit(h, c1, Operation{ID: "op_1", Type: OpElementUpdate, ElementID: "el_a",
		Patch: &document.ElementPatch{X: document.Float(99)}})

	ack := expect(t, c1, TypeOpAck)
	var a OperationAckPayload
	json.Unmarshal(ack.Payload, &a)
	if a.OperationID != "op_1" || a.ServerSeq != 1 {
		t.Fatalf("ack = %+v", a)
	}
	bc := expect(t, c2, TypeOpBroadcast)
	var b OperationBroadcastPayload
	json.Unmarshal(bc.Payload, &b)
	if b.ServerSeq != 1 || b.UserID != "user_1" || b.Operation.Patch == nil || *b.Operation.Patch.X != 99 {
		t.Fatalf("broadcast = %+v", b)
	}
	expectNothing(t, c1)

	submit(h, c2, Operation{ID: "op_2", Type: OpElementDelete, ElementID: "el_missing"})
	nack := expect(t, c2, TypeOpNack)
	var n OperationNackPayload
	json.Unmarshal(nack.Payload, &n)
	if n.OperationID != "op_2" || n.Reason != "element not found" {
		t.Fatalf("nack = %+v", n)
	}
	expectNothing(t, c1)

	submit(h, c2, Operation{ID: "op_3", Type: OpElementDelete, ElementID: "el_b"})
	expect(t, c2, TypeOpAck)
	bc = expect(t, c1, TypeOpBroadcast)
	json.Unmarshal(bc.Payload, &b)
	if b.ServerSeq != 2 || b.Operation.Element == nil || b.Operation.Element.ID != "el_b" {
		t.Fatalf("delete broadcast = %+v", b.Operation)
	}
}

func TestHubDocRequest(t *testing.T) {
	h := startHub(t, newFakeStore())
	c := join(t, h, "user_1", "c1")
	expect(t, c, TypeWelcome)
	expect(t, c, TypeDocSync)

	for i, x := range []float64{1, 2, 3} {
		submit(h, c, Operation{ID: "op", Type: OpElementUpdate, ElementID: "el_a",
			Patch: &document.ElementPatch{X: document.Float(x)}})
		if ack := expect(t, c, TypeOpAck); ack.Seq != int64(i+1) {
			t.Fatalf("ack seq = %d", ack.Seq)
		}
	}

	h.handleMessage(c, &Message{Type: TypeDocRequest, Payload: json.RawMessage(`{"lastSeq":1}`)})
	for _, want := range []int64{2, 3} {
		if msg := expect(t, c, TypeOpBroadcast); msg.Seq != want {
			t.Fatalf("replayed seq = %d, want %d", msg.Seq, want)
		}
	}

	h.handleMessage(c, &Message{Type: TypeDocRequest, Payload: json.RawMessage(`{}`)})
	syncMsg := expect(t, c, TypeDocSync)
	var ds DocSyncPayload
	json.Unmarshal(syncMsg.Payload, &ds)
	if ds.ServerSeq != 3 {
		t.Fatalf("sync seq = %d", ds.ServerSeq)
	}

	h.handleMessage(c, &Message{Type: "bogus"})
	expect(t, c, TypeError)
}

func TestHubPresence(t *testing.T) {
	h := startHub(t, newFakeStore())
	c1 := join(t, h, "user_1", "c1")
	expect(t, c1, TypeWelcome)
	expect(t, c1, TypeDocSync)

	payload, _ := json.Marshal(PresencePayload{Cursor: &CursorPos{X: 5, Y: 6}, DisplayName: "spoofed"})
	h.handleMessage(c1, &Message{Type: TypePresenceUpdate, Payload: payload})

	c2 := join(t, h, "user_2", "c2")
	expect(t, c2, TypeWelcome)
	expect(t, c2, TypeDocSync)
	state := expect(t, c2, TypePresenceState)
	var st PresenceStatePayload
	json.Unmarshal(state.Payload, &st)
	p := st.Presences["user_1"]
	if p == nil || p.Cursor.X != 5 || p.DisplayName != "Kullanıcı user_1" {
		t.Fatalf("presence = %+v", p)
	}
	expect(t, c1, TypePresenceJoin)

	h.Unregister(c2)
	if msg := expect(t, c1, TypePresenceLeave); msg.UserID != "user_2" {
		t.Fatalf("leave user = %q", msg.UserID)
	}
}

func TestHubSavesWhenLastClientLeaves(t *testing.T) {
	store := newFakeStore()
	h := startHub(t, store)
	c := join(t, h, "user_1", "c1")
	expect(t, c, TypeWelcome)
	expect(t, c, TypeDocSync)

	submit(h, c, Operation{ID: "op", Type: OpProjectRename, Name: "Yeni Ad"})
	expect(t, c, TypeOpAck)
	h.Unregister(c)

	select {
	case s := <-store.saved:
		if s.projectID != "proj_1" || s.doc.Name != "Yeni Ad" {
			t.Fatalf("saved %s %q", s.projectID, s.doc.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("document not saved")
	}

	// The room is gone; the next client loads the document again.
	c2 := join(t, h, "user_1", "c2")
	expect(t, c2, TypeWelcome)
	expect(t, c2, TypeDocSync)
	if n := store.loadCount(); n != 2 {
		t.Fatalf("loads = %d", n)
	}
}

func TestHubCleanRoomIsNotSaved(t *testing.T) {
	store := newFakeStore()
	h := startHub(t, store)
	c := join(t, h, "user_1", "c1")
	expect(t, c, TypeWelcome)
	expect(t, c, TypeDocSync)
	h.Unregister(c)
	h.Stop()

	select {
	case s := <-store.saved:
		t.Fatalf("unchanged document saved: %s", s.projectID)
	default:
	}
}

func TestHubStopSavesDirtyRooms(t *testing.T) {
	store := newFakeStore()
	h := startHub(t, store)
	c := join(t, h, "user_1", "c1")
	expect(t, c, TypeWelcome)
	expect(t, c, TypeDocSync)
	submit(h, c, Operation{ID: "op", Type: OpSideBackground, BgURL: document.String("/assets/x.png")})
	expect(t, c, TypeOpAck)

	h.Stop()
	select {
	case s := <-store.saved:
		if s.doc.Front.BgURL != "/assets/x.png" {
			t.Fatalf("saved bg = %q", s.doc.Front.BgURL)
		}
	default:
		t.Fatal("Stop did not save")
	}

	if h.Register(NewClient(h, nil, "user_2", "", "proj_1", "late")) {
		t.Fatal("stopped hub accepted a client")
	}
}

func TestHubLoadFailure(t *testing.T) {
	store := newFakeStore()
	store.failFor = "proj_1"
	h := startHub(t, store)
	c := join(t, h, "user_1", "c1")

	expect(t, c, TypeError)
	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("expected the client to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client not closed")
	}
}

func TestClientSendAfterClose(t *testing.T) {
	c := NewClient(nil, nil, "user_1", "", "proj_1", "c1")
	c.close()
	c.close()
	c.Send(newMessage(TypeError, ErrorPayload{Message: "late"}))

	c = NewClient(nil, nil, "user_1", "", "proj_1", "c2")
	for i := 0; i < sendBuffer+1; i++ {
		c.Send(newMessage(TypeError, ErrorPayload{}))
	}
	if !c.closed {
		t.Fatal("congested client was not closed")
	}
}
