package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/procertify/studio/backend-go/internal/document"
)

const saveTimeout = 10 * time.Second

// DocumentLoader returns the latest stored document of a project.
type DocumentLoader func(ctx context.Context, projectID string) (*document.Project, error)

// DocumentSaver persists a document. It is called from the hub goroutine.
type DocumentSaver func(ctx context.Context, projectID string, doc *document.Project) error

type Room struct {
	projectID string
	clients   map[string]*Client // clientID -> client
	presence  *PresenceManager
	doc       *DocumentState

	// opMu orders apply-and-broadcast so every client sees operations in
	// server sequence order.
	opMu sync.Mutex
}

func NewRoom(projectID string, doc *document.Project) *Room {
	return &Room{
		projectID: projectID,
		clients:   make(map[string]*Client),
		presence:  NewPresenceManager(),
		doc:       NewDocumentState(doc),
	}
}

type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]*Room // projectID -> room
	register   chan *Client
	unregister chan *Client

	loader       DocumentLoader
	saver        DocumentSaver
	saveInterval time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewHub(loader DocumentLoader, saver DocumentSaver, saveInterval time.Duration) *Hub {
	if saveInterval <= 0 {
		saveInterval = 30 * time.Second
	}
	return &Hub{
		rooms:        make(map[string]*Room),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		loader:       loader,
		saver:        saver,
		saveInterval: saveInterval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	ticker := time.NewTicker(h.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ticker.C:
			h.saveDirty()
		case <-h.stop:
			h.saveDirty()
			return
		}
	}
}

// Stop saves every dirty room and stops Run. It blocks until Run returns.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

// Register adds a client to its project's room. It returns false when the
// hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stop:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.RLock()
	room, ok := h.rooms[client.ProjectID]
	h.mu.RUnlock()

	if !ok {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		doc, err := h.loader(ctx, client.ProjectID)
		cancel()
		if err != nil {
			slog.Error("load document", "error", err, "project", client.ProjectID)
			client.Send(newMessage(TypeError, ErrorPayload{Message: "failed to load document"}))
			client.close()
			return
		}
		room = NewRoom(client.ProjectID, doc)
	}

	h.mu.Lock()
	h.rooms[client.ProjectID] = room
	room.clients[client.ClientID] = client
	h.mu.Unlock()

	room.opMu.Lock()
	docJSON, seq, err := room.doc.Snapshot()
	if err == nil {
		client.Send(newMessage(TypeWelcome, WelcomePayload{
			ClientID:  client.ClientID,
			UserID:    client.UserID,
			ServerSeq: seq,
		}))
		client.Send(newMessage(TypeDocSync, DocSyncPayload{Document: docJSON, ServerSeq: seq}))
	}
	room.opMu.Unlock()
	if err != nil {
		slog.Error("snapshot document", "error", err, "project", client.ProjectID)
	}

	if stateMsg := room.presence.StateMessage(); stateMsg != nil {
		client.Send(stateMsg)
	}

	joinMsg := newMessage(TypePresenceJoin, PresenceJoinPayload{
		UserID:      client.UserID,
		DisplayName: client.DisplayName,
	})
	joinMsg.UserID = client.UserID
	h.broadcastToRoom(client.ProjectID, joinMsg, client.ClientID)

	slog.Info("client joined", "user", client.UserID, "project", client.ProjectID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.ProjectID]
	if !ok || room.clients[client.ClientID] != client {
		h.mu.Unlock()
		client.close()
		return
	}

	delete(room.clients, client.ClientID)
	client.close()
	lastConn := !room.hasUser(client.UserID)
	if lastConn {
		room.presence.Remove(client.UserID)
	}

	empty := len(room.clients) == 0
	if empty {
		delete(h.rooms, client.ProjectID)
	}
	h.mu.Unlock()

	if empty {
		h.saveRoom(room)
	} else if lastConn {
		leaveMsg := newMessage(TypePresenceLeave, PresenceLeavePayload{UserID: client.UserID})
		leaveMsg.UserID = client.UserID
		h.broadcastToRoom(client.ProjectID, leaveMsg, "")
	}

	slog.Info("client left", "user", client.UserID, "project", client.ProjectID)
}

// hasUser reports whether another connection of userID is still in the
// room. Callers hold the hub lock.
func (r *Room) hasUser(userID string) bool {
	for _, c := range r.clients {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) handleMessage(sender *Client, msg *Message) {
	switch msg.Type {
	case TypePresenceUpdate:
		h.handlePresenceUpdate(sender, msg)
	case TypeOpSubmit:
		h.handleOpSubmit(sender, msg)
	case TypeDocRequest:
		h.handleDocRequest(sender, msg)
	default:
		slog.Warn("unknown message type", "type", msg.Type, "user", sender.UserID)
		sender.Send(newMessage(TypeError, ErrorPayload{Message: "unknown message type"}))
	}
}

func (h *Hub) room(projectID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room, ok := h.rooms[projectID]
	return room, ok
}

func (h *Hub) handlePresenceUpdate(sender *Client, msg *Message) {
	var presence PresencePayload
	if err := json.Unmarshal(msg.Payload, &presence); err != nil {
		slog.Warn("invalid presence payload", "error", err)
		return
	}

	presence.DisplayName = sender.DisplayName

	room, ok := h.room(sender.ProjectID)
	if !ok {
		return
	}

	room.presence.Update(sender.UserID, &presence)

	outMsg := newMessage(TypePresenceUpdate, presence)
	outMsg.UserID = sender.UserID
	h.broadcastToRoom(sender.ProjectID, outMsg, sender.ClientID)
}

func (h *Hub) handleOpSubmit(sender *Client, msg *Message) {
	var submit OperationSubmitPayload
	if err := json.Unmarshal(msg.Payload, &submit); err != nil {
		sender.Send(newMessage(TypeOpNack, OperationNackPayload{Reason: "invalid operation payload"}))
		return
	}
	op := submit.Operation

	room, ok := h.room(sender.ProjectID)
	if !ok {
		return
	}

	room.opMu.Lock()
	defer room.opMu.Unlock()

	applied, seq, err := room.doc.ApplyOperation(sender.UserID, submit.Operation)
	if err != nil {
		slog.Debug("operation rejected", "error", err, "op", op.ID, "type", op.Type, "user", sender.UserID)
		sender.Send(newMessage(TypeOpNack, OperationNackPayload{OperationID: op.ID, Reason: nackReason(err)}))
		return
	}
	op = applied
	if op.Type == OpElementDelete {
		room.presence.ClearSelection(op.ElementID)
	}

	ack := newMessage(TypeOpAck, OperationAckPayload{
		OperationID:     op.ID,
		ServerSeq:       seq,
		ServerTimestamp: serverTimestamp(),
	})
	ack.Seq = seq
	sender.Send(ack)

	broadcast := newMessage(TypeOpBroadcast, OperationBroadcastPayload{
		Operation: op,
		UserID:    sender.UserID,
		ServerSeq: seq,
	})
	broadcast.Seq = seq
	broadcast.UserID = sender.UserID
	h.broadcastToRoom(sender.ProjectID, broadcast, sender.ClientID)
}

func (h *Hub) handleDocRequest(sender *Client, msg *Message) {
	var req DocRequestPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			slog.Warn("invalid doc request", "error", err)
		}
	}

	room, ok := h.room(sender.ProjectID)
	if !ok {
		return
	}

	room.opMu.Lock()
	defer room.opMu.Unlock()

	if req.LastSeq > 0 {
		if ops, ok := room.doc.OpsSince(req.LastSeq); ok {
			for _, payload := range ops {
				m := newMessage(TypeOpBroadcast, payload)
				m.Seq = payload.ServerSeq
				m.UserID = payload.UserID
				sender.Send(m)
			}
			return
		}
	}

	docJSON, seq, err := room.doc.Snapshot()
	if err != nil {
		slog.Error("snapshot document", "error", err, "project", sender.ProjectID)
		return
	}
	sender.Send(newMessage(TypeDocSync, DocSyncPayload{Document: docJSON, ServerSeq: seq}))
}

func nackReason(err error) string {
	switch {
	case errors.Is(err, document.ErrElementNotFound):
		return "element not found"
	case errors.Is(err, ErrUnknownOperation):
		return "unknown operation type"
	default:
		return err.Error()
	}
}

func (h *Hub) broadcastToRoom(projectID string, msg *Message, excludeClientID string) {
	h.mu.RLock()
	room, ok := h.rooms[projectID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		if c.ClientID != excludeClientID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(msg)
	}
}

func (h *Hub) saveDirty() {
	h.mu.RLock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.RUnlock()

	for _, r := range rooms {
		h.saveRoom(r)
	}
}

func (h *Hub) saveRoom(room *Room) {
	if !room.doc.Dirty() {
		return
	}
	doc, seq, err := room.doc.Document()
	if err != nil {
		slog.Error("copy document for save", "error", err, "project", room.projectID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := h.saver(ctx, room.projectID, doc); err != nil {
		slog.Error("save document", "error", err, "project", room.projectID)
		return
	}
	room.doc.MarkSaved(seq)
	slog.Info("document saved", "project", room.projectID, "seq", seq)
}
