package collab

import (
	"encoding/json"
	"log/slog"

	"github.com/procertify/studio/backend-go/internal/document"
)

type Message struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type PresencePayload struct {
	Cursor      *CursorPos        `json:"cursor,omitempty"`
	Side        document.SideName `json:"side,omitempty"`
	Selection   []string          `json:"selection,omitempty"`
	DisplayName string            `json:"displayName,omitempty"`
}

// CursorPos is in logical canvas units.
type CursorPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PresenceStatePayload struct {
	Presences map[string]*PresencePayload `json:"presences"`
}

type PresenceJoinPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type PresenceLeavePayload struct {
	UserID string `json:"userId"`
}

type WelcomePayload struct {
	ClientID  string `json:"clientId"`
	UserID    string `json:"userId"`
	ServerSeq int64  `json:"serverSeq"`
}

type DocSyncPayload struct {
	Document  json.RawMessage `json:"document"`
	ServerSeq int64           `json:"serverSeq"`
}

// DocRequestPayload asks for everything after LastSeq. The hub replays the
// missed operations when it still has them and sends a full doc.sync
// otherwise.
type DocRequestPayload struct {
	LastSeq int64 `json:"lastSeq"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

const (
	TypePresenceUpdate = "presence.update"
	TypePresenceState  = "presence.state"
	TypePresenceJoin   = "presence.join"
	TypePresenceLeave  = "presence.leave"
	TypeError          = "error"

	TypeWelcome = "welcome"

	TypeDocSync    = "doc.sync"
	TypeDocRequest = "doc.request"

	TypeOpSubmit    = "op.submit"
	TypeOpAck       = "op.ack"
	TypeOpNack      = "op.nack"
	TypeOpBroadcast = "op.broadcast"
)

// Operation kinds.
const (
	OpElementCreate  = "element.create"
	OpElementUpdate  = "element.update"
	OpElementDelete  = "element.delete"
	OpElementReorder = "element.reorder"
	OpSideBackground = "side.background"
	OpProjectRename  = "project.rename"
	OpProjectPattern = "project.filenamePattern"
)

// Operation is a single document mutation. Which fields are set depends on
// Type.
type Operation struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	ClientSeq int64  `json:"clientSeq"`

	Side      document.SideName `json:"side,omitempty"`
	ElementID string            `json:"elementId,omitempty"`

	// element.create, and the removed element echoed back for element.delete
	Element *document.Element `json:"element,omitempty"`
	// element.create and element.reorder
	Index *int `json:"index,omitempty"`

	// element.update
	Patch *document.ElementPatch `json:"patch,omitempty"`

	// side.background
	BgURL *string `json:"bgUrl,omitempty"`

	// project.rename and project.filenamePattern
	Name            string  `json:"name,omitempty"`
	FilenamePattern *string `json:"filenamePattern,omitempty"`
}

type OperationSubmitPayload struct {
	Operation Operation `json:"operation"`
}

type OperationAckPayload struct {
	OperationID     string `json:"operationId"`
	ServerSeq       int64  `json:"serverSeq"`
	ServerTimestamp int64  `json:"serverTimestamp"`
}

type OperationNackPayload struct {
	OperationID string `json:"operationId"`
	Reason      string `json:"reason"`
}

type OperationBroadcastPayload struct {
	Operation Operation `json:"operation"`
	UserID    string    `json:"userId"`
	ServerSeq int64     `json:"serverSeq"`
}

func newMessage(msgType string, payload interface{}) *Message {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal payload", "error", err, "type", msgType)
		data = []byte("null")
	}
	return &Message{Type: msgType, Payload: data}
}
