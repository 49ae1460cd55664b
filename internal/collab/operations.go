package collab

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/procertify/studio/backend-go/internal/document"
)

// maxOpLog bounds the replay history kept per room.
const maxOpLog = 500

var (
	ErrUnknownOperation = errors.New("unknown operation type")
	ErrInvalidOperation = errors.New("invalid operation")
)

type loggedOp struct {
	seq    int64
	userID string
	op     Operation
}

// DocumentState holds the authoritative document of a room.
type DocumentState struct {
	mu        sync.RWMutex
	doc       *document.Project
	serverSeq int64
	savedSeq  int64
	opLog     []loggedOp
}

func NewDocumentState(doc *document.Project) *DocumentState {
	return &DocumentState{doc: doc}
}

// ServerSeq returns the sequence number of the last applied operation.
func (ds *DocumentState) ServerSeq() int64 {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.serverSeq
}

// Snapshot returns the document as JSON together with the sequence number
// it reflects.
func (ds *DocumentState) Snapshot() (json.RawMessage, int64, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	data, err := json.Marshal(ds.doc)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal document: %w", err)
	}
	return data, ds.serverSeq, nil
}

// Document returns a deep copy of the current document.
func (ds *DocumentState) Document() (*document.Project, int64, error) {
	data, seq, err := ds.Snapshot()
	if err != nil {
		return nil, 0, err
	}
	var doc document.Project
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("copy document: %w", err)
	}
	return &doc, seq, nil
}

// Dirty reports whether operations were applied since the last MarkSaved.
func (ds *DocumentState) Dirty() bool {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.serverSeq > ds.savedSeq
}

// MarkSaved records that the document up to seq has been persisted.
func (ds *DocumentState) MarkSaved(seq int64) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if seq > ds.savedSeq {
		ds.savedSeq = seq
	}
}

// ApplyOperation validates and applies op. It returns the operation as
// applied, with server-filled fields such as the removed element of a
// delete, and its server sequence. A rejected operation leaves the document
// untouched.
func (ds *DocumentState) ApplyOperation(userID string, op Operation) (Operation, int64, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if err := ds.applyOperationLocked(&op); err != nil {
		return Operation{}, 0, err
	}

	ds.serverSeq++
	ds.opLog = append(ds.opLog, loggedOp{seq: ds.serverSeq, userID: userID, op: op})
	if len(ds.opLog) > maxOpLog {
		ds.opLog = slices.Delete(ds.opLog, 0, len(ds.opLog)-maxOpLog)
	}

	return op, ds.serverSeq, nil
}

// OpsSince returns the operations applied after seq, or false when the log
// no longer reaches back that far.
func (ds *DocumentState) OpsSince(seq int64) ([]OperationBroadcastPayload, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	if seq >= ds.serverSeq {
		return nil, true
	}
	if len(ds.opLog) == 0 || ds.opLog[0].seq > seq+1 {
		return nil, false
	}

	var out []OperationBroadcastPayload
	for _, l := range ds.opLog {
		if l.seq > seq {
			out = append(out, OperationBroadcastPayload{Operation: l.op, UserID: l.userID, ServerSeq: l.seq})
		}
	}
	return out, true
}

func (ds *DocumentState) applyOperationLocked(op *Operation) error {
	switch op.Type {
	case OpElementCreate:
		return ds.applyCreate(op)
	case OpElementUpdate:
		return ds.applyUpdate(op)
	case OpElementDelete:
		return ds.applyDelete(op)
	case OpElementReorder:
		return ds.applyReorder(op)
	case OpSideBackground:
		return ds.applyBackground(op)
	case OpProjectRename:
		return ds.applyProjectRename(op)
	case OpProjectPattern:
		return ds.applyFilenamePattern(op)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOperation, op.Type)
	}
}

func (ds *DocumentState) side(name document.SideName) (*document.Side, error) {
	side, err := ds.doc.Side(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	return side, nil
}

// findElement looks the element up on op.Side, or on both sides when the
// operation names none.
func (ds *DocumentState) findElement(op *Operation) (*document.Side, *document.Element, error) {
	if op.Side != "" {
		side, err := ds.side(op.Side)
		if err != nil {
			return nil, nil, err
		}
		if el, ok := side.Element(op.ElementID); ok {
			return side, el, nil
		}
	} else {
		for _, side := range []*document.Side{&ds.doc.Front, &ds.doc.Back} {
			if el, ok := side.Element(op.ElementID); ok {
				return side, el, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", document.ErrElementNotFound, op.ElementID)
}

func (ds *DocumentState) applyCreate(op *Operation) error {
	if op.Element == nil {
		return fmt.Errorf("%w: element is required", ErrInvalidOperation)
	}
	el := op.Element.Clone()
	if el.ID == "" || !el.Type.Valid() {
		return fmt.Errorf("%w: element needs an id and a known type", ErrInvalidOperation)
	}
	side, err := ds.side(op.Side)
	if err != nil {
		return err
	}
	for _, s := range []*document.Side{&ds.doc.Front, &ds.doc.Back} {
		if s.Index(el.ID) >= 0 {
			return fmt.Errorf("%w: element %s already exists", ErrInvalidOperation, el.ID)
		}
	}

	el.ClampSize()
	side.Insert(el, op.Index)
	op.ElementID = el.ID
	return nil
}

func (ds *DocumentState) applyUpdate(op *Operation) error {
	if op.Patch == nil || op.Patch.IsEmpty() {
		return fmt.Errorf("%w: patch is empty", ErrInvalidOperation)
	}
	_, el, err := ds.findElement(op)
	if err != nil {
		return err
	}
	el.Apply(*op.Patch)
	return nil
}

func (ds *DocumentState) applyDelete(op *Operation) error {
	side, el, err := ds.findElement(op)
	if err != nil {
		return err
	}
	removed := el.Clone()
	side.Remove(op.ElementID)
	op.Element = &removed
	return nil
}

func (ds *DocumentState) applyReorder(op *Operation) error {
	if op.Index == nil {
		return fmt.Errorf("%w: index is required", ErrInvalidOperation)
	}
	side, el, err := ds.findElement(op)
	if err != nil {
		return err
	}
	moved := el.Clone()
	side.Remove(op.ElementID)
	side.Insert(moved, op.Index)
	return nil
}

func (ds *DocumentState) applyBackground(op *Operation) error {
	if op.BgURL == nil {
		return fmt.Errorf("%w: bgUrl is required", ErrInvalidOperation)
	}
	side, err := ds.side(op.Side)
	if err != nil {
		return err
	}
	side.BgURL = *op.BgURL
	return nil
}

func (ds *DocumentState) applyProjectRename(op *Operation) error {
	name := strings.TrimSpace(op.Name)
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidOperation)
	}
	ds.doc.Name = name
	return nil
}

func (ds *DocumentState) applyFilenamePattern(op *Operation) error {
	if op.FilenamePattern == nil {
		return fmt.Errorf("%w: filenamePattern is required", ErrInvalidOperation)
	}
	ds.doc.FilenamePattern = strings.TrimSpace(*op.FilenamePattern)
	return nil
}

func serverTimestamp() int64 {
	return time.Now().UnixMilli()
}
