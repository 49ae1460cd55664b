package editor

import (
	"log/slog"
	"slices"

	"github.com/procertify/studio/backend-go/internal/document"
)

// Store is the mutable collection of elements for the side being edited.
// Order is draw order: later entries draw on top. It is owned by a single
// goroutine (the UI loop) and does no locking.
type Store struct {
	elements []document.Element
	version  uint64
}

// NewStore seeds a store. Elements with an id that was already seen are
// dropped, and sizes below MinElementSize are raised to it.
func NewStore(elements []document.Element) *Store {
	s := &Store{elements: make([]document.Element, 0, len(elements))}
	for _, el := range elements {
		if s.index(el.ID) >= 0 {
			slog.Warn("duplicate element id dropped", "id", el.ID)
			continue
		}
		el = el.Clone()
		el.ClampSize()
		s.elements = append(s.elements, el)
	}
	return s
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.elements, func(el document.Element) bool { return el.ID == id })
}

// Get returns a copy of the element with the given id.
func (s *Store) Get(id string) (document.Element, bool) {
	i := s.index(id)
	if i < 0 {
		return document.Element{}, false
	}
	return s.elements[i].Clone(), true
}

// Update merges patch into the element with the given id. A missing id is a
// no-op, which lets a session outlive its element without failing.
func (s *Store) Update(id string, patch document.ElementPatch) bool {
	i := s.index(id)
	if i < 0 || patch.IsEmpty() {
		return false
	}
	s.elements[i].Apply(patch)
	s.version++
	return true
}

// Insert adds el at index (or at the end when index is nil or out of range).
// It reports false when an element with the same id already exists.
func (s *Store) Insert(el document.Element, index *int) bool {
	if s.index(el.ID) >= 0 {
		return false
	}
	el = el.Clone()
	el.ClampSize()
	if index != nil && *index >= 0 && *index <= len(s.elements) {
		s.elements = slices.Insert(s.elements, *index, el)
	} else {
		s.elements = append(s.elements, el)
	}
	s.version++
	return true
}

// Delete removes the element with the given id and reports whether it existed.
func (s *Store) Delete(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.elements = slices.Delete(s.elements, i, i+1)
	s.version++
	return true
}

// List returns a copy of the elements in draw order.
func (s *Store) List() []document.Element {
	out := make([]document.Element, len(s.elements))
	for i, el := range s.elements {
		out[i] = el.Clone()
	}
	return out
}

func (s *Store) Len() int { return len(s.elements) }

// Version increases on every mutation.
func (s *Store) Version() uint64 { return s.version }
