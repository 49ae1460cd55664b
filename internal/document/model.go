package document

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrElementNotFound = errors.New("element not found")
	ErrUnknownSide     = errors.New("unknown side")
)

// Geometry limits shared by every consumer of element sizes.
const (
	MinElementSize  = 20.0
	MinFontSize     = 10.0
	DefaultFontSize = 20.0
	SecondaryOffset = 100.0

	DefaultQRColor   = "#000000"
	DefaultQRPayload = "https://example.com"
)

type ElementType string

const (
	ElementText      ElementType = "TEXT"
	ElementImage     ElementType = "IMAGE"
	ElementSignature ElementType = "SIGNATURE"
	ElementDropdown  ElementType = "DROPDOWN"
	ElementQRCode    ElementType = "QRCODE"
	ElementCompany   ElementType = "COMPANY"
	ElementTCKN      ElementType = "TCKN"
	ElementChoiceBox ElementType = "CHOICE_BOX"
)

// Valid reports whether t is one of the known element variants.
func (t ElementType) Valid() bool {
	switch t {
	case ElementText, ElementImage, ElementSignature, ElementDropdown,
		ElementQRCode, ElementCompany, ElementTCKN, ElementChoiceBox:
		return true
	}
	return false
}

// TextBearing reports whether elements of this type render text and scale
// their font with width.
func (t ElementType) TextBearing() bool {
	switch t {
	case ElementText, ElementDropdown, ElementCompany, ElementTCKN:
		return true
	}
	return false
}

type TextAlign string

const (
	AlignLeft   TextAlign = "left"
	AlignCenter TextAlign = "center"
	AlignRight  TextAlign = "right"
)

// Element is a placed object on one side of a certificate.
type Element struct {
	ID      string      `json:"id"`
	Type    ElementType `json:"type"`
	Content string      `json:"content"`
	X       float64     `json:"x"`
	Y       float64     `json:"y"`
	Width   float64     `json:"width"`
	Height  float64     `json:"height"`

	FontSize   float64   `json:"fontSize,omitempty"`
	FontFamily string    `json:"fontFamily,omitempty"`
	Color      string    `json:"color,omitempty"`
	FontWeight string    `json:"fontWeight,omitempty"`
	FontStyle  string    `json:"fontStyle,omitempty"`
	TextAlign  TextAlign `json:"textAlign,omitempty"`

	Label               string   `json:"label,omitempty"`
	AllowedSignatureIDs []string `json:"allowedSignatureIds,omitempty"`
	Options             []string `json:"options,omitempty"`

	// Second option box of a CHOICE_BOX. Nil means "use the default".
	SecondaryX *float64 `json:"secondaryX,omitempty"`
	SecondaryY *float64 `json:"secondaryY,omitempty"`
}

// DefaultSecondary returns the position of a choice box's second option box,
// falling back to (x+100, y) for each coordinate that was never set.
func DefaultSecondary(el Element) (float64, float64) {
	sx := el.X + SecondaryOffset
	sy := el.Y
	if el.SecondaryX != nil {
		sx = *el.SecondaryX
	}
	if el.SecondaryY != nil {
		sy = *el.SecondaryY
	}
	return sx, sy
}

var defaultChoiceLabels = [2]string{"Evet", "Hayır"}

// ChoiceLabels returns the two option labels of a choice box.
func ChoiceLabels(el Element) [2]string {
	labels := defaultChoiceLabels
	for i := 0; i < len(el.Options) && i < 2; i++ {
		if el.Options[i] != "" {
			labels[i] = el.Options[i]
		}
	}
	return labels
}

// ChoiceSelection returns 1 or 2 for the selected option, 0 when nothing is selected.
func ChoiceSelection(el Element) int {
	if el.Content == "" {
		return 0
	}
	labels := ChoiceLabels(el)
	switch el.Content {
	case labels[0]:
		return 1
	case labels[1]:
		return 2
	}
	return 0
}

// EffectiveFontSize returns the element's font size, or the default when unset.
func (e Element) EffectiveFontSize() float64 {
	if e.FontSize > 0 {
		return e.FontSize
	}
	return DefaultFontSize
}

// ClampSize raises width and height to MinElementSize.
func (e *Element) ClampSize() {
	e.Width = max(MinElementSize, e.Width)
	e.Height = max(MinElementSize, e.Height)
}

// Clone returns a deep copy of the element.
func (e Element) Clone() Element {
	c := e
	c.AllowedSignatureIDs = slices.Clone(e.AllowedSignatureIDs)
	c.Options = slices.Clone(e.Options)
	if e.SecondaryX != nil {
		v := *e.SecondaryX
		c.SecondaryX = &v
	}
	if e.SecondaryY != nil {
		v := *e.SecondaryY
		c.SecondaryY = &v
	}
	return c
}

// Side is one face of a certificate: a background plus its elements in
// draw order (later entries draw on top).
type Side struct {
	BgURL    string    `json:"bgUrl"`
	Elements []Element `json:"elements"`
}

// Index returns the position of the element with the given id, or -1.
func (s *Side) Index(id string) int {
	for i := range s.Elements {
		if s.Elements[i].ID == id {
			return i
		}
	}
	return -1
}

// Element returns a pointer to the element with the given id.
func (s *Side) Element(id string) (*Element, bool) {
	i := s.Index(id)
	if i < 0 {
		return nil, false
	}
	return &s.Elements[i], true
}

// Insert places el at index, or appends it when index is nil or out of range.
func (s *Side) Insert(el Element, index *int) {
	if index != nil && *index >= 0 && *index <= len(s.Elements) {
		s.Elements = slices.Insert(s.Elements, *index, el)
		return
	}
	s.Elements = append(s.Elements, el)
}

// Remove deletes the element with the given id and reports whether it existed.
func (s *Side) Remove(id string) bool {
	i := s.Index(id)
	if i < 0 {
		return false
	}
	s.Elements = slices.Delete(s.Elements, i, i+1)
	return true
}

type SideName string

const (
	SideFront SideName = "front"
	SideBack  SideName = "back"
)

// Project is a two-sided certificate design.
type Project struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Front           Side   `json:"front"`
	Back            Side   `json:"back"`
	CreatedAt       int64  `json:"createdAt"`
	FilenamePattern string `json:"filenamePattern,omitempty"`
}

// Side returns the named side of the project.
func (p *Project) Side(name SideName) (*Side, error) {
	switch name {
	case SideFront, "":
		return &p.Front, nil
	case SideBack:
		return &p.Back, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSide, name)
}

type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
}

type SavedSignature struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}
