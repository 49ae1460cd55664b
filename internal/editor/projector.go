package editor

import (
	"strings"

	"github.com/procertify/studio/backend-go/internal/document"
)

// Stacking order of projected elements.
const (
	zDefault  = 10
	zSelected = 50
)

// TextStyle is the resolved text styling of a text-bearing element.
type TextStyle struct {
	FontSize   float64            `json:"fontSize"`
	FontFamily string             `json:"fontFamily,omitempty"`
	Color      string             `json:"color,omitempty"`
	FontWeight string             `json:"fontWeight,omitempty"`
	FontStyle  string             `json:"fontStyle"`
	TextAlign  document.TextAlign `json:"textAlign"`
}

// ChoiceVisual is one option box of a choice box.
type ChoiceVisual struct {
	Bounds  Rect   `json:"bounds"`
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

// Visual describes how to draw one element. The host turns it into pixels.
type Visual struct {
	ElementID string               `json:"elementId"`
	Type      document.ElementType `json:"type"`
	Bounds    Rect                 `json:"bounds"`
	Z         int                  `json:"z"`

	Text        string     `json:"text,omitempty"`
	Placeholder bool       `json:"placeholder,omitempty"`
	Style       *TextStyle `json:"style,omitempty"`
	ImageSrc    string     `json:"imageSrc,omitempty"`
	Dashed      bool       `json:"dashed,omitempty"`
	HintLabel   string     `json:"hintLabel,omitempty"`

	Choices []ChoiceVisual `json:"choices,omitempty"`

	Interactive   bool  `json:"interactive"`
	Selected      bool  `json:"selected,omitempty"`
	Handle        *Rect `json:"handle,omitempty"`
	DeleteControl *Rect `json:"deleteControl,omitempty"`
}

// ArtifactSource looks up rendered bitmaps for an element.
type ArtifactSource interface {
	Lookup(el document.Element) (string, bool)
}

var placeholders = map[document.ElementType]string{
	document.ElementText:      "{Metin}",
	document.ElementDropdown:  "{Seçenek}",
	document.ElementCompany:   "{Firma}",
	document.ElementTCKN:      "{TCKN}",
	document.ElementSignature: "İMZA ALANI",
	document.ElementQRCode:    "BOŞ QR",
}

var hintLabels = map[document.ElementType]string{
	document.ElementDropdown: "Seçenekli Alan",
	document.ElementCompany:  "Firma Alanı",
	document.ElementTCKN:     "TCKN Alanı",
}

// Project maps an element to its visual description. Read-only output has
// no handles, delete control, hints or placeholder text: only committed
// content is shown.
func Project(el document.Element, selected, readOnly bool, artifacts ArtifactSource) Visual {
	v := Visual{
		ElementID:   el.ID,
		Type:        el.Type,
		Bounds:      ElementBounds(el),
		Z:           zDefault,
		Interactive: !readOnly,
	}
	if selected {
		v.Z = zSelected
	}
	if selected && !readOnly {
		handle := HandleBounds(el)
		del := DeleteBounds(el)
		v.Selected = true
		v.Handle = &handle
		v.DeleteControl = &del
	}

	switch {
	case el.Type.TextBearing():
		v.Style = textStyle(el)
		v.Text = el.Content
		if el.Content == "" && !readOnly {
			v.Text = placeholders[el.Type]
			v.Placeholder = true
			v.Dashed = el.Type == document.ElementText
		}
		if !readOnly {
			v.HintLabel = hintLabels[el.Type]
		}

	case el.Type == document.ElementQRCode:
		if artifacts != nil {
			v.ImageSrc, _ = artifacts.Lookup(el)
		}
		if el.Content == "" && !readOnly {
			v.Text = placeholders[el.Type]
			v.Placeholder = true
		}

	case el.Type == document.ElementSignature:
		if strings.HasPrefix(el.Content, "data:image") {
			v.ImageSrc = el.Content
		} else if !readOnly {
			v.Text = placeholders[el.Type]
			v.Placeholder = true
			v.Dashed = true
		}

	case el.Type == document.ElementImage:
		v.ImageSrc = el.Content

	case el.Type == document.ElementChoiceBox:
		labels := document.ChoiceLabels(el)
		sel := document.ChoiceSelection(el)
		v.Choices = []ChoiceVisual{
			{Bounds: ElementBounds(el), Label: labels[0], Checked: sel == 1},
			{Bounds: SecondaryBounds(el), Label: labels[1], Checked: sel == 2},
		}
	}

	return v
}

// ProjectAll projects every element in draw order.
func ProjectAll(elements []document.Element, selectedID string, readOnly bool, artifacts ArtifactSource) []Visual {
	visuals := make([]Visual, len(elements))
	for i, el := range elements {
		visuals[i] = Project(el, el.ID == selectedID, readOnly, artifacts)
	}
	return visuals
}

func textStyle(el document.Element) *TextStyle {
	style := &TextStyle{
		FontSize:   el.EffectiveFontSize(),
		FontFamily: el.FontFamily,
		Color:      el.Color,
		FontWeight: el.FontWeight,
		FontStyle:  el.FontStyle,
		TextAlign:  el.TextAlign,
	}
	if style.FontStyle == "" {
		style.FontStyle = "normal"
	}
	if style.TextAlign == "" {
		style.TextAlign = document.AlignCenter
	}
	return style
}
