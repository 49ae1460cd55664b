package document

import "slices"

// ElementPatch is a partial update to an element. Nil fields are left untouched.
type ElementPatch struct {
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`

	SecondaryX *float64 `json:"secondaryX,omitempty"`
	SecondaryY *float64 `json:"secondaryY,omitempty"`

	FontSize   *float64   `json:"fontSize,omitempty"`
	FontFamily *string    `json:"fontFamily,omitempty"`
	Color      *string    `json:"color,omitempty"`
	FontWeight *string    `json:"fontWeight,omitempty"`
	FontStyle  *string    `json:"fontStyle,omitempty"`
	TextAlign  *TextAlign `json:"textAlign,omitempty"`

	Content *string  `json:"content,omitempty"`
	Label   *string  `json:"label,omitempty"`
	Options []string `json:"options,omitempty"`
}

// Float returns a pointer to v, for building patches.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v, for building patches.
func String(v string) *string { return &v }

// IsEmpty reports whether the patch changes nothing.
func (p ElementPatch) IsEmpty() bool {
	return p.X == nil && p.Y == nil && p.Width == nil && p.Height == nil &&
		p.SecondaryX == nil && p.SecondaryY == nil &&
		p.FontSize == nil && p.FontFamily == nil && p.Color == nil &&
		p.FontWeight == nil && p.FontStyle == nil && p.TextAlign == nil &&
		p.Content == nil && p.Label == nil && p.Options == nil
}

// Apply merges the patch into e. Sizes are clamped to MinElementSize, font
// sizes to MinFontSize, and a choice box only accepts content that is empty
// or one of its two labels.
func (e *Element) Apply(p ElementPatch) {
	if p.X != nil {
		e.X = *p.X
	}
	if p.Y != nil {
		e.Y = *p.Y
	}
	if p.Width != nil {
		e.Width = max(MinElementSize, *p.Width)
	}
	if p.Height != nil {
		e.Height = max(MinElementSize, *p.Height)
	}
	if p.SecondaryX != nil {
		e.SecondaryX = Float(*p.SecondaryX)
	}
	if p.SecondaryY != nil {
		e.SecondaryY = Float(*p.SecondaryY)
	}
	if p.FontSize != nil {
		e.FontSize = max(MinFontSize, *p.FontSize)
	}
	if p.FontFamily != nil {
		e.FontFamily = *p.FontFamily
	}
	if p.Color != nil {
		e.Color = *p.Color
	}
	if p.FontWeight != nil {
		e.FontWeight = *p.FontWeight
	}
	if p.FontStyle != nil {
		e.FontStyle = *p.FontStyle
	}
	if p.TextAlign != nil {
		e.TextAlign = *p.TextAlign
	}
	if p.Label != nil {
		e.Label = *p.Label
	}
	if p.Options != nil {
		e.Options = slices.Clone(p.Options)
		if e.Type == ElementChoiceBox && ChoiceSelection(*e) == 0 {
			e.Content = ""
		}
	}
	if p.Content != nil {
		if e.Type != ElementChoiceBox || validChoice(*e, *p.Content) {
			e.Content = *p.Content
		}
	}
}

func validChoice(e Element, content string) bool {
	if content == "" {
		return true
	}
	labels := ChoiceLabels(e)
	return content == labels[0] || content == labels[1]
}
