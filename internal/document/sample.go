package document

import (
	"time"

	"github.com/procertify/studio/backend-go/internal/typeid"
)

// Default canvas size, roughly A4 landscape.
const (
	DefaultWidth  = 2000
	DefaultHeight = 1414
)

// NewElement creates an element of the given type at (x, y) with the
// palette's default geometry and styling.
func NewElement(t ElementType, x, y float64) Element {
	el := Element{
		ID:   typeid.NewElementID(),
		Type: t,
		X:    x,
		Y:    y,
	}

	switch t {
	case ElementText:
		el.Width, el.Height = 400, 60
		el.FontSize = 32
		el.FontFamily = "Inter, sans-serif"
		el.Color = "#000000"
		el.TextAlign = AlignCenter
		el.Content = "Yeni Metin"
	case ElementDropdown:
		el.Width, el.Height = 300, 50
		el.FontSize = 24
		el.FontFamily = "Inter, sans-serif"
		el.Color = "#000000"
		el.TextAlign = AlignCenter
		el.Options = []string{"Seçenek 1", "Seçenek 2"}
	case ElementCompany:
		el.Width, el.Height = 300, 50
		el.FontSize = 24
		el.FontFamily = "Inter, sans-serif"
		el.Color = "#000000"
		el.TextAlign = AlignCenter
	case ElementTCKN:
		el.Width, el.Height = 260, 50
		el.FontSize = 24
		el.FontFamily = "Inter, sans-serif"
		el.Color = "#000000"
		el.TextAlign = AlignCenter
		el.Label = "TC Kimlik No"
	case ElementImage:
		el.Width, el.Height = 200, 200
	case ElementSignature:
		el.Width, el.Height = 240, 100
		el.Label = "İmza"
	case ElementQRCode:
		el.Width, el.Height = 150, 150
		el.Color = DefaultQRColor
	case ElementChoiceBox:
		el.Width, el.Height = 40, 40
		el.Options = []string{defaultChoiceLabels[0], defaultChoiceLabels[1]}
	default:
		el.Width, el.Height = 100, 100
	}

	return el
}

// NewEmptyProject creates a blank two-sided project.
func NewEmptyProject(projectID, name string) *Project {
	return &Project{
		ID:        projectID,
		Name:      name,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		Front:     Side{Elements: []Element{}},
		Back:      Side{Elements: []Element{}},
		CreatedAt: time.Now().UnixMilli(),
	}
}

// NewSampleProject creates a project with one element of most variants on
// the front side, used by the playground.
func NewSampleProject(projectID string) *Project {
	p := NewEmptyProject(projectID, "Örnek Sertifika")
	p.FilenamePattern = "{Ad Soyad}-{Tarih}"

	title := NewElement(ElementText, 600, 180)
	title.Width = 800
	title.FontSize = 72
	title.FontFamily = "Cinzel, serif"
	title.FontWeight = "bold"
	title.Content = "BAŞARI SERTİFİKASI"

	name := NewElement(ElementText, 700, 520)
	name.Width = 600
	name.FontSize = 48
	name.FontFamily = "Great Vibes, cursive"
	name.Label = "Ad Soyad"
	name.Content = ""

	date := NewElement(ElementText, 200, 1150)
	date.Width = 300
	date.FontSize = 24
	date.Label = "Tarih"
	date.Content = ""

	course := NewElement(ElementDropdown, 700, 700)
	course.Width = 600
	course.Options = []string{"Temel Eğitim", "İleri Eğitim"}
	course.Label = "Eğitim"

	company := NewElement(ElementCompany, 700, 820)
	company.Width = 600

	signature := NewElement(ElementSignature, 1500, 1100)

	qr := NewElement(ElementQRCode, 1750, 80)
	qr.Content = "https://example.com/verify"

	attended := NewElement(ElementChoiceBox, 700, 950)
	attended.Label = "Katılım"

	p.Front.Elements = []Element{title, name, date, course, company, signature, qr, attended}

	tckn := NewElement(ElementTCKN, 870, 600)
	p.Back.Elements = []Element{tckn}

	return p
}
