package export

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/goregular"
)

type fontVariant int

const (
	variantRegular fontVariant = iota
	variantBold
	variantItalic
	variantBoldItalic
	variantMono
	variantMonoBold
)

var variantTTF = map[fontVariant][]byte{
	variantRegular:    goregular.TTF,
	variantBold:       gobold.TTF,
	variantItalic:     goitalic.TTF,
	variantBoldItalic: gobolditalic.TTF,
	variantMono:       gomono.TTF,
	variantMonoBold:   gomonobold.TTF,
}

// selectVariant maps CSS-like family, weight and style values onto the
// bundled Go fonts.
func selectVariant(family, weight, style string) fontVariant {
	bold := isBold(weight)
	italic := style == "italic" || style == "oblique"

	if strings.Contains(strings.ToLower(family), "mono") {
		if bold {
			return variantMonoBold
		}
		return variantMono
	}
	switch {
	case bold && italic:
		return variantBoldItalic
	case bold:
		return variantBold
	case italic:
		return variantItalic
	}
	return variantRegular
}

func isBold(weight string) bool {
	switch weight {
	case "bold", "bolder":
		return true
	}
	n, err := strconv.Atoi(weight)
	return err == nil && n >= 600
}

type faceKey struct {
	variant fontVariant
	size    float64
}

// fontCache parses each bundled font once. Parsed fonts are shared; faces
// carry glyph caches and are not, so each render gets its own faceSet.
type fontCache struct {
	mu    sync.Mutex
	fonts map[fontVariant]*truetype.Font
}

func newFontCache() *fontCache {
	return &fontCache{fonts: make(map[fontVariant]*truetype.Font)}
}

func (c *fontCache) font(variant fontVariant) (*truetype.Font, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f, ok := c.fonts[variant]; ok {
		return f, nil
	}
	f, err := truetype.Parse(variantTTF[variant])
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	c.fonts[variant] = f
	return f, nil
}

func (c *fontCache) newFaceSet() *faceSet {
	return &faceSet{cache: c, faces: make(map[faceKey]font.Face)}
}

// faceSet holds the faces used by one render.
type faceSet struct {
	cache *fontCache
	faces map[faceKey]font.Face
}

func (s *faceSet) face(variant fontVariant, size float64) (font.Face, error) {
	key := faceKey{variant: variant, size: size}
	if f, ok := s.faces[key]; ok {
		return f, nil
	}
	ttf, err := s.cache.font(variant)
	if err != nil {
		return nil, err
	}
	f := truetype.NewFace(ttf, &truetype.Options{Size: size})
	s.faces[key] = f
	return f, nil
}

func (s *faceSet) Close() {
	for _, f := range s.faces {
		f.Close()
	}
}
