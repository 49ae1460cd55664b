package qr

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
	"golang.org/x/image/draw"
)

const DefaultSize = 400

var ErrInvalidColor = errors.New("invalid color")

// Renderer encodes payloads as square QR bitmaps with a transparent
// background. It is safe for concurrent use.
type Renderer struct {
	Size int
}

func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Renderer{Size: size}
}

// RenderQR returns the QR code for payload as a PNG data URL.
func (r *Renderer) RenderQR(ctx context.Context, payload, hex string) (string, error) {
	data, err := r.PNG(ctx, payload, hex)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// PNG encodes the QR code for payload as PNG bytes, Size pixels square.
func (r *Renderer) PNG(ctx context.Context, payload, hex string) ([]byte, error) {
	img, err := r.Image(ctx, payload, hex)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Image renders the QR code for payload in the given #rrggbb color.
func (r *Renderer) Image(ctx context.Context, payload, hex string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fg, err := ParseColor(hex)
	if err != nil {
		return nil, err
	}

	qrc, err := qrcode.NewWith(payload, qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionMedium))
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	size := r.Size
	if size <= 0 {
		size = DefaultSize
	}
	block := size / max(1, qrc.Dimension())
	block = min(max(block, 1), 255)

	var buf bytes.Buffer
	w := standard.NewWithWriter(nopCloser{&buf},
		standard.WithQRWidth(uint8(block)),
		standard.WithBorderWidth(0),
		standard.WithBgTransparent(),
		standard.WithFgColor(fg),
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
	)
	if err := qrc.Save(w); err != nil {
		return nil, fmt.Errorf("draw qr: %w", err)
	}

	src, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decode qr: %w", err)
	}
	if b := src.Bounds(); b.Dx() == size && b.Dy() == size {
		return src, nil
	}

	// Modules must stay crisp, so no interpolation.
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst, nil
}

// ParseColor parses a #rrggbb (or #rgb) color into an opaque color.
func ParseColor(hex string) (color.NRGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w %q", ErrInvalidColor, hex)
	}
	red, green, blue := c.RGB255()
	return color.NRGBA{R: red, G: green, B: blue, A: 255}, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
