package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/procertify/studio/backend-go/internal/document"
	"github.com/procertify/studio/backend-go/internal/editor"
	"github.com/procertify/studio/backend-go/internal/qr"
)

var (
	ErrInvalidSize    = errors.New("invalid canvas size")
	ErrCanvasTooLarge = errors.New("canvas too large")
)

const (
	DefaultMaxPixels = 16_000_000

	qrConcurrency = 4
	lineSpacing   = 1.2
)

// QRImager renders a payload as a QR image.
type QRImager interface {
	Image(ctx context.Context, payload, color string) (image.Image, error)
}

// Renderer rasterizes a certificate side the way a viewer sees it: only
// committed content, no editing chrome.
type Renderer struct {
	qr        QRImager
	images    ImageLoader
	maxPixels int
	fonts     *fontCache
}

func NewRenderer(qrImager QRImager, images ImageLoader, maxPixels int) *Renderer {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Renderer{
		qr:        qrImager,
		images:    images,
		maxPixels: maxPixels,
		fonts:     newFontCache(),
	}
}

// RenderPNG renders side and writes it to w as PNG.
func (r *Renderer) RenderPNG(ctx context.Context, w io.Writer, side document.Side, width, height int) error {
	img, err := r.Render(ctx, side, width, height)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// Render draws side onto a width x height canvas. Images and QR codes that
// fail to load are logged and left out.
func (r *Renderer) Render(ctx context.Context, side document.Side, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if width*height > r.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrCanvasTooLarge, width, height, r.maxPixels)
	}

	codes, err := r.renderQRCodes(ctx, side.Elements)
	if err != nil {
		return nil, err
	}

	faces := r.fonts.newFaceSet()
	defer faces.Close()

	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()

	if side.BgURL != "" {
		if bg, err := r.load(ctx, side.BgURL); err == nil {
			dst := dc.Image().(*image.RGBA)
			draw.ApproxBiLinear.Scale(dst, dst.Bounds(), bg, bg.Bounds(), draw.Over, nil)
		}
	}

	for _, v := range editor.ProjectAll(side.Elements, "", true, nil) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch v.Type {
		case document.ElementQRCode:
			if img, ok := codes[v.ElementID]; ok {
				drawContained(dc, img, v.Bounds, draw.NearestNeighbor)
			}
		case document.ElementImage, document.ElementSignature:
			if v.ImageSrc == "" {
				continue
			}
			if img, err := r.load(ctx, v.ImageSrc); err == nil {
				drawContained(dc, img, v.Bounds, draw.CatmullRom)
			}
		case document.ElementChoiceBox:
			drawChoices(dc, v.Choices)
		default:
			if err := drawText(dc, faces, v); err != nil {
				return nil, err
			}
		}
	}

	return dc.Image(), nil
}

func (r *Renderer) load(ctx context.Context, src string) (image.Image, error) {
	if r.images == nil {
		return nil, ErrUnsupportedSource
	}
	img, err := r.images.Load(ctx, src)
	if err != nil {
		slog.Warn("load image for export", "error", err)
		return nil, err
	}
	return img, nil
}

// renderQRCodes renders every QR element of the side concurrently.
func (r *Renderer) renderQRCodes(ctx context.Context, elements []document.Element) (map[string]image.Image, error) {
	var qrs []document.Element
	for _, el := range elements {
		if el.Type == document.ElementQRCode {
			qrs = append(qrs, el)
		}
	}
	codes := make(map[string]image.Image, len(qrs))
	if len(qrs) == 0 || r.qr == nil {
		return codes, nil
	}

	images := make([]image.Image, len(qrs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(qrConcurrency)
	for i, el := range qrs {
		g.Go(func() error {
			payload := el.Content
			if payload == "" {
				payload = document.DefaultQRPayload
			}
			img, err := r.qr.Image(gctx, payload, editor.KeyFor(el).Color)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("render qr for export", "error", err, "element", el.ID)
				return nil
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("render qr codes: %w", err)
	}

	for i, img := range images {
		if img != nil {
			codes[qrs[i].ID] = img
		}
	}
	return codes, nil
}

func drawText(dc *gg.Context, faces *faceSet, v editor.Visual) error {
	if v.Text == "" || v.Style == nil {
		return nil
	}
	face, err := faces.face(selectVariant(v.Style.FontFamily, v.Style.FontWeight, v.Style.FontStyle), v.Style.FontSize)
	if err != nil {
		return err
	}

	dc.SetFontFace(face)
	dc.SetColor(parseColor(v.Style.Color, color.Black))
	b := v.Bounds
	dc.DrawStringWrapped(v.Text, b.X, b.Y+b.Height/2, 0, 0.5, b.Width, lineSpacing, textAlign(v.Style.TextAlign))
	return nil
}

func textAlign(a document.TextAlign) gg.Align {
	switch a {
	case document.AlignLeft:
		return gg.AlignLeft
	case document.AlignRight:
		return gg.AlignRight
	default:
		return gg.AlignCenter
	}
}

// drawContained scales src to fit inside b, keeping its aspect ratio, and
// centers it.
func drawContained(dc *gg.Context, src image.Image, b editor.Rect, scaler draw.Scaler) {
	sb := src.Bounds()
	if sb.Empty() || b.IsEmpty() {
		return
	}

	scale := min(b.Width/float64(sb.Dx()), b.Height/float64(sb.Dy()))
	w := max(1, int(math.Round(float64(sb.Dx())*scale)))
	h := max(1, int(math.Round(float64(sb.Dy())*scale)))

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	scaler.Scale(dst, dst.Bounds(), src, sb, draw.Src, nil)

	x := b.X + (b.Width-float64(w))/2
	y := b.Y + (b.Height-float64(h))/2
	dc.DrawImage(dst, int(math.Round(x)), int(math.Round(y)))
}

func drawChoices(dc *gg.Context, choices []editor.ChoiceVisual) {
	dc.SetColor(color.Black)
	for _, c := range choices {
		b := c.Bounds
		stroke := max(2, b.Width/16)
		dc.SetLineWidth(stroke)
		dc.DrawRectangle(b.X+stroke/2, b.Y+stroke/2, b.Width-stroke, b.Height-stroke)
		dc.Stroke()

		if !c.Checked {
			continue
		}
		dc.SetLineWidth(max(2, b.Width/10))
		dc.MoveTo(b.X+0.22*b.Width, b.Y+0.52*b.Height)
		dc.LineTo(b.X+0.42*b.Width, b.Y+0.72*b.Height)
		dc.LineTo(b.X+0.78*b.Width, b.Y+0.28*b.Height)
		dc.Stroke()
	}
}

func parseColor(hex string, fallback color.Color) color.Color {
	if hex == "" {
		return fallback
	}
	c, err := qr.ParseColor(hex)
	if err != nil {
		return fallback
	}
	return c
}
