package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/procertify/studio/backend-go/internal/asset"
)

var ErrUnsupportedSource = errors.New("unsupported image source")

// ImageLoader resolves an element or background image reference.
type ImageLoader interface {
	Load(ctx context.Context, src string) (image.Image, error)
}

// SourceLoader loads data URLs and files served from the asset directory.
// Remote URLs are not fetched.
type SourceLoader struct {
	AssetDir string
}

func (l *SourceLoader) Load(ctx context.Context, src string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case strings.HasPrefix(src, "data:"):
		data, _, err := asset.DecodeDataURL(src)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode data url image: %w", err)
		}
		return img, nil

	case strings.HasPrefix(src, "/assets/") && l.AssetDir != "":
		name := filepath.Base(strings.TrimPrefix(src, "/assets/"))
		if name == "." || name == ".." || name == string(filepath.Separator) {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, src)
		}
		f, err := os.Open(filepath.Join(l.AssetDir, name))
		if err != nil {
			return nil, fmt.Errorf("open asset: %w", err)
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("decode asset %s: %w", name, err)
		}
		return img, nil
	}

	return nil, fmt.Errorf("%w: %.32q", ErrUnsupportedSource, src)
}
