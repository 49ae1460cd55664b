package asset

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidDataURL = errors.New("invalid data url")

// DecodeDataURL decodes a base64 data URL and returns its bytes and media
// type, e.g. "image/png".
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURL)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing payload", ErrInvalidDataURL)
	}

	mime, params, _ := strings.Cut(header, ";")
	if !strings.Contains(params, "base64") {
		return nil, "", fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURL)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return data, strings.ToLower(mime), nil
}
