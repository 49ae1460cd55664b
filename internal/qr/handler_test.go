package qr

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestHandlerPNG(t *testing.T) {
	h := NewHandler(NewRenderer(120))

	tests := []struct {
		name       string
		query      url.Values
		wantStatus int
	}{
		{"default color", url.Values{"data": {"https://example.com/verify/1"}}, http.StatusOK},
		{"custom color", url.Values{"data": {"x"}, "color": {"#1a73e8"}}, http.StatusOK},
		{"missing data", url.Values{}, http.StatusBadRequest},
		{"oversized data", url.Values{"data": {strings.Repeat("a", maxPayloadLength+1)}}, http.StatusBadRequest},
		{"bad color", url.Values{"data": {"x"}, "color": {"blue"}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/qr?"+tt.query.Encode(), nil)
			rec := httptest.NewRecorder()
			h.PNG(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
				t.Fatalf("content type = %q", ct)
			}
			img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 120 || b.Dy() != 120 {
				t.Fatalf("size = %v", b)
			}
		})
	}
}
