package qr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
)

const maxPayloadLength = 2048

type Handler struct {
	renderer *Renderer
}

func NewHandler(renderer *Renderer) *Handler {
	return &Handler{renderer: renderer}
}

// PNG handles GET /qr?data=...&color=%23rrggbb and returns the QR bitmap.
func (h *Handler) PNG(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := q.Get("data")
	if data == "" || len(data) > maxPayloadLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "data is required and must be at most 2048 bytes"})
		return
	}
	hex := q.Get("color")
	if hex == "" {
		hex = "#000000"
	}

	img, err := h.renderer.PNG(r.Context(), data, hex)
	if err != nil {
		if errors.Is(err, ErrInvalidColor) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("render qr", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to render qr code"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(img)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
