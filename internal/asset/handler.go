package asset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"github.com/procertify/studio/backend-go/internal/typeid"
)

const maxUploadSize = 10 << 20 // 10MB

// Kinds of uploaded images. The kind only tells the client where the asset
// is meant to be used; every asset is stored the same way.
const (
	KindImage      = "image"
	KindSignature  = "signature"
	KindBackground = "background"
)

// UploadResponse is returned from the upload endpoints.
type UploadResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Name   string `json:"name"`
}

type signatureRequest struct {
	DataURL string `json:"dataUrl"`
	Name    string `json:"name"`
}

// Handler serves asset upload and retrieval endpoints.
type Handler struct {
	dir string // directory to store asset files
}

// NewHandler creates a new asset handler that stores files in dir.
func NewHandler(dir string) *Handler {
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("create asset dir", "error", err, "dir", dir)
	}
	return &Handler{dir: dir}
}

// Dir returns the directory assets are stored in.
func (h *Handler) Dir() string { return h.dir }

// Upload handles POST /assets/upload (multipart form with "file" and an
// optional "kind" field).
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "file too large (max 10MB)", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/png") && !strings.HasPrefix(contentType, "image/jpeg") {
		http.Error(w, "only PNG and JPEG images are supported", http.StatusBadRequest)
		return
	}

	kind, ok := parseKind(r.FormValue("kind"))
	if !ok {
		http.Error(w, "invalid kind: must be image, signature, or background", http.StatusBadRequest)
		return
	}

	img, _, err := image.Decode(file)
	if err != nil {
		http.Error(w, "invalid image: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.save(img, kind, header.Filename)
	if err != nil {
		slog.Error("save asset", "error", err)
		http.Error(w, "failed to save file", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Signature handles POST /assets/signature with a drawn signature sent as a
// PNG or JPEG data URL.
func (h *Handler) Signature(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	var req signatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	data, mime, err := DecodeDataURL(req.DataURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if mime != "image/png" && mime != "image/jpeg" {
		http.Error(w, "only PNG and JPEG images are supported", http.StatusBadRequest)
		return
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		http.Error(w, "invalid image: "+err.Error(), http.StatusBadRequest)
		return
	}

	name := req.Name
	if name == "" {
		name = "signature.png"
	}
	resp, err := h.save(img, KindSignature, name)
	if err != nil {
		slog.Error("save signature", "error", err)
		http.Error(w, "failed to save file", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Remove handles DELETE /assets/{assetId}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["assetId"]
	if !typeid.HasPrefix(assetID, typeid.PrefixAsset) {
		http.Error(w, "invalid asset id", http.StatusBadRequest)
		return
	}

	if err := h.Delete(assetID); err != nil {
		http.Error(w, "asset not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) save(img image.Image, kind, name string) (*UploadResponse, error) {
	assetID := typeid.NewAssetID()
	filename := assetID + ".png"
	filePath := filepath.Join(h.dir, filename)

	out, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("create asset file: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("encode png: %w", err)
	}

	bounds := img.Bounds()
	return &UploadResponse{
		ID:     assetID,
		URL:    fmt.Sprintf("/assets/%s", filename),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Type:   "png",
		Kind:   kind,
		Name:   name,
	}, nil
}

// Serve returns an http.Handler that serves stored asset files with caching headers.
func (h *Handler) Serve() http.Handler {
	fs := http.FileServer(http.Dir(h.dir))
	return http.StripPrefix("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Asset IDs are unique, so files are immutable
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	}))
}

// Delete removes an asset file from disk.
func (h *Handler) Delete(assetID string) error {
	path := filepath.Join(h.dir, filepath.Base(assetID)+".png")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("asset not found: %s", assetID)
	}
	return nil
}

func parseKind(kind string) (string, bool) {
	switch kind {
	case "":
		return KindImage, true
	case KindImage, KindSignature, KindBackground:
		return kind, true
	}
	return "", false
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
