package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/procertify/studio/backend-go/internal/auth"
	"github.com/procertify/studio/backend-go/internal/document"
	"github.com/procertify/studio/backend-go/internal/project"
)

const (
	maxRequestSize  = 20 << 20 // 20MB, sides can carry data URL images
	defaultFilename = "sertifika"
)

// DocumentSource loads a project's latest document on behalf of a user.
type DocumentSource interface {
	Document(ctx context.Context, projectID, userID string) (*document.Project, error)
}

type Handler struct {
	renderer  *Renderer
	documents DocumentSource
}

func NewHandler(renderer *Renderer, documents DocumentSource) *Handler {
	return &Handler{renderer: renderer, documents: documents}
}

type pngRequest struct {
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Side     document.Side `json:"side"`
	Filename string        `json:"filename"`
}

// ExportPNG handles POST /export/png: it renders the side in the request
// body. Used by the playground, which has no stored project.
func (h *Handler) ExportPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)

	var req pngRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Width == 0 && req.Height == 0 {
		req.Width, req.Height = document.DefaultWidth, document.DefaultHeight
	}

	name := document.ExpandFilename(req.Filename, req.Side, defaultFilename)
	h.writePNG(w, r, req.Side, req.Width, req.Height, name)
}

// ExportProject handles GET /api/projects/{projectId}/export/{side}. The
// attachment is named from the project's filename pattern.
func (h *Handler) ExportProject(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	vars := mux.Vars(r)
	projectID := vars["projectId"]
	sideName := document.SideName(vars["side"])

	doc, err := h.documents.Document(r.Context(), projectID, userID)
	if err != nil {
		switch {
		case errors.Is(err, project.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		case errors.Is(err, project.ErrForbidden), errors.Is(err, project.ErrNotMember):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
		default:
			slog.Error("load document for export", "error", err, "project", projectID)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		}
		return
	}

	side, err := doc.Side(sideName)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "side must be front or back"})
		return
	}

	name := document.ExpandFilename(doc.FilenamePattern, *side, "")
	if name == "" {
		name = document.ExpandFilename(doc.Name, document.Side{}, defaultFilename)
	}
	if sideName == document.SideBack {
		name += "-back"
	}

	h.writePNG(w, r, *side, doc.Width, doc.Height, name)
}

func (h *Handler) writePNG(w http.ResponseWriter, r *http.Request, side document.Side, width, height int, name string) {
	var buf bytes.Buffer
	err := h.renderer.RenderPNG(r.Context(), &buf, side, width, height)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSize):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrCanvasTooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		default:
			slog.Error("export failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name + ".png"}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())

	slog.Info("export complete", "elements", len(side.Elements), "width", width, "height", height, "size", buf.Len())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
