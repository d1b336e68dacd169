package handler

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/recipe-list/internal/model"
	"github.com/sakif/recipe-list/internal/storage"
)

const imageCSP = "default-src 'none'; style-src 'unsafe-inline'; sandbox"

// ImageHandler serves stored pictures.
//
// A request for an unknown set or a missing file is answered with the
// placeholder image instead of a 404, so a broken reference renders as the
// stock picture.
type ImageHandler struct {
	files       storage.FileStore
	placeholder string // path of the stock placeholder on disk
	logger      *slog.Logger
}

func NewImageHandler(files storage.FileStore, staticDir string, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{
		files:       files,
		placeholder: filepath.Join(staticDir, "images", model.PlaceholderFilename),
		logger:      logger,
	}
}

// HandleImage streams a stored file.
//
// HTTP: GET /images/{set}/{name}
//
// Stored files are user uploads served from the site's origin, so every
// response forbids sniffing and runs under a sandboxing CSP.
func (h *ImageHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", imageCSP)

	name := chi.URLParam(r, "name")

	set, err := storage.ParseSet(chi.URLParam(r, "set"))
	if err != nil {
		h.logger.Warn("invalid upload set for image, using placeholder",
			slog.String("set", chi.URLParam(r, "set")),
		)
		h.servePlaceholder(w, r)
		return
	}

	rc, err := h.files.Open(r.Context(), set, name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotExist) {
			h.logger.Error("opening stored image",
				slog.String("set", string(set)),
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
		}
		h.servePlaceholder(w, r)
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("streaming image", slog.String("name", name), slog.String("error", err.Error()))
	}
}

func (h *ImageHandler) servePlaceholder(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(h.placeholder); err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, h.placeholder)
}
