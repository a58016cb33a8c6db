package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/movielist/apiserver/internal/authz"
)

const (
	maxPosterBytes     = 10 << 20
	maxMultipartMemory = 2 << 20
	formFieldFile      = "file"
)

// PosterService stores and serves poster images.
type PosterService interface {
	UploadPoster(ctx context.Context, r io.Reader, size int64, contentType string) (string, error)
	OpenPoster(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// FileHandler serves /files. Retrieval is public, upload is admin only.
type FileHandler struct {
	posters PosterService
	logger  *slog.Logger
}

func NewFileHandler(posters PosterService, logger *slog.Logger) *FileHandler {
	return &FileHandler{posters: posters, logger: logger}
}

// FileRouter registers file routes on the given router.
func FileRouter(r chi.Router, posters PosterService, policy authz.Policy, logger *slog.Logger) {
	handler := NewFileHandler(posters, logger)

	r.With(Authorize(policy, authz.OpFileUpload)).Post("/upload", handler.Upload)
	r.Get("/{name}", handler.Download)
}

type UploadResponse struct {
	Name string `json:"name"`
}

// Upload accepts a multipart form with the image in field "file".
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPosterBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	if header.Size > maxPosterBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	name, err := h.posters.UploadPoster(r.Context(), file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		respondError(w, r, h.logger, "files.upload", err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{Name: name})
}

func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := h.posters.OpenPoster(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, r, h.logger, "files.download", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "poster stream interrupted", "name", chi.URLParam(r, "name"), "error", err)
	}
}
