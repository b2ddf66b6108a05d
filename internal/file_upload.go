package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// multipartSlack covers field boundaries and headers so a file of exactly
// the limit still fits in the request body.
const multipartSlack = 1 << 20

// FileUploadHandler accepts a single multipart file, stores it flat in the
// uploads directory under "<uuid>-<originalName>", and returns the
// metadata the client later echoes back in a file-message event. Nothing
// references the file until that event arrives; orphans are collected by
// the retention sweep.
type FileUploadHandler struct {
	uploadDir   string
	maxFileSize int64
	limiter     *RateLimiter
	metrics     *Metrics
}

// NewFileUploadHandler builds the handler. The limiter may be nil to
// disable per-IP throttling.
func NewFileUploadHandler(uploadDir string, maxFileSize int64, limiter *RateLimiter, metrics *Metrics) *FileUploadHandler {
	if maxFileSize <= 0 {
		maxFileSize = FileSizeLimit
	}
	return &FileUploadHandler{
		uploadDir:   uploadDir,
		maxFileSize: maxFileSize,
		limiter:     limiter,
		metrics:     metrics,
	}
}

// HandleUpload implements POST /upload.
func (h *FileUploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many uploads, slow down")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartSlack)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.metrics.UploadsRejected.Inc()
		writeError(w, http.StatusBadRequest, sizeErrorMessage(h.maxFileSize))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.metrics.UploadsRejected.Inc()
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if header.Size > h.maxFileSize {
		h.metrics.UploadsRejected.Inc()
		writeError(w, http.StatusBadRequest, sizeErrorMessage(h.maxFileSize))
		return
	}

	originalName := filepath.Base(header.Filename)
	if originalName == "" || originalName == "." || originalName == ".." || originalName == string(filepath.Separator) {
		h.metrics.UploadsRejected.Inc()
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	ref, err := h.store(file, header, originalName)
	if err != nil {
		slog.Error("upload_failed", "filename", originalName, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.metrics.UploadsTotal.Inc()
	h.metrics.UploadBytesTotal.Add(float64(ref.Size))
	slog.Info("file_uploaded", "id", ref.ID, "originalName", ref.OriginalName, "size", ref.Size)
	writeJSON(w, http.StatusOK, ref)
}

// store writes the part to disk. Any write error removes the partial file
// so a failed upload never leaves anything retrievable.
func (h *FileUploadHandler) store(file multipart.File, header *multipart.FileHeader, originalName string) (FileRef, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return FileRef{}, fmt.Errorf("create upload dir: %w", err)
	}

	id := uuid.NewString()
	storedName := id + "-" + originalName
	path := filepath.Join(h.uploadDir, storedName)

	dst, err := os.Create(path)
	if err != nil {
		return FileRef{}, fmt.Errorf("create file: %w", err)
	}
	written, err := io.Copy(dst, file)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > h.maxFileSize {
		err = errors.New("file exceeds size limit")
	}
	if err != nil {
		_ = os.Remove(path)
		return FileRef{}, fmt.Errorf("write file: %w", err)
	}

	mimetype := header.Header.Get("Content-Type")
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	return FileRef{
		ID:           id,
		Filename:     storedName,
		OriginalName: originalName,
		Size:         written,
		Mimetype:     mimetype,
		UploadedAt:   time.Now(),
		URL:          "/uploads/" + storedName,
	}, nil
}

func sizeErrorMessage(limit int64) string {
	return fmt.Sprintf("File too large. Maximum size is %dMB.", limit>>20)
}
