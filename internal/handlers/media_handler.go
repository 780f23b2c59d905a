package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/imgvid/media-service/internal/middleware"
	"github.com/imgvid/media-service/internal/models"
	"github.com/imgvid/media-service/internal/services"
	"go.uber.org/zap"
)

// DefaultMaxDimension caps preview width and height when no limit is configured
const DefaultMaxDimension = 4096

// MediaService defines the interface for media service operations
type MediaService interface {
	// Upload classifies and stores the content read from "r".
	//
	// "filename" is the client-declared name, used only for the stored extension.
	// Returns models.ErrRejectedContent for content that is neither an image nor a video.
	Upload(ctx context.Context, r io.Reader, filename string) (*models.MediaRecord, error)
	// GetMetadata retrieves the media record of an identifier.
	//
	// Returns models.ErrNotFound for an unknown identifier.
	GetMetadata(ctx context.Context, id string) (*models.MediaRecord, error)
	// Download resolves an identifier to its original file or a preview of the given size.
	//
	// A preview is produced only when both "width" and "height" are positive.
	Download(ctx context.Context, id string, width, height int) (*services.Download, error)
}

// MediaHandler handles media-related HTTP requests
type MediaHandler struct {
	BaseHandler
	mediaService MediaService
	maxDimension int
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(mediaService MediaService, logger *zap.Logger, maxDimension int) *MediaHandler {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return &MediaHandler{
		BaseHandler:  BaseHandler{Logger: logger},
		mediaService: mediaService,
		maxDimension: maxDimension,
	}
}

// RegisterRoutes registers all media handler routes
func (h *MediaHandler) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.Upload)
	r.Post("/upload/", h.Upload)
	r.Get("/download/{id}", h.Download)
	r.Get("/media/{id}", h.GetMetadata)
}

// Upload handles POST /upload
// @Summary Upload media file
// @Description Upload an image or a video. The content is sniffed; anything else is rejected.
// @Description The file is sent as multipart field "file", or as the raw body with the name in X-Filename.
// @Tags media
// @Accept multipart/form-data
// @Accept application/octet-stream
// @Produce json
// @Param file formData file false "File to upload"
// @Param X-Filename header string false "File name for raw body uploads"
// @Success 200 {object} models.UploadResponse
// @Failure 400 {object} models.ErrorResponse "Rejected content or missing file"
// @Failure 413 {object} models.ErrorResponse "Request body too large"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /upload [post]
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	body, filename, closeBody, err := uploadBody(r)
	if err != nil {
		if isTooLarge(err) {
			h.RespondError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.Logger.Info("invalid upload request", zap.String("request_id", middleware.GetRequestID(r.Context())), zap.Error(err))
		h.RespondError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer closeBody()

	record, err := h.mediaService.Upload(r.Context(), body, filename)
	if err != nil {
		if isTooLarge(err) {
			h.RespondError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.respondServiceError(w, r, err, "failed to upload file")
		return
	}

	h.RespondJSON(w, http.StatusOK, models.UploadResponse{
		ID:      record.ID,
		Message: "file uploaded successfully",
	})
}

// uploadBody returns the uploaded content and its declared filename.
// Multipart requests are streamed part by part without buffering the file.
func uploadBody(r *http.Request) (io.Reader, string, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		if r.Body == nil || r.ContentLength == 0 {
			return nil, "", nil, errors.New("empty request body")
		}
		return r.Body, r.Header.Get("X-Filename"), func() {}, nil
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to read multipart body: %w", err)
	}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, "", nil, errors.New("file is required")
		}
		if err != nil {
			return nil, "", nil, fmt.Errorf("failed to read multipart body: %w", err)
		}
		if part.FormName() == "file" {
			return part, part.FileName(), func() { part.Close() }, nil
		}
		part.Close()
	}
}

// GetMetadata handles GET /media/{id}
// @Summary Get file metadata
// @Description Retrieve the stored record of an uploaded file
// @Tags media
// @Produce json
// @Param id path string true "File ID"
// @Success 200 {object} models.MediaRecord
// @Failure 404 {object} models.ErrorResponse "File not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /media/{id} [get]
func (h *MediaHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.mediaService.GetMetadata(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err, "failed to get metadata")
		return
	}

	h.RespondJSON(w, http.StatusOK, record)
}

// Download handles GET /download/{id}
// @Summary Download media file or preview
// @Description Returns the original file, or a JPEG preview of exactly width x height pixels when both are positive.
// @Description Originals support range requests.
// @Tags media
// @Produce application/octet-stream
// @Produce image/jpeg
// @Param id path string true "File ID"
// @Param width query int false "Preview width in pixels"
// @Param height query int false "Preview height in pixels"
// @Param Range header string false "Range"
// @Success 200 "File or preview content"
// @Success 206 "Partial file content (for range requests)"
// @Failure 400 {object} models.ErrorResponse "Invalid width or height"
// @Failure 404 {object} models.ErrorResponse "File not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /download/{id} [get]
func (h *MediaHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	width, err := h.parseDimension(r, "width")
	if err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	height, err := h.parseDimension(r, "height")
	if err != nil {
		h.RespondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	download, err := h.mediaService.Download(r.Context(), id, width, height)
	if err != nil {
		h.respondServiceError(w, r, err, "failed to download file")
		return
	}

	if download.File == nil {
		name := fmt.Sprintf("preview_%s_%d_%d.jpg", id, width, height)
		h.RespondInline(w, r, "image/jpeg", name, download.Preview)
		return
	}
	defer download.File.Close()

	modTime := download.Record.CreatedAt
	if info, err := download.File.Stat(); err == nil {
		modTime = info.ModTime()
	}
	if download.Record.ContentType != "" {
		w.Header().Set("Content-Type", download.Record.ContentType)
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": download.Name}))

	// Serve content with range support
	http.ServeContent(w, r, download.Name, modTime, download.File)
}

// parseDimension reads an optional non-negative size query parameter.
// A missing parameter is zero.
func (h *MediaHandler) parseDimension(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	if v > h.maxDimension {
		return 0, fmt.Errorf("%s must not exceed %d", name, h.maxDimension)
	}
	return v, nil
}

// respondServiceError maps service errors to a status code and a stable message
func (h *MediaHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	requestID := middleware.GetRequestID(r.Context())

	switch {
	case errors.Is(err, models.ErrRejectedContent):
		h.RespondError(w, r, http.StatusBadRequest, models.ErrRejectedContent.Error())
	case errors.Is(err, models.ErrNotFound):
		h.Logger.Info("file not found", zap.String("request_id", requestID), zap.String("path", r.URL.Path))
		h.RespondError(w, r, http.StatusNotFound, models.ErrNotFound.Error())
	case errors.Is(err, models.ErrDecode):
		h.Logger.Error("failed to generate preview", zap.String("request_id", requestID), zap.Error(err))
		h.RespondError(w, r, http.StatusInternalServerError, "failed to generate preview")
	case errors.Is(err, context.Canceled):
		h.Logger.Debug("request cancelled", zap.String("request_id", requestID), zap.Error(err))
		h.RespondError(w, r, http.StatusInternalServerError, fallback)
	default:
		h.Logger.Error(fallback, zap.String("request_id", requestID), zap.Error(err))
		h.RespondError(w, r, http.StatusInternalServerError, fallback)
	}
}

// isTooLarge reports whether err comes from a body cut off by http.MaxBytesReader
func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}

// HealthHandler reports service liveness
type HealthHandler struct {
	BaseHandler
	db      Pinger
	timeout time.Duration
}

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		BaseHandler: BaseHandler{Logger: logger},
		db:          db,
		timeout:     2 * time.Second,
	}
}

// Health handles GET /health
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string "Database unavailable"
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.Logger.Warn("health check failed", zap.Error(err))
			h.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	h.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
