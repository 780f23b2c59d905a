package handlers

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/imgvid/media-service/internal/middleware"
	"go.uber.org/zap"
)

// BaseHandler holds the response helpers shared by the media and health handlers
type BaseHandler struct {
	Logger *zap.Logger
}

// RespondJSON encodes data as the JSON body of a response with the given status
func (h *BaseHandler) RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// RespondError sends a models.ErrorResponse carrying the request ID of r
func (h *BaseHandler) RespondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if err := middleware.WriteError(w, r, status, message); err != nil {
		h.Logger.Debug("failed to write error response",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
}

// RespondInline sends an in-memory body shown inline under filename
func (h *BaseHandler) RespondInline(w http.ResponseWriter, r *http.Request, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(data); err != nil {
		h.Logger.Debug("failed to write response body",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("filename", filename),
			zap.Error(err),
		)
	}
}
