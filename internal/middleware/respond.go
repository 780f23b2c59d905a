package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/imgvid/media-service/internal/models"
)

// WriteError writes a JSON error body tagged with the request ID of r
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:     message,
		RequestID: GetRequestID(r.Context()),
	})
}
