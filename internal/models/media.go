package models

import "time"

// MediaKind represents the kind of stored media
type MediaKind string

const (
	MediaKindImage MediaKind = "IMG"
	MediaKindVideo MediaKind = "VID"
)

// IsValid reports whether the kind is one the service stores
func (k MediaKind) IsValid() bool {
	return k == MediaKindImage || k == MediaKindVideo
}

// MediaRecord represents an uploaded file in the database
type MediaRecord struct {
	ID          string    `json:"id" db:"file_id"`
	Path        string    `json:"-" db:"path"`
	Kind        MediaKind `json:"type" db:"type"`
	ContentType string    `json:"contentType" db:"content_type"`
	Size        int64     `json:"size" db:"size"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// ErrorResponse is the body of every failed request.
// RequestID echoes the X-Request-ID of the request so clients can report it.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// UploadResponse is returned after a successful upload
type UploadResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}
