package models

import "errors"

var (
	// ErrRejectedContent is returned when uploaded content is neither an image nor a video
	ErrRejectedContent = errors.New("file must be an image or a video")
	// ErrNotFound is returned when no media exists for an identifier
	ErrNotFound = errors.New("file not found")
	// ErrDecode is returned when stored media cannot be decoded into a preview
	ErrDecode = errors.New("failed to decode media")
	// ErrStorage is returned when blob or metadata I/O fails
	ErrStorage = errors.New("storage failure")
	// ErrConflict is returned when a record with the same identifier already exists
	ErrConflict = errors.New("media record already exists")
	// ErrInvalidSize is returned when a preview is requested with non-positive dimensions
	ErrInvalidSize = errors.New("invalid preview size")
)
