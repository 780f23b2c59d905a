package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/imgvid/media-service/internal/classifier"
	"github.com/imgvid/media-service/internal/metrics"
	"github.com/imgvid/media-service/internal/models"
	"github.com/imgvid/media-service/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// BlobStore defines the interface for file storage operations
type BlobStore interface {
	// Put writes content under a fresh identifier and returns the identifier,
	// the stored path and the number of bytes written
	Put(ctx context.Context, r io.Reader, extension string) (string, string, int64, error)

	// Open opens a stored file for use with http.ServeContent
	Open(path string) (*os.File, error)

	// Delete removes a stored file
	Delete(path string) error
}

// MediaRepository defines the interface for media record data access
type MediaRepository interface {
	Create(ctx context.Context, record *models.MediaRecord) error
	GetByID(ctx context.Context, id string) (*models.MediaRecord, error)
}

// PreviewGenerator renders a resized JPEG of a stored file
type PreviewGenerator interface {
	Generate(ctx context.Context, path string, kind models.MediaKind, width, height int) ([]byte, error)
}

// PreviewCache stores generated previews keyed by identifier and size
type PreviewCache interface {
	Lookup(id string, width, height int) ([]byte, bool, error)
	Store(ctx context.Context, id string, width, height int, data []byte) error
}

// Download is the result of a download request.
// Exactly one of File and Preview is set; the caller must close File.
type Download struct {
	Record  *models.MediaRecord
	File    *os.File
	Name    string
	Preview []byte
}

// MediaService handles business logic for media operations
type MediaService struct {
	repo      MediaRepository
	blobs     BlobStore
	generator PreviewGenerator
	cache     PreviewCache
	logger    *zap.Logger
	inflight  singleflight.Group
	now       func() time.Time
}

// NewMediaService creates a new media service
func NewMediaService(repo MediaRepository, blobs BlobStore, generator PreviewGenerator, cache PreviewCache, logger *zap.Logger) *MediaService {
	return &MediaService{
		repo:      repo,
		blobs:     blobs,
		generator: generator,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
	}
}

// Upload classifies the content, stores it and persists its metadata.
// Content that is neither an image nor a video is rejected before anything is written.
// If the metadata cannot be persisted the stored file is removed again.
func (s *MediaService) Upload(ctx context.Context, r io.Reader, filename string) (*models.MediaRecord, error) {
	result, content, err := classifier.Classify(r)
	if err != nil {
		metrics.RecordUpload("unknown", "error", 0)
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if result.Rejected() {
		metrics.RecordUpload("rejected", "rejected", 0)
		s.logger.Info("upload rejected",
			zap.String("filename", filename),
			zap.String("contentType", result.ContentType),
		)
		return nil, models.ErrRejectedContent
	}
	kind := result.Kind.MediaKind()

	id, path, size, err := s.blobs.Put(ctx, content, storage.SanitizeExtension(filename))
	if err != nil {
		metrics.RecordUpload(string(kind), "error", 0)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	record := &models.MediaRecord{
		ID:          id,
		Path:        path,
		Kind:        kind,
		ContentType: result.ContentType,
		Size:        size,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.repo.Create(ctx, record); err != nil {
		metrics.RecordUpload(string(kind), "error", 0)
		if delErr := s.blobs.Delete(path); delErr != nil {
			s.logger.Error("failed to remove file after metadata failure",
				zap.String("id", id),
				zap.String("path", path),
				zap.NamedError("metadataError", err),
				zap.NamedError("cleanupError", delErr),
			)
			err = errors.Join(err, fmt.Errorf("failed to remove stored file: %w", delErr))
		}
		return nil, fmt.Errorf("failed to create metadata: %w", err)
	}

	metrics.RecordUpload(string(kind), "success", size)
	s.logger.Info("file uploaded",
		zap.String("id", id),
		zap.String("type", string(kind)),
		zap.String("contentType", result.ContentType),
		zap.Int64("size", size),
	)

	return record, nil
}

// GetMetadata retrieves the media record of an identifier
func (s *MediaService) GetMetadata(ctx context.Context, id string) (*models.MediaRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// Download resolves an identifier to its original file, or to a preview
// when both width and height are positive.
func (s *MediaService) Download(ctx context.Context, id string, width, height int) (*Download, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if width <= 0 || height <= 0 {
		return s.original(record)
	}

	data, err := s.preview(ctx, record, width, height)
	if err != nil {
		return nil, err
	}
	return &Download{Record: record, Preview: data}, nil
}

// original opens the stored file of a record
func (s *MediaService) original(record *models.MediaRecord) (*Download, error) {
	file, err := s.blobs.Open(record.Path)
	if errors.Is(err, models.ErrNotFound) {
		// a record without its file breaks the upload invariant
		s.logger.Error("stored file missing for media record", zap.String("id", record.ID), zap.String("path", record.Path))
		return nil, fmt.Errorf("%w: stored file missing for %s", models.ErrStorage, record.ID)
	}
	if err != nil {
		return nil, err
	}

	return &Download{
		Record: record,
		File:   file,
		Name:   filepath.Base(record.Path),
	}, nil
}

// preview returns a cached preview or generates and caches a new one.
// Concurrent misses for the same key share one generation.
func (s *MediaService) preview(ctx context.Context, record *models.MediaRecord, width, height int) ([]byte, error) {
	data, hit, err := s.cache.Lookup(record.ID, width, height)
	if err != nil {
		s.logger.Warn("preview cache lookup failed", zap.String("id", record.ID), zap.Error(err))
	}
	metrics.RecordCacheLookup(hit)
	if hit {
		return data, nil
	}

	key := fmt.Sprintf("%s/%d/%d", record.ID, width, height)
	v, err, _ := s.inflight.Do(key, func() (any, error) {
		// the generation outlives a single caller when others are waiting on it
		genCtx := context.WithoutCancel(ctx)

		start := time.Now()
		data, err := s.generator.Generate(genCtx, record.Path, record.Kind, width, height)
		if err != nil {
			metrics.RecordPreview(string(record.Kind), "error", time.Since(start).Seconds())
			return nil, err
		}
		metrics.RecordPreview(string(record.Kind), "success", time.Since(start).Seconds())

		if err := s.cache.Store(genCtx, record.ID, width, height, data); err != nil {
			s.logger.Warn("failed to cache preview", zap.String("id", record.ID), zap.Error(err))
		}
		return data, nil
	})
	if err != nil {
		s.logger.Error("failed to generate preview",
			zap.String("id", record.ID),
			zap.Int("width", width),
			zap.Int("height", height),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to generate preview: %w", err)
	}

	return v.([]byte), nil
}
