package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imgvid/media-service/internal/models"
)

const tempPrefix = ".tmp-"

// staleTempAge is how long a temp file may go unmodified before it is
// considered abandoned by a writer that crashed before renaming it
const staleTempAge = 10 * time.Minute

// localStorage implements the blob store using the local filesystem
type localStorage struct {
	basePath string
}

// NewLocalStorage creates a new localStorage instance and ensures its directory exists
func NewLocalStorage(basePath string) (*localStorage, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	s := &localStorage{
		basePath: absPath,
	}
	if _, err := s.sweepTemp(time.Now()); err != nil {
		return nil, fmt.Errorf("failed to remove abandoned uploads: %w", err)
	}
	return s, nil
}

// sweepTemp removes temp files left behind by interrupted writes.
// Files modified within staleTempAge of now may still belong to a live writer and are kept.
func (s *localStorage) sweepTemp(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if now.Sub(info.ModTime()) < staleTempAge {
			continue
		}
		if err := os.Remove(filepath.Join(s.basePath, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Put writes the content under a freshly generated identifier.
// The file only becomes visible once it has been fully written.
// Returns the identifier, the stored path and the number of bytes written.
func (s *localStorage) Put(ctx context.Context, r io.Reader, extension string) (string, string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", "", 0, err
	}

	id := GenerateID()
	path := filepath.Join(s.basePath, id+extension)

	size, err := writeFileAtomic(ctx, path, r)
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: failed to write file: %w", models.ErrStorage, err)
	}

	return id, path, size, nil
}

// Open opens a stored file for reading
func (s *localStorage) Open(path string) (*os.File, error) {
	if !s.contains(path) {
		return nil, fmt.Errorf("%w: path outside of storage", models.ErrNotFound)
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open file: %v", models.ErrStorage, err)
	}
	return file, nil
}

// Delete removes a stored file. Deleting a missing file is not an error.
func (s *localStorage) Delete(path string) error {
	if !s.contains(path) {
		return fmt.Errorf("%w: path outside of storage", models.ErrNotFound)
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: failed to delete file: %v", models.ErrStorage, err)
	}
	return nil
}

// contains reports whether path points inside the storage directory
func (s *localStorage) contains(path string) bool {
	rel, err := filepath.Rel(s.basePath, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

// writeFileAtomic copies r into a temporary file next to path and renames it into place.
// On any failure the temporary file is removed.
func writeFileAtomic(ctx context.Context, path string, r io.Reader) (size int64, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix+"*")
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	sw := NewSizeWriter()
	if _, err = io.Copy(tmp, io.TeeReader(r, sw)); err != nil {
		return 0, err
	}
	if err = ctx.Err(); err != nil {
		return 0, err
	}
	if err = tmp.Sync(); err != nil {
		return 0, err
	}
	if err = tmp.Close(); err != nil {
		return 0, err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}

	return sw.Size(), nil
}
