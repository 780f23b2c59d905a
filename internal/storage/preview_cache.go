package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/imgvid/media-service/internal/models"
)

const previewPrefix = "preview_"

// memoryEntry holds preview bytes together with the time they were written
type memoryEntry struct {
	data     []byte
	storedAt time.Time
}

// previewCache stores generated previews on disk, keyed by identifier and size.
// The file modification time is the last-write clock used for expiry.
// An optional in-memory LRU keeps the hottest previews off the disk.
type previewCache struct {
	dir    string
	ttl    time.Duration
	memory *lru.Cache[string, memoryEntry]
	now    func() time.Time
}

// NewPreviewCache creates a preview cache rooted at dir.
// memoryEntries sets the size of the in-memory tier; 0 disables it.
func NewPreviewCache(dir string, ttl time.Duration, memoryEntries int) (*previewCache, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("preview ttl must be positive, got %s", ttl)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create preview directory: %w", err)
	}

	cache := &previewCache{
		dir: dir,
		ttl: ttl,
		now: time.Now,
	}

	if memoryEntries > 0 {
		memory, err := lru.New[string, memoryEntry](memoryEntries)
		if err != nil {
			return nil, fmt.Errorf("failed to create preview memory cache: %w", err)
		}
		cache.memory = memory
	}

	return cache, nil
}

// previewName returns the file name of a preview
func previewName(id string, width, height int) string {
	return fmt.Sprintf("%s%s_%d_%d.jpg", previewPrefix, id, width, height)
}

// validID rejects identifiers that could escape the preview directory
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

// Lookup returns the cached preview for the exact (id, width, height) key.
// The boolean is false on a miss. Entries older than the TTL are misses even
// if the reaper has not removed them yet.
func (c *previewCache) Lookup(id string, width, height int) ([]byte, bool, error) {
	if !validID(id) {
		return nil, false, nil
	}
	name := previewName(id, width, height)
	now := c.now()

	if c.memory != nil {
		if entry, ok := c.memory.Get(name); ok {
			if now.Sub(entry.storedAt) <= c.ttl {
				return entry.data, true, nil
			}
			c.memory.Remove(name)
		}
	}

	path := filepath.Join(c.dir, name)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to stat preview: %v", models.ErrStorage, err)
	}
	if now.Sub(info.ModTime()) > c.ttl {
		return nil, false, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		// reaped between stat and read
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to read preview: %v", models.ErrStorage, err)
	}

	if c.memory != nil {
		c.memory.Add(name, memoryEntry{data: data, storedAt: info.ModTime()})
	}
	return data, true, nil
}

// Store writes a preview, replacing any previous one for the same key
func (c *previewCache) Store(ctx context.Context, id string, width, height int, data []byte) error {
	if !validID(id) {
		return fmt.Errorf("%w: invalid preview id %q", models.ErrStorage, id)
	}
	name := previewName(id, width, height)

	if _, err := writeFileAtomic(ctx, filepath.Join(c.dir, name), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: failed to write preview: %v", models.ErrStorage, err)
	}

	if c.memory != nil {
		c.memory.Add(name, memoryEntry{data: data, storedAt: c.now()})
	}
	return nil
}

// Reap removes previews whose last write is older than the TTL relative to now.
// It stops early when ctx is cancelled; whatever is left is picked up by the next run.
func (c *previewCache) Reap(ctx context.Context, now time.Time) (int, error) {
	c.reapMemory(now)

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list preview directory: %w", err)
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, previewPrefix) && !strings.HasPrefix(name, tempPrefix) {
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
		if now.Sub(info.ModTime()) <= c.ttl {
			continue
		}

		if err := os.Remove(filepath.Join(c.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

// reapMemory drops expired entries from the in-memory tier
func (c *previewCache) reapMemory(now time.Time) {
	if c.memory == nil {
		return
	}
	for _, key := range c.memory.Keys() {
		if entry, ok := c.memory.Peek(key); ok && now.Sub(entry.storedAt) > c.ttl {
			c.memory.Remove(key)
		}
	}
}
