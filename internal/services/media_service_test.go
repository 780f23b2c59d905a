package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/imgvid/media-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockMediaRepository is a mock implementation of MediaRepository
type mockMediaRepository struct {
	record    *models.MediaRecord
	created   *models.MediaRecord
	createErr error
	getErr    error
}

func (m *mockMediaRepository) Create(ctx context.Context, record *models.MediaRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = record
	return nil
}

func (m *mockMediaRepository) GetByID(ctx context.Context, id string) (*models.MediaRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.record == nil {
		return nil, models.ErrNotFound
	}
	return m.record, nil
}

// mockBlobStore is a mock implementation of BlobStore
type mockBlobStore struct {
	dir          string
	putErr       error
	openErr      error
	deleteErr    error
	putCalled    bool
	written      []byte
	deleteCalled bool
	deletePath   string
}

func (m *mockBlobStore) Put(ctx context.Context, r io.Reader, extension string) (string, string, int64, error) {
	m.putCalled = true
	if m.putErr != nil {
		return "", "", 0, m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", "", 0, err
	}
	m.written = data
	return "test-id-123", filepath.Join(m.dir, "test-id-123"+extension), int64(len(data)), nil
}

func (m *mockBlobStore) Open(path string) (*os.File, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	return os.Open(path)
}

func (m *mockBlobStore) Delete(path string) error {
	m.deleteCalled = true
	m.deletePath = path
	return m.deleteErr
}

// mockGenerator is a mock implementation of PreviewGenerator
type mockGenerator struct {
	data  []byte
	err   error
	calls int
}

func (m *mockGenerator) Generate(ctx context.Context, path string, kind models.MediaKind, width, height int) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.data, nil
}

// mockPreviewCache is a mock implementation of PreviewCache
type mockPreviewCache struct {
	entries   map[string][]byte
	lookupErr error
	storeErr  error
	stores    int
}

func cacheKey(id string, width, height int) string {
	return fmt.Sprintf("%s/%d/%d", id, width, height)
}

func (m *mockPreviewCache) Lookup(id string, width, height int) ([]byte, bool, error) {
	if m.lookupErr != nil {
		return nil, false, m.lookupErr
	}
	data, ok := m.entries[cacheKey(id, width, height)]
	return data, ok, nil
}

func (m *mockPreviewCache) Store(ctx context.Context, id string, width, height int, data []byte) error {
	m.stores++
	if m.storeErr != nil {
		return m.storeErr
	}
	if m.entries == nil {
		m.entries = map[string][]byte{}
	}
	m.entries[cacheKey(id, width, height)] = data
	return nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestService(repo *mockMediaRepository, blobs *mockBlobStore, gen *mockGenerator, cache *mockPreviewCache) *MediaService {
	svc := NewMediaService(repo, blobs, gen, cache, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	return svc
}

func TestNewMediaService(t *testing.T) {
	repo := &mockMediaRepository{}
	blobs := &mockBlobStore{}
	gen := &mockGenerator{}
	cache := &mockPreviewCache{}

	svc := NewMediaService(repo, blobs, gen, cache, zap.NewNop())

	assert.NotNil(t, svc)
	assert.Equal(t, repo, svc.repo)
	assert.Equal(t, blobs, svc.blobs)
	assert.Equal(t, gen, svc.generator)
	assert.Equal(t, cache, svc.cache)
}

func TestMediaService_Upload(t *testing.T) {
	content := pngBytes(t)

	tests := []struct {
		name           string
		content        []byte
		filename       string
		repo           *mockMediaRepository
		blobs          *mockBlobStore
		expectedErrors []error
		errorContains  string
		expectPut      bool
		expectDelete   bool
	}{
		{
			name:      "success",
			content:   content,
			filename:  "red.PNG",
			repo:      &mockMediaRepository{},
			blobs:     &mockBlobStore{dir: "/data/files"},
			expectPut: true,
		},
		{
			name:           "rejected content is never stored",
			content:        []byte("plain text notes, not media"),
			filename:       "notes.png",
			repo:           &mockMediaRepository{},
			blobs:          &mockBlobStore{},
			expectedErrors: []error{models.ErrRejectedContent},
		},
		{
			name:     "blob store error",
			content:  content,
			filename: "red.png",
			repo:     &mockMediaRepository{},
			blobs: &mockBlobStore{
				putErr: models.ErrStorage,
			},
			expectedErrors: []error{models.ErrStorage},
			errorContains:  "failed to store file",
			expectPut:      true,
		},
		{
			name:     "metadata error removes stored file",
			content:  content,
			filename: "red.png",
			repo: &mockMediaRepository{
				createErr: models.ErrStorage,
			},
			blobs:          &mockBlobStore{dir: "/data/files"},
			expectedErrors: []error{models.ErrStorage},
			errorContains:  "failed to create metadata",
			expectPut:      true,
			expectDelete:   true,
		},
		{
			name:     "metadata conflict removes stored file",
			content:  content,
			filename: "red.png",
			repo: &mockMediaRepository{
				createErr: models.ErrConflict,
			},
			blobs:          &mockBlobStore{dir: "/data/files"},
			expectedErrors: []error{models.ErrConflict},
			expectPut:      true,
			expectDelete:   true,
		},
		{
			name:     "cleanup failure is reported with metadata failure",
			content:  content,
			filename: "red.png",
			repo: &mockMediaRepository{
				createErr: models.ErrStorage,
			},
			blobs: &mockBlobStore{
				dir:       "/data/files",
				deleteErr: errors.New("permission denied"),
			},
			expectedErrors: []error{models.ErrStorage},
			errorContains:  "permission denied",
			expectPut:      true,
			expectDelete:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.repo, tt.blobs, &mockGenerator{}, &mockPreviewCache{})

			record, err := svc.Upload(context.Background(), bytes.NewReader(tt.content), tt.filename)

			assert.Equal(t, tt.expectPut, tt.blobs.putCalled)
			assert.Equal(t, tt.expectDelete, tt.blobs.deleteCalled)

			if len(tt.expectedErrors) > 0 {
				assert.Nil(t, record)
				for _, expected := range tt.expectedErrors {
					assert.ErrorIs(t, err, expected)
				}
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
				if tt.expectDelete {
					assert.Equal(t, filepath.Join("/data/files", "test-id-123.png"), tt.blobs.deletePath)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "test-id-123", record.ID)
			assert.Equal(t, models.MediaKindImage, record.Kind)
			assert.Equal(t, "image/png", record.ContentType)
			assert.Equal(t, int64(len(tt.content)), record.Size)
			assert.Equal(t, filepath.Join("/data/files", "test-id-123.png"), record.Path)
			assert.Equal(t, time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC), record.CreatedAt)
			assert.Equal(t, record, tt.repo.created)
			// the classifier must not swallow the sniffed header
			assert.Equal(t, tt.content, tt.blobs.written)
		})
	}
}

func TestMediaService_GetMetadata(t *testing.T) {
	record := &models.MediaRecord{ID: "test-id-123", Kind: models.MediaKindVideo}
	svc := newTestService(&mockMediaRepository{record: record}, &mockBlobStore{}, &mockGenerator{}, &mockPreviewCache{})

	got, err := svc.GetMetadata(context.Background(), "test-id-123")
	require.NoError(t, err)
	assert.Equal(t, record, got)

	svc = newTestService(&mockMediaRepository{}, &mockBlobStore{}, &mockGenerator{}, &mockPreviewCache{})
	_, err = svc.GetMetadata(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMediaService_Download_Original(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test-id-123.png")
	content := pngBytes(t)
	require.NoError(t, os.WriteFile(path, content, 0644))
	record := &models.MediaRecord{ID: "test-id-123", Path: path, Kind: models.MediaKindImage}

	tests := []struct {
		name          string
		width, height int
	}{
		{name: "no dimensions"},
		{name: "width only", width: 5},
		{name: "height only", height: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{}
			svc := newTestService(&mockMediaRepository{record: record}, &mockBlobStore{}, gen, &mockPreviewCache{})

			download, err := svc.Download(context.Background(), "test-id-123", tt.width, tt.height)
			require.NoError(t, err)
			require.NotNil(t, download.File)
			defer download.File.Close()

			data, err := io.ReadAll(download.File)
			require.NoError(t, err)
			assert.Equal(t, content, data)
			assert.Equal(t, "test-id-123.png", download.Name)
			assert.Nil(t, download.Preview)
			assert.Equal(t, 0, gen.calls)
		})
	}
}

func TestMediaService_Download_Errors(t *testing.T) {
	record := &models.MediaRecord{ID: "test-id-123", Path: "/data/files/test-id-123.png", Kind: models.MediaKindImage}

	tests := []struct {
		name          string
		repo          *mockMediaRepository
		blobs         *mockBlobStore
		gen           *mockGenerator
		width, height int
		expectedError error
	}{
		{
			name:          "unknown id",
			repo:          &mockMediaRepository{},
			blobs:         &mockBlobStore{},
			gen:           &mockGenerator{},
			expectedError: models.ErrNotFound,
		},
		{
			name:          "metadata store failure",
			repo:          &mockMediaRepository{getErr: models.ErrStorage},
			blobs:         &mockBlobStore{},
			gen:           &mockGenerator{},
			expectedError: models.ErrStorage,
		},
		{
			name:          "stored file missing",
			repo:          &mockMediaRepository{record: record},
			blobs:         &mockBlobStore{openErr: models.ErrNotFound},
			gen:           &mockGenerator{},
			expectedError: models.ErrStorage,
		},
		{
			name:          "preview decode failure",
			repo:          &mockMediaRepository{record: record},
			blobs:         &mockBlobStore{},
			gen:           &mockGenerator{err: models.ErrDecode},
			width:         5,
			height:        5,
			expectedError: models.ErrDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(tt.repo, tt.blobs, tt.gen, &mockPreviewCache{})

			download, err := svc.Download(context.Background(), "test-id-123", tt.width, tt.height)

			assert.Nil(t, download)
			assert.ErrorIs(t, err, tt.expectedError)
		})
	}

	t.Run("missing file is not reported as unknown id", func(t *testing.T) {
		svc := newTestService(&mockMediaRepository{record: record}, &mockBlobStore{openErr: models.ErrNotFound}, &mockGenerator{}, &mockPreviewCache{})
		_, err := svc.Download(context.Background(), "test-id-123", 0, 0)
		assert.False(t, errors.Is(err, models.ErrNotFound))
	})
}

func TestMediaService_Download_Preview(t *testing.T) {
	record := &models.MediaRecord{ID: "test-id-123", Path: "/data/files/test-id-123.mp4", Kind: models.MediaKindVideo}

	t.Run("cache miss generates and stores", func(t *testing.T) {
		gen := &mockGenerator{data: []byte("jpeg")}
		cache := &mockPreviewCache{}
		svc := newTestService(&mockMediaRepository{record: record}, &mockBlobStore{}, gen, cache)

		download, err := svc.Download(context.Background(), "test-id-123", 5, 5)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg"), download.Preview)
		assert.Nil(t, download.File)
		assert.Equal(t, 1, gen.calls)
		assert.Equal(t, 1, cache.stores)

		// second request is served from the cache
		download, err = svc.Download(context.Background(), "test-id-123", 5, 5)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg"), download.Preview)
		assert.Equal(t, 1, gen.calls)
	})

	t.Run("cache hit skips generation", func(t *testing.T) {
		gen := &mockGenerator{data: []byte("fresh")}
		cache := &mockPreviewCache{entries: map[string][]byte{cacheKey("test-id-123", 5, 5): []byte("cached")}}
		svc := newTestService(&mockMediaRepository{record: record}, &mockBlobStore{}, gen, cache)

		download, err := svc.Download(context.Background(), "test-id-123", 5, 5)
		require.NoError(t, err)
		assert.Equal(t, []byte("cached"), download.Preview)
		assert.Equal(t, 0, gen.calls)
	})

	t.Run("cache lookup failure falls back to generation", func(t *testing.T) {
		gen := &mockGenerator{data: []byte("jpeg")}
		cache := &mockPreviewCache{lookupErr: errors.New("disk error")}
		svc := newTestService(&mockMediaRepository{record: record}, &mockBlobStore{}, gen, cache)

		download, err := svc.Download(context.Background(), "test-id-123", 5, 5)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg"), download.Preview)
		assert.Equal(t, 1, gen.calls)
	})

	t.Run("cache store failure still serves preview", func(t *testing.T) {
		gen := &mockGenerator{data: []byte("jpeg")}
		cache := &mockPreviewCache{storeErr: errors.New("disk full")}
		svc := newTestService(&mockMediaRepository{record: record}, &mockBlobStore{}, gen, cache)

		download, err := svc.Download(context.Background(), "test-id-123", 5, 5)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg"), download.Preview)
		assert.Equal(t, 1, cache.stores)
	})
}
