// Package preview renders resized JPEG previews of stored images and videos.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/imgvid/media-service/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	// register webp on top of the formats imaging decodes by default
	_ "golang.org/x/image/webp"
)

const (
	DefaultJPEGQuality = 90

	// DefaultMaxSourcePixels bounds the declared area of a source before decoding
	DefaultMaxSourcePixels int64 = 100_000_000
)

// FrameExtractor extracts the first decodable frame of a video file
type FrameExtractor interface {
	FirstFrame(ctx context.Context, path string) (image.Image, error)
}

// Generator produces previews with exact target dimensions.
// At most workers decodes run at the same time, and sources declaring
// more than maxPixels pixels are refused before any pixel buffer is allocated.
type Generator struct {
	frames    FrameExtractor
	quality   int
	maxPixels int64
	workers   *semaphore.Weighted
	logger    *zap.Logger
}

// NewGenerator creates a new preview generator.
// A non-positive maxPixels falls back to DefaultMaxSourcePixels.
func NewGenerator(frames FrameExtractor, quality, workers int, maxPixels int64, logger *zap.Logger) *Generator {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if workers < 1 {
		workers = 1
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxSourcePixels
	}
	return &Generator{
		frames:    frames,
		quality:   quality,
		maxPixels: maxPixels,
		workers:   semaphore.NewWeighted(int64(workers)),
		logger:    logger,
	}
}

// Generate decodes the source at path, resizes it to exactly width x height
// and encodes the result as JPEG. Videos are reduced to their first frame.
func (g *Generator) Generate(ctx context.Context, path string, kind models.MediaKind, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", models.ErrInvalidSize, width, height)
	}

	if err := g.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.workers.Release(1)

	var (
		src image.Image
		err error
	)
	switch kind {
	case models.MediaKindImage:
		src, err = g.decodeImage(path)
	case models.MediaKindVideo:
		src, err = g.frames.FirstFrame(ctx, path)
	default:
		return nil, fmt.Errorf("%w: unsupported media kind %q", models.ErrDecode, kind)
	}
	if err != nil {
		return nil, err
	}

	resized := imaging.Resize(src, width, height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(g.quality)); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	g.logger.Debug("preview generated",
		zap.String("path", path),
		zap.String("kind", string(kind)),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Int("bytes", buf.Len()),
	)

	return buf.Bytes(), nil
}

// decodeImage decodes a stored image, applying its EXIF orientation.
// The header is read first so oversized sources fail without decoding.
func (g *Generator) decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open image: %v", models.ErrStorage, err)
	}
	defer file.Close()

	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	if err := checkPixels(cfg, g.maxPixels); err != nil {
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: failed to rewind image: %v", models.ErrStorage, err)
	}

	img, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}
	return img, nil
}

// checkPixels rejects a decoded header whose area exceeds maxPixels
func checkPixels(cfg image.Config, maxPixels int64) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", models.ErrDecode, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return fmt.Errorf("%w: source of %dx%d exceeds %d pixels", models.ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}
	return nil
}
