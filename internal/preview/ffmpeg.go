package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strings"

	"github.com/imgvid/media-service/internal/models"
)

const defaultFFmpegPath = "ffmpeg"

// ffmpegExtractor extracts video frames by running the ffmpeg binary
type ffmpegExtractor struct {
	bin       string
	maxPixels int64
}

// NewFFmpegExtractor creates a frame extractor that runs the given ffmpeg binary.
// Frames larger than maxPixels are refused; non-positive means DefaultMaxSourcePixels.
func NewFFmpegExtractor(bin string, maxPixels int64) *ffmpegExtractor {
	if bin == "" {
		bin = defaultFFmpegPath
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxSourcePixels
	}
	return &ffmpegExtractor{bin: bin, maxPixels: maxPixels}
}

// FirstFrame decodes only the first video frame and returns it as an image
func (e *ffmpegExtractor) FirstFrame(ctx context.Context, path string) (image.Image, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, e.bin,
		"-nostdin", "-v", "error",
		"-i", path,
		"-an", "-frames:v", "1",
		"-f", "image2pipe", "-vcodec", "png",
		"-",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg failed: %v: %s", models.ErrDecode, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: video has no readable frames", models.ErrDecode)
	}

	data := stdout.Bytes()
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode video frame: %v", models.ErrDecode, err)
	}
	if err := checkPixels(cfg, e.maxPixels); err != nil {
		return nil, err
	}

	frame, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode video frame: %v", models.ErrDecode, err)
	}
	return frame, nil
}
