// Package classifier decides whether content is an image, a video or neither
// by sniffing its leading bytes. File names are never consulted.
package classifier

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/imgvid/media-service/internal/models"
)

// SniffLen is the number of leading bytes inspected, matching mimetype's default read limit
const SniffLen = 3072

// Kind is the classification outcome
type Kind int

const (
	KindRejected Kind = iota
	KindImage
	KindVideo
)

// String returns a human readable name of the kind
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "rejected"
	}
}

// MediaKind converts the classification into the stored media kind.
// It returns an empty kind for rejected content.
func (k Kind) MediaKind() models.MediaKind {
	switch k {
	case KindImage:
		return models.MediaKindImage
	case KindVideo:
		return models.MediaKindVideo
	default:
		return ""
	}
}

// Result holds the classification and the detected MIME type
type Result struct {
	Kind        Kind
	ContentType string
}

// Rejected reports whether the content is neither an image nor a video
func (r Result) Rejected() bool {
	return r.Kind == KindRejected
}

// rasterFormats lists the image types the preview generator can decode.
// Other image/ types such as SVG, HEIC, AVIF, PSD or ICO are rejected.
var rasterFormats = map[string]bool{
	"image/jpeg":             true,
	"image/png":              true,
	"image/vnd.mozilla.apng": true,
	"image/gif":              true,
	"image/bmp":              true,
	"image/tiff":             true,
	"image/webp":             true,
}

// ClassifyBytes classifies content from its leading bytes
func ClassifyBytes(header []byte) Result {
	mime := mimetype.Detect(header)
	contentType := mime.String()
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))

	switch {
	case rasterFormats[base]:
		return Result{Kind: KindImage, ContentType: base}
	case strings.HasPrefix(base, "video/"):
		return Result{Kind: KindVideo, ContentType: base}
	default:
		return Result{Kind: KindRejected, ContentType: base}
	}
}

// Classify sniffs the first SniffLen bytes of r.
// The returned reader replays those bytes followed by the rest of r,
// so the caller can still read the full content.
func Classify(r io.Reader) (Result, io.Reader, error) {
	header := make([]byte, SniffLen)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return Result{}, nil, fmt.Errorf("failed to read content header: %w", err)
	}
	header = header[:n]

	return ClassifyBytes(header), io.MultiReader(bytes.NewReader(header), r), nil
}
