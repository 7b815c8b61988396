package media

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/maauso/mediaconv/internal/dimension"
	"github.com/maauso/mediaconv/internal/imageconv"
)

// Compile-time check that ImageEncoder implements imageconv.Encoder.
var _ imageconv.Encoder = (*ImageEncoder)(nil)

// ImageEncoder re-encodes images through ffmpeg. Unlike the native Go codecs
// it can write WebP.
type ImageEncoder struct {
	processor Processor
}

// NewImageEncoder creates an ImageEncoder backed by processor.
func NewImageEncoder(processor Processor) *ImageEncoder {
	return &ImageEncoder{processor: processor}
}

// Encode implements imageconv.Encoder.
func (e *ImageEncoder) Encode(ctx context.Context, src []byte, target dimension.Size, format imageconv.Format, quality int) (imageconv.Artifact, error) {
	if !target.Valid() {
		return imageconv.Artifact{}, fmt.Errorf("%w: %s", dimension.ErrInvalidSourceDimensions, target)
	}

	out, err := e.processor.Transcode(ctx, src, encodeArgs(target, format, quality))
	if err != nil {
		return imageconv.Artifact{}, fmt.Errorf("encode %s: %w", format, err)
	}
	return imageconv.Artifact{Data: out}, nil
}

// encodeArgs builds the ffmpeg output arguments for one still image.
func encodeArgs(target dimension.Size, format imageconv.Format, quality int) []string {
	args := []string{
		"-vf", fmt.Sprintf("scale=%d:%d", target.Width, target.Height),
		"-frames:v", "1",
	}

	switch format {
	case imageconv.FormatPNG:
		args = append(args, "-c:v", "png", "-f", "image2pipe")
	case imageconv.FormatWebP:
		args = append(args, "-c:v", "libwebp", "-quality", strconv.Itoa(quality), "-f", "webp")
	default:
		args = append(args, "-c:v", "mjpeg", "-q:v", strconv.Itoa(jpegQScale(quality)), "-f", "image2pipe")
	}
	return args
}

// jpegQScale maps a 1..100 quality (higher is better) onto mjpeg's 2..31
// qscale (lower is better).
func jpegQScale(quality int) int {
	quality = max(1, min(quality, 100))
	return 2 + int(math.Round(float64(100-quality)*29/99))
}
