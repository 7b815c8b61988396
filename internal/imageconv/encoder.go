package imageconv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/maauso/mediaconv/internal/dimension"
)

var (
	// ErrDecodeFailed is returned when the source bytes are not a readable image.
	ErrDecodeFailed = errors.New("image decode failed")
	// ErrUnsupportedFormat is returned when an encoder cannot produce a format.
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// Encoder rasterizes a source image at the target size and re-encodes it.
type Encoder interface {
	Encode(ctx context.Context, src []byte, target dimension.Size, format Format, quality int) (Artifact, error)
}

// Compile-time check that NativeEncoder implements Encoder.
var _ Encoder = (*NativeEncoder)(nil)

// NativeEncoder encodes with the Go image codecs. It writes JPEG and PNG.
type NativeEncoder struct {
	scaler draw.Scaler
}

// NewNativeEncoder returns a NativeEncoder using Catmull-Rom resampling.
func NewNativeEncoder() *NativeEncoder {
	return &NativeEncoder{scaler: draw.CatmullRom}
}

// Encode implements Encoder.
func (e *NativeEncoder) Encode(ctx context.Context, src []byte, target dimension.Size, format Format, quality int) (Artifact, error) {
	if format == FormatWebP {
		return Artifact{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if !target.Valid() {
		return Artifact{}, fmt.Errorf("invalid target size %s", target)
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, target.Width, target.Height))
	if format.Lossy() {
		// JPEG has no alpha channel; composite onto white.
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	}
	e.scaler.Scale(canvas, canvas.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		err = png.Encode(&buf, canvas)
	default:
		err = jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("encode %s: %w", format, err)
	}

	return Artifact{Data: buf.Bytes()}, nil
}
