// Package gifenc assembles sampled frames into an animated GIF and performs a
// best-effort sanity check on the produced container.
package gifenc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"

	"github.com/maauso/mediaconv/internal/timeline"
)

var (
	// ErrEncodeFailed is returned when GIF encoding fails. No partial output is produced.
	ErrEncodeFailed = errors.New("gif encode failed")
	// ErrNoFrames is returned when Encode is called without frames.
	ErrNoFrames = errors.New("no frames to encode")
)

// DefaultQuality matches the encoder's default sampling quality.
const DefaultQuality = 10

// Options configures GIF assembly.
type Options struct {
	// Width and Height are the logical screen size. Frames are drawn at the origin.
	Width  int
	Height int
	// Quality ranges from 1 (best) to 30 (fastest). Values up to DefaultQuality
	// use error-diffusion dithering.
	Quality int
	// LoopCount follows image/gif: 0 loops forever, -1 plays once.
	LoopCount int
}

// ProgressFunc receives advisory progress in [0, 1].
type ProgressFunc func(fraction float64)

// Encoder turns an ordered frame sequence into GIF bytes.
type Encoder interface {
	// Encode must keep frame order. An error fails the whole conversion.
	Encode(ctx context.Context, frames []timeline.Frame, opts Options, progress ProgressFunc) ([]byte, error)
}

// Compile-time check that PalettedEncoder implements Encoder.
var _ Encoder = (*PalettedEncoder)(nil)

// PalettedEncoder quantizes frames to a fixed palette and writes them with image/gif.
type PalettedEncoder struct {
	palette color.Palette
}

// NewPalettedEncoder creates a PalettedEncoder using the Plan 9 palette.
func NewPalettedEncoder() *PalettedEncoder {
	return &PalettedEncoder{palette: palette.Plan9}
}

// Encode implements Encoder.
func (e *PalettedEncoder) Encode(ctx context.Context, frames []timeline.Frame, opts Options, progress ProgressFunc) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, ErrNoFrames)
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid canvas %dx%d", ErrEncodeFailed, opts.Width, opts.Height)
	}
	if progress == nil {
		progress = func(float64) {}
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}
	var drawer draw.Drawer = draw.Src
	if quality <= DefaultQuality {
		drawer = draw.FloydSteinberg
	}

	bounds := image.Rect(0, 0, opts.Width, opts.Height)
	anim := &gif.GIF{
		Image:     make([]*image.Paletted, 0, len(frames)),
		Delay:     make([]int, 0, len(frames)),
		Disposal:  make([]byte, 0, len(frames)),
		LoopCount: opts.LoopCount,
		Config: image.Config{
			ColorModel: e.palette,
			Width:      opts.Width,
			Height:     opts.Height,
		},
	}

	for i, f := range frames {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
		}
		if f.Image == nil {
			return nil, fmt.Errorf("%w: frame %d has no image", ErrEncodeFailed, f.Index)
		}

		pm := image.NewPaletted(bounds, e.palette)
		drawer.Draw(pm, bounds, f.Image, f.Image.Bounds().Min)

		anim.Image = append(anim.Image, pm)
		// GIF delays are in hundredths of a second.
		anim.Delay = append(anim.Delay, (f.DelayMs+5)/10)
		anim.Disposal = append(anim.Disposal, gif.DisposalNone)

		progress(float64(i+1) / float64(len(frames)) * 0.9)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodeFailed, err)
	}
	progress(1)

	return buf.Bytes(), nil
}
