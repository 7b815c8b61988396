// Package dimension computes output raster sizes from a source size and the
// user's width/height constraints.
//
// All functions are pure: the same source and request always resolve to the
// same output size.
package dimension

import (
	"errors"
	"fmt"
	"math"
)

// DefaultMaxDim is the largest width or height an output raster may have.
const DefaultMaxDim = 4096

// ErrInvalidSourceDimensions is returned when the source width or height is not positive.
var ErrInvalidSourceDimensions = errors.New("invalid source dimensions")

// Fallback is the size substituted for a source whose dimensions cannot be read.
var Fallback = Size{Width: 100, Height: 100}

// Size is a raster size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// String returns the size as WxH.
func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Request describes the requested output size.
// A Width or Height that is zero or negative is treated as absent.
type Request struct {
	Width      int
	Height     int
	KeepAspect bool
	// MaxDim bounds both output dimensions. Zero means DefaultMaxDim.
	MaxDim int
}

// Resolve computes the output size for src under req.
//
// With both dimensions absent the source size is returned as is. Without
// KeepAspect each absent dimension falls back to the source dimension. With
// KeepAspect a single dimension scales the other proportionally, and two
// dimensions fit the source inside the requested box using the smaller of the
// two scale factors. Outputs are rounded and clamped to [1, MaxDim].
func Resolve(src Size, req Request) (Size, error) {
	if !src.Valid() {
		return Size{}, fmt.Errorf("%w: %s", ErrInvalidSourceDimensions, src)
	}

	w, h := req.Width, req.Height
	hasW, hasH := w > 0, h > 0
	if !hasW && !hasH {
		return src, nil
	}

	var outW, outH float64
	switch {
	case !req.KeepAspect:
		outW, outH = float64(src.Width), float64(src.Height)
		if hasW {
			outW = float64(w)
		}
		if hasH {
			outH = float64(h)
		}
	case hasW && hasH:
		scale := math.Min(float64(w)/float64(src.Width), float64(h)/float64(src.Height))
		outW = float64(src.Width) * scale
		outH = float64(src.Height) * scale
	case hasW:
		outW = float64(w)
		outH = float64(src.Height) * float64(w) / float64(src.Width)
	default:
		outH = float64(h)
		outW = float64(src.Width) * float64(h) / float64(src.Height)
	}

	maxDim := req.MaxDim
	if maxDim <= 0 {
		maxDim = DefaultMaxDim
	}

	return Size{
		Width:  clamp(round(outW), maxDim),
		Height: clamp(round(outH), maxDim),
	}, nil
}

// ResolveOrFallback is Resolve with Fallback substituted for an unreadable source.
func ResolveOrFallback(src Size, req Request) Size {
	out, err := Resolve(src, req)
	if err != nil {
		return Fallback
	}
	return out
}

// Preview returns the default output size for src bounded by maxW x maxH.
// The width starts at maxW; if the proportional height exceeds maxH the height
// is pinned to maxH and the width derived from it instead.
func Preview(src Size, maxW, maxH int) (Size, error) {
	if !src.Valid() {
		return Size{}, fmt.Errorf("%w: %s", ErrInvalidSourceDimensions, src)
	}
	aspect := float64(src.Width) / float64(src.Height)

	w := maxW
	h := round(float64(w) / aspect)
	if h > maxH {
		h = maxH
		w = round(float64(h) * aspect)
	}
	return Size{Width: max(w, 1), Height: max(h, 1)}, nil
}

func round(v float64) int {
	return int(math.Round(v))
}

func clamp(v, maxDim int) int {
	if v < 1 {
		return 1
	}
	if v > maxDim {
		return maxDim
	}
	return v
}
