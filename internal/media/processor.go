// Package media wraps the ffmpeg and ffprobe command line tools used to seek,
// rasterize and re-encode user supplied media.
package media

import (
	"context"
	"image"
)

// Processor defines the media operations backed by ffmpeg.
type Processor interface {
	// Probe reads the dimensions, duration and codec of a video file.
	Probe(ctx context.Context, path string) (ProbeResult, error)

	// FrameAt seeks to t seconds and returns the decoded frame shown at that
	// position. A position past the last decodable frame yields ErrEmptyOutput.
	FrameAt(ctx context.Context, path string, t float64) (image.Image, error)

	// Transcode re-encodes an in-memory image through the given filter and
	// output codec arguments, returning the encoded bytes.
	Transcode(ctx context.Context, src []byte, outArgs []string) ([]byte, error)
}

// ProbeResult holds the metadata the converters need from a video.
type ProbeResult struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`
	Codec    string  `json:"codec"`
}
