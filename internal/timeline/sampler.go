package timeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"iter"
	"math"
	"sync"

	"golang.org/x/image/draw"

	"github.com/maauso/mediaconv/internal/dimension"
)

var (
	// ErrFrameExtractionFailed is returned when seeking or rasterizing a frame fails.
	ErrFrameExtractionFailed = errors.New("frame extraction failed")
	// ErrInvalidRate is returned when the sampling rate is not positive.
	ErrInvalidRate = errors.New("invalid frame rate: must be positive")
)

// FrameSource seeks a decoded video to a timestamp and returns the frame visible there.
// Seeking is stateful; callers must not have two seeks in flight on one source.
type FrameSource interface {
	FrameAt(ctx context.Context, t float64) (image.Image, error)
}

// Frame is one rasterized image at a timestamp, tagged with its display delay.
type Frame struct {
	Index     int
	Timestamp float64
	Image     *image.RGBA
	DelayMs   int
}

// FrameExtractionError reports the index and timestamp at which sampling stopped.
type FrameExtractionError struct {
	Index     int
	Timestamp float64
	Err       error
}

func (e *FrameExtractionError) Error() string {
	return fmt.Sprintf("%v at frame %d (%.3fs): %v", ErrFrameExtractionFailed, e.Index, e.Timestamp, e.Err)
}

func (e *FrameExtractionError) Unwrap() []error {
	return []error{ErrFrameExtractionFailed, e.Err}
}

// Request is an immutable description of one sampling run.
type Request struct {
	Window Window
	Rate   float64
	Size   dimension.Size
}

// Validate checks the rate, window and output size.
func (r Request) Validate() error {
	if !(r.Rate > 0) || math.IsInf(r.Rate, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidRate, r.Rate)
	}
	if math.IsNaN(r.Window.Start) || r.Window.Start < 0 || !(r.Window.Start < r.Window.End) {
		return fmt.Errorf("%w: [%.2f, %.2f)", ErrInvalidWindow, r.Window.Start, r.Window.End)
	}
	if !r.Size.Valid() {
		return fmt.Errorf("%w: output %s", dimension.ErrInvalidSourceDimensions, r.Size)
	}
	return nil
}

// TotalFrames returns ceil(length * rate), the upper bound on frames sampled from w.
func TotalFrames(w Window, rate float64) int {
	if rate <= 0 || w.End <= w.Start {
		return 0
	}
	return int(math.Ceil(w.Length() * rate))
}

// FrameDelay returns the per-frame display delay in milliseconds for rate.
func FrameDelay(rate float64) int {
	if rate <= 0 {
		return 0
	}
	return int(math.Round(1000 / rate))
}

// Timestamps yields (index, timestamp) pairs start + i/rate. It stops when i
// reaches TotalFrames or the timestamp reaches w.End, whichever comes first.
// Each call returns a fresh sequence.
func Timestamps(w Window, rate float64) iter.Seq2[int, float64] {
	total := TotalFrames(w, rate)
	return func(yield func(int, float64) bool) {
		if total == 0 {
			return
		}
		interval := 1 / rate
		for i := 0; i < total; i++ {
			t := w.Start + float64(i)*interval
			if t >= w.End {
				return
			}
			if !yield(i, t) {
				return
			}
		}
	}
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithProgress registers a callback invoked after each frame with the number
// of frames produced so far and the expected total.
func WithProgress(fn func(done, total int)) SamplerOption {
	return func(s *Sampler) {
		s.onFrame = fn
	}
}

// WithScaler sets the interpolator used to draw source frames onto the canvas.
func WithScaler(scaler draw.Scaler) SamplerOption {
	return func(s *Sampler) {
		s.scaler = scaler
	}
}

// Sampler converts a time window of a FrameSource into ordered frames.
// One reusable canvas is allocated per run and is owned by that run.
type Sampler struct {
	// seekMu keeps a single seek in flight.
	seekMu  sync.Mutex
	onFrame func(done, total int)
	scaler  draw.Scaler
}

// NewSampler creates a Sampler.
func NewSampler(opts ...SamplerOption) *Sampler {
	s := &Sampler{scaler: draw.ApproxBiLinear}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Frames lazily seeks, rasterizes and yields one frame per timestamp of req.
// The sequence stops after the first error, which is yielded as a
// *FrameExtractionError.
func (s *Sampler) Frames(ctx context.Context, src FrameSource, req Request) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		if err := req.Validate(); err != nil {
			yield(Frame{}, err)
			return
		}

		total := TotalFrames(req.Window, req.Rate)
		delay := FrameDelay(req.Rate)
		canvas := image.NewRGBA(image.Rect(0, 0, req.Size.Width, req.Size.Height))

		done := 0
		for i, t := range Timestamps(req.Window, req.Rate) {
			if err := ctx.Err(); err != nil {
				yield(Frame{}, &FrameExtractionError{Index: i, Timestamp: t, Err: err})
				return
			}

			if err := s.rasterize(ctx, src, t, canvas); err != nil {
				yield(Frame{}, &FrameExtractionError{Index: i, Timestamp: t, Err: err})
				return
			}

			frame := Frame{
				Index:     i,
				Timestamp: t,
				Image:     cloneRGBA(canvas),
				DelayMs:   delay,
			}
			done++
			if s.onFrame != nil {
				s.onFrame(done, total)
			}
			if !yield(frame, nil) {
				return
			}
		}
	}
}

// Sample runs Frames to completion. On failure it returns no frames.
func (s *Sampler) Sample(ctx context.Context, src FrameSource, req Request) ([]Frame, error) {
	frames := make([]Frame, 0, TotalFrames(req.Window, req.Rate))
	for frame, err := range s.Frames(ctx, src, req) {
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// rasterize seeks src to t and draws the visible frame over the whole canvas.
func (s *Sampler) rasterize(ctx context.Context, src FrameSource, t float64, canvas *image.RGBA) error {
	s.seekMu.Lock()
	defer s.seekMu.Unlock()

	img, err := src.FrameAt(ctx, t)
	if err != nil {
		return err
	}
	if img == nil {
		return errors.New("source returned no frame")
	}
	s.scaler.Scale(canvas, canvas.Bounds(), img, img.Bounds(), draw.Src, nil)
	return nil
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	return dst
}
