// Package timeline models the selected time window of a video and samples it
// into an evenly spaced, ordered sequence of rasterized frames.
package timeline

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MinSeparation is the smallest allowed gap between window start and end, in seconds.
	MinSeparation = 0.1
	// DefaultLength is the length of the window selected when a video is loaded, in seconds.
	DefaultLength = 3.0
)

// ErrInvalidWindow is returned when a window does not satisfy 0 <= start < end <= duration.
var ErrInvalidWindow = errors.New("invalid time window")

// Window is a [Start, End) sub-interval of a video, in seconds.
type Window struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// NewWindow validates start and end against the video duration.
func NewWindow(start, end, duration float64) (Window, error) {
	w := Window{Start: start, End: end}
	if err := w.Validate(duration); err != nil {
		return Window{}, err
	}
	return w, nil
}

// DefaultWindow returns the window selected on load: the first three seconds,
// or the whole video when it is shorter.
func DefaultWindow(duration float64) Window {
	return Window{Start: 0, End: math.Min(DefaultLength, duration)}
}

// Validate checks 0 <= start < end <= duration.
func (w Window) Validate(duration float64) error {
	if math.IsNaN(w.Start) || math.IsNaN(w.End) {
		return fmt.Errorf("%w: start and end must be numbers", ErrInvalidWindow)
	}
	if w.Start < 0 {
		return fmt.Errorf("%w: start %.2fs is negative", ErrInvalidWindow, w.Start)
	}
	if w.Start >= w.End {
		return fmt.Errorf("%w: start %.2fs must be before end %.2fs", ErrInvalidWindow, w.Start, w.End)
	}
	if w.End > duration {
		return fmt.Errorf("%w: end %.2fs exceeds duration %.2fs", ErrInvalidWindow, w.End, duration)
	}
	return nil
}

// Length returns End - Start.
func (w Window) Length() float64 {
	return w.End - w.Start
}

// WithStart moves the start handle to t, keeping it at least MinSeparation
// before the end and not below zero.
func (w Window) WithStart(t float64) Window {
	w.Start = math.Max(0, math.Min(t, w.End-MinSeparation))
	return w
}

// WithEnd moves the end handle to t, keeping it at least MinSeparation after
// the start and not past duration.
func (w Window) WithEnd(t, duration float64) Window {
	w.End = math.Max(w.Start+MinSeparation, math.Min(t, duration))
	return w
}

// Nearest moves whichever handle is closer to t. Ties move the end handle.
func (w Window) Nearest(t, duration float64) Window {
	if math.Abs(t-w.Start) < math.Abs(t-w.End) {
		return w.WithStart(t)
	}
	return w.WithEnd(t, duration)
}

// FromInput builds a window from a typed start time and length.
func FromInput(start, length, duration float64) Window {
	s := math.Max(0, math.Min(start, duration-MinSeparation))
	e := math.Max(s+MinSeparation, math.Min(s+length, duration))
	return Window{Start: s, End: e}
}

// FormatTime renders seconds as m:ss.t, e.g. 75.25 -> "1:15.2".
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	mins := int(seconds / 60)
	secs := int(math.Mod(seconds, 60))
	tenths := int(math.Mod(seconds, 1) * 10)
	return fmt.Sprintf("%d:%02d.%d", mins, secs, tenths)
}
