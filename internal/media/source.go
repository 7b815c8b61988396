package media

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"

	"github.com/maauso/mediaconv/internal/timeline"
)

// endSlack is how far before a requested position VideoSource retries when
// the position lies past the last decodable frame.
const endSlack = 0.1

// Compile-time check that VideoSource implements timeline.FrameSource.
var _ timeline.FrameSource = (*VideoSource)(nil)

// VideoSource binds a Processor to one video file. Seeks are stateful on the
// decoded source, so only one is in flight at a time.
type VideoSource struct {
	mu        sync.Mutex
	processor Processor
	path      string
}

// NewVideoSource creates a VideoSource for the video at path.
func NewVideoSource(processor Processor, path string) *VideoSource {
	return &VideoSource{processor: processor, path: path}
}

// FrameAt implements timeline.FrameSource. Like a player clamping its
// position to the duration, a seek that lands after the final frame falls
// back to the frame just before it.
func (s *VideoSource) FrameAt(ctx context.Context, t float64) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.processor.FrameAt(ctx, s.path, t)
	if errors.Is(err, ErrEmptyOutput) && t > 0 {
		return s.processor.FrameAt(ctx, s.path, math.Max(0, t-endSlack))
	}
	return img, err
}
