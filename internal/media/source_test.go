package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Probe(ctx context.Context, path string) (ProbeResult, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(ProbeResult), args.Error(1)
}

func (m *mockProcessor) FrameAt(ctx context.Context, path string, t float64) (image.Image, error) {
	args := m.Called(ctx, path, t)
	img, _ := args.Get(0).(image.Image)
	return img, args.Error(1)
}

func (m *mockProcessor) Transcode(ctx context.Context, src []byte, outArgs []string) ([]byte, error) {
	args := m.Called(ctx, src, outArgs)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func TestVideoSource_FrameAt(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 4, 4))

	t.Run("delegates to processor", func(t *testing.T) {
		p := new(mockProcessor)
		p.On("FrameAt", mock.Anything, "/tmp/v.mp4", 1.5).Return(frame, nil)

		img, err := NewVideoSource(p, "/tmp/v.mp4").FrameAt(context.Background(), 1.5)
		require.NoError(t, err)
		assert.Same(t, frame, img)
		p.AssertExpectations(t)
	})

	t.Run("steps back past the last frame", func(t *testing.T) {
		p := new(mockProcessor)
		p.On("FrameAt", mock.Anything, "/tmp/v.mp4", 2.95).
			Return(nil, fmt.Errorf("%w: frame at 2.950s", ErrEmptyOutput)).Once()
		p.On("FrameAt", mock.Anything, "/tmp/v.mp4", mock.MatchedBy(func(t float64) bool {
			return t > 2.84 && t < 2.86
		})).Return(frame, nil).Once()

		img, err := NewVideoSource(p, "/tmp/v.mp4").FrameAt(context.Background(), 2.95)
		require.NoError(t, err)
		assert.Same(t, frame, img)
		p.AssertExpectations(t)
	})

	t.Run("other errors propagate", func(t *testing.T) {
		p := new(mockProcessor)
		boom := errors.New("decoder gone")
		p.On("FrameAt", mock.Anything, "/tmp/v.mp4", 0.0).Return(nil, boom)

		_, err := NewVideoSource(p, "/tmp/v.mp4").FrameAt(context.Background(), 0)
		assert.ErrorIs(t, err, boom)
		p.AssertNumberOfCalls(t, "FrameAt", 1)
	})
}
