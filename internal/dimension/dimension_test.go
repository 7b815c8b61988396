package dimension

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		src  Size
		req  Request
		want Size
	}{
		{"no request keeps source", Size{1920, 1080}, Request{KeepAspect: true}, Size{1920, 1080}},
		{"negative request keeps source", Size{640, 480}, Request{Width: -5, Height: 0, KeepAspect: true}, Size{640, 480}},
		{"stretch both", Size{640, 480}, Request{Width: 100, Height: 100}, Size{100, 100}},
		{"stretch width only", Size{640, 480}, Request{Width: 100}, Size{100, 480}},
		{"stretch height only", Size{640, 480}, Request{Height: 100}, Size{640, 100}},
		{"aspect width only", Size{640, 480}, Request{Width: 320, KeepAspect: true}, Size{320, 240}},
		{"aspect height only", Size{640, 480}, Request{Height: 120, KeepAspect: true}, Size{160, 120}},
		{"fit within wide box", Size{640, 480}, Request{Width: 800, Height: 300, KeepAspect: true}, Size{400, 300}},
		{"fit within tall box", Size{640, 480}, Request{Width: 320, Height: 900, KeepAspect: true}, Size{320, 240}},
		{"upscale fit", Size{100, 50}, Request{Width: 400, Height: 400, KeepAspect: true}, Size{400, 200}},
		{"clamp large stretch", Size{640, 480}, Request{Width: 10000, Height: 5000}, Size{4096, 4096}},
		{"clamp custom max", Size{640, 480}, Request{Width: 2000, KeepAspect: true, MaxDim: 1000}, Size{1000, 1000}},
		{"tiny derived dimension clamps to one", Size{10000, 10}, Request{Width: 100, KeepAspect: true}, Size{100, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.src, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_InvalidSource(t *testing.T) {
	for _, src := range []Size{{0, 100}, {100, 0}, {-1, 10}, {0, 0}} {
		_, err := Resolve(src, Request{Width: 10, KeepAspect: true})
		assert.ErrorIs(t, err, ErrInvalidSourceDimensions, "source %s", src)
		assert.Equal(t, Fallback, ResolveOrFallback(src, Request{Width: 10}))
	}
}

func TestResolve_FitWithinLaw(t *testing.T) {
	sources := []Size{{640, 480}, {1920, 1080}, {1080, 1920}, {333, 777}, {1, 1}, {4000, 3}}
	boxes := []Size{{100, 100}, {320, 240}, {50, 900}, {1024, 768}, {7, 13}}

	for _, src := range sources {
		for _, box := range boxes {
			got, err := Resolve(src, Request{Width: box.Width, Height: box.Height, KeepAspect: true})
			require.NoError(t, err)

			scale := math.Min(float64(box.Width)/float64(src.Width), float64(box.Height)/float64(src.Height))
			wantW := float64(src.Width) * scale
			wantH := float64(src.Height) * scale

			if wantW >= 1 && wantH >= 1 {
				assert.LessOrEqual(t, got.Width, box.Width, "src %s box %s", src, box)
				assert.LessOrEqual(t, got.Height, box.Height, "src %s box %s", src, box)
				assert.True(t, got.Width == box.Width || got.Height == box.Height,
					"src %s box %s got %s touches neither bound", src, box, got)
			}
			assert.InDelta(t, wantW, float64(got.Width), 1.0)
			assert.InDelta(t, wantH, float64(got.Height), 1.0)
		}
	}
}

func TestResolve_SingleDimensionLaw(t *testing.T) {
	src := Size{1280, 720}
	for _, w := range []int{1, 99, 320, 641, 1000} {
		got, err := Resolve(src, Request{Width: w, KeepAspect: true})
		require.NoError(t, err)
		assert.Equal(t, w, got.Width)
		assert.Equal(t, max(int(math.Round(float64(src.Height)*float64(w)/float64(src.Width))), 1), got.Height)
	}
	for _, h := range []int{1, 77, 240, 719} {
		got, err := Resolve(src, Request{Height: h, KeepAspect: true})
		require.NoError(t, err)
		assert.Equal(t, h, got.Height)
		assert.Equal(t, max(int(math.Round(float64(src.Width)*float64(h)/float64(src.Height))), 1), got.Width)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		src  Size
		want Size
	}{
		{"4:3 fits exactly", Size{640, 480}, Size{320, 240}},
		{"16:9 keeps width", Size{1920, 1080}, Size{320, 180}},
		{"portrait pins height", Size{1080, 1920}, Size{135, 240}},
		{"square pins height", Size{500, 500}, Size{240, 240}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Preview(tt.src, 320, 240)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Preview(Size{0, 10}, 320, 240)
	assert.ErrorIs(t, err, ErrInvalidSourceDimensions)
}
