package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

// createTestImage creates a simple test image using ffmpeg.
func createTestImage(t *testing.T, path string, width, height int) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=red:s=%dx%d:d=1", width, height),
		"-frames:v", "1",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test image: %v\noutput: %s", err, output)
	}
}

// createTestVideo creates a simple test video using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64, color string) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=64x48:r=25:d=%.1f", color, duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func TestNewFFmpegProcessor(t *testing.T) {
	t.Run("default paths", func(t *testing.T) {
		p := NewFFmpegProcessor("", "")
		assert.Equal(t, "ffmpeg", p.ffmpegPath)
		assert.Equal(t, "ffprobe", p.ffprobePath)
	})

	t.Run("custom paths", func(t *testing.T) {
		p := NewFFmpegProcessor("/usr/local/bin/ffmpeg", "/usr/local/bin/ffprobe")
		assert.Equal(t, "/usr/local/bin/ffmpeg", p.ffmpegPath)
		assert.Equal(t, "/usr/local/bin/ffprobe", p.ffprobePath)
	})
}

func TestParseProbeOutput(t *testing.T) {
	t.Run("video stream", func(t *testing.T) {
		data := []byte(`{
			"streams": [
				{"codec_type": "audio", "codec_name": "aac"},
				{"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720, "duration": "9.9"}
			],
			"format": {"duration": "10.010000"}
		}`)
		res, err := parseProbeOutput(data)
		require.NoError(t, err)
		assert.Equal(t, ProbeResult{Width: 1280, Height: 720, Duration: 10.01, Codec: "h264"}, res)
	})

	t.Run("stream duration fallback", func(t *testing.T) {
		data := []byte(`{"streams":[{"codec_type":"video","codec_name":"vp9","width":640,"height":360,"duration":"4.5"}],"format":{}}`)
		res, err := parseProbeOutput(data)
		require.NoError(t, err)
		assert.InDelta(t, 4.5, res.Duration, 1e-9)
	})

	t.Run("no video stream", func(t *testing.T) {
		_, err := parseProbeOutput([]byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"1"}}`))
		assert.ErrorIs(t, err, ErrNoVideoStream)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := parseProbeOutput([]byte(`{`))
		assert.Error(t, err)
	})
}

func TestProbe(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")

	t.Run("reads size and duration", func(t *testing.T) {
		videoPath := filepath.Join(tmpDir, "probe.mp4")
		createTestVideo(t, videoPath, 2.0, "blue")

		res, err := p.Probe(context.Background(), videoPath)
		require.NoError(t, err)
		assert.Equal(t, 64, res.Width)
		assert.Equal(t, 48, res.Height)
		assert.Equal(t, "h264", res.Codec)
		assert.InDelta(t, 2.0, res.Duration, 0.1)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := p.Probe(context.Background(), "/nonexistent/video.mp4")
		assert.ErrorIs(t, err, ErrFFprobeExecution)
	})
}

func TestFrameAt(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := NewFFmpegProcessor("", "")
	videoPath := filepath.Join(tmpDir, "frames.mp4")
	createTestVideo(t, videoPath, 1.0, "red")

	t.Run("decodes frame", func(t *testing.T) {
		img, err := p.FrameAt(context.Background(), videoPath, 0.5)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())

		r, g, b, _ := img.At(32, 24).RGBA()
		assert.Greater(t, r, g)
		assert.Greater(t, r, b)
	})

	t.Run("negative timestamp", func(t *testing.T) {
		_, err := p.FrameAt(context.Background(), videoPath, -1)
		assert.ErrorIs(t, err, ErrInvalidTimestamp)
	})

	t.Run("non-existent source", func(t *testing.T) {
		_, err := p.FrameAt(context.Background(), "/nonexistent/video.mp4", 0)
		require.Error(t, err)
		var ffErr *FFmpegError
		assert.True(t, errors.As(err, &ffErr), "expected FFmpegError, got %T", err)
	})

	t.Run("context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		_, err := p.FrameAt(ctx, videoPath, 0.2)
		assert.Error(t, err)
	})

	t.Run("context timeout", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-1*time.Second))
		defer cancel()

		_, err := p.FrameAt(ctx, videoPath, 0.2)
		assert.Error(t, err)
	})
}

func TestTranscode(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	src := filepath.Join(tmpDir, "input.png")
	createTestImage(t, src, 100, 50)
	data, err := os.ReadFile(src) // #nosec G304 - test fixture
	require.NoError(t, err)

	p := NewFFmpegProcessor("", "")
	out, err := p.Transcode(context.Background(), data, []string{"-vf", "scale=20:10", "-frames:v", "1", "-c:v", "png", "-f", "image2pipe"})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 10, img.Bounds().Dy())

	_, err = p.Transcode(context.Background(), []byte("not an image"), []string{"-c:v", "png", "-f", "image2pipe"})
	assert.Error(t, err)
}

func TestFFmpegError(t *testing.T) {
	err := &FFmpegError{
		Args:   []string{"-i", "input.mp4", "-frames:v", "1", "-"},
		Stderr: "Error opening input file",
		Err:    fmt.Errorf("exit status 1"),
	}

	errStr := err.Error()
	assert.True(t, strings.Contains(errStr, "exit status 1"), "Error() should contain underlying error")
	assert.True(t, strings.Contains(errStr, "Error opening input file"), "Error() should contain stderr")

	unwrapped := err.Unwrap()
	require.NotNil(t, unwrapped)
	assert.Equal(t, "exit status 1", unwrapped.Error())
}
