package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrInvalidTimestamp is returned when a seek position is negative or not finite.
	ErrInvalidTimestamp = errors.New("invalid timestamp: must be a non-negative number")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoVideoStream is returned when a probed file has no video stream.
	ErrNoVideoStream = errors.New("no video stream found")
	// ErrEmptyOutput is returned when ffmpeg exits cleanly without producing data.
	ErrEmptyOutput = errors.New("ffmpeg produced no output")
)

// Compile-time check that FFmpegProcessor implements Processor.
var _ Processor = (*FFmpegProcessor)(nil)

// FFmpegProcessor implements Processor using the ffmpeg CLI.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpegProcessor(ffmpegPath, ffprobePath string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the first video stream's size and codec plus the container duration.
func (p *FFmpegProcessor) Probe(ctx context.Context, path string) (ProbeResult, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-show_entries", "stream=codec_type,codec_name,width,height,duration",
		"-print_format", "json",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ProbeResult{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return ProbeResult{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return parseProbeOutput(stdout.Bytes())
}

func parseProbeOutput(data []byte) (ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		res := ProbeResult{Width: s.Width, Height: s.Height, Codec: s.CodecName}
		duration := out.Format.Duration
		if duration == "" || duration == "N/A" {
			duration = s.Duration
		}
		if d, err := strconv.ParseFloat(strings.TrimSpace(duration), 64); err == nil {
			res.Duration = d
		}
		return res, nil
	}

	return ProbeResult{}, ErrNoVideoStream
}

// FrameAt extracts a single PNG frame at t seconds and decodes it.
func (p *FFmpegProcessor) FrameAt(ctx context.Context, path string, t float64) (image.Image, error) {
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidTimestamp, t)
	}

	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(t, 'f', 3, 64), // Input seek, accurate to the frame
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	}

	out, err := p.runFFmpegOutput(ctx, args, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: frame at %.3fs", ErrEmptyOutput, t)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode frame at %.3fs: %w", t, err)
	}
	return img, nil
}

// Transcode pipes src through ffmpeg and returns what ffmpeg writes to stdout.
// outArgs are placed between the input and the output pipe.
func (p *FFmpegProcessor) Transcode(ctx context.Context, src []byte, outArgs []string) ([]byte, error) {
	args := make([]string, 0, len(outArgs)+6)
	args = append(args, "-v", "error", "-i", "pipe:0")
	args = append(args, outArgs...)
	args = append(args, "pipe:1")

	out, err := p.runFFmpegOutput(ctx, args, bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrEmptyOutput
	}
	return out, nil
}

// runFFmpegOutput executes ffmpeg with the given arguments and returns stdout.
// The returned error contains stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpegOutput(ctx context.Context, args []string, stdin io.Reader) ([]byte, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.Bytes(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
