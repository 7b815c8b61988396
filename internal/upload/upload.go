// Package upload validates user supplied files before they enter a session.
package upload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Default size limits.
const (
	DefaultMaxVideoBytes int64 = 100 * 1024 * 1024
	DefaultMaxImageBytes int64 = 50 * 1024 * 1024
)

// ErrInvalidInput is returned for files of the wrong type or size. Its
// message is meant for the user.
var ErrInvalidInput = errors.New("invalid input")

// File describes an uploaded file before its content is read.
type File struct {
	Name     string
	MimeType string
	Size     int64
}

// Rejection pairs a refused file with the reason shown to the user.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ValidateVideo accepts video/* files up to maxBytes. A non-positive maxBytes
// means DefaultMaxVideoBytes.
func ValidateVideo(f File, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxVideoBytes
	}
	return validate(f, "video/", "a video file", maxBytes)
}

// ValidateImage accepts image/* files up to maxBytes. A non-positive maxBytes
// means DefaultMaxImageBytes.
func ValidateImage(f File, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return validate(f, "image/", "an image file", maxBytes)
}

func validate(f File, prefix, kind string, maxBytes int64) error {
	if !strings.HasPrefix(strings.ToLower(f.MimeType), prefix) {
		return fmt.Errorf("%w: %s is not %s", ErrInvalidInput, displayName(f.Name), kind)
	}
	if f.Size > maxBytes {
		return fmt.Errorf("%w: %s is too large (%s), the limit is %s",
			ErrInvalidInput, displayName(f.Name), FormatFileSize(f.Size), FormatFileSize(maxBytes))
	}
	return nil
}

// PartitionImages splits files into accepted images and rejections. It fails
// with ErrInvalidInput only when nothing is accepted.
func PartitionImages(files []File, maxBytes int64) (accepted []File, rejected []Rejection, err error) {
	for _, f := range files {
		if verr := ValidateImage(f, maxBytes); verr != nil {
			rejected = append(rejected, Rejection{
				Name:   f.Name,
				Reason: strings.TrimPrefix(verr.Error(), ErrInvalidInput.Error()+": "),
			})
			continue
		}
		accepted = append(accepted, f)
	}
	if len(accepted) == 0 {
		return nil, rejected, fmt.Errorf("%w: please choose image files", ErrInvalidInput)
	}
	return accepted, rejected, nil
}

// FormatFileSize renders a byte count in binary units, e.g. "1.5 MiB".
func FormatFileSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

func displayName(name string) string {
	if name == "" {
		return "file"
	}
	return fmt.Sprintf("%q", name)
}
