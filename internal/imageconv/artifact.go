package imageconv

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidDataURL is returned when a data URL has no base64 payload.
var ErrInvalidDataURL = errors.New("invalid data URL")

// Artifact is an encoded output. Data holds the exact bytes when the codec
// returns them; DataURL is the embedded text form.
type Artifact struct {
	Data    []byte
	DataURL string
}

// Size returns the artifact size in bytes. When only the text form is
// available the size is estimated and the second result is true.
func (a Artifact) Size() (int64, bool) {
	if a.Data != nil {
		return int64(len(a.Data)), false
	}
	return EstimateSize(a.DataURL), true
}

// Bytes returns the encoded bytes, decoding the data URL when needed.
func (a Artifact) Bytes() ([]byte, error) {
	if a.Data != nil {
		return a.Data, nil
	}
	_, payload, ok := strings.Cut(a.DataURL, ";base64,")
	if !ok {
		return nil, ErrInvalidDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataURL, err)
	}
	return data, nil
}

// EstimateSize approximates the byte size behind a data URL from its length.
// The coefficient depends on the declared type: PNG 0.8, WebP 0.7, else 0.75.
func EstimateSize(dataURL string) int64 {
	coefficient := 0.75
	switch {
	case strings.Contains(dataURL, "image/png"):
		coefficient = 0.8
	case strings.Contains(dataURL, "image/webp"):
		coefficient = 0.7
	}
	return int64(math.Round(float64(len(dataURL)) * coefficient))
}

// DataURL renders data as a base64 data URL of the given MIME type.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
