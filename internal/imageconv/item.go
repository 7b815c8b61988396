package imageconv

import (
	"bytes"
	"image"
	// Decoders for the source formats browsers commonly hand us.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/maauso/mediaconv/internal/dimension"
)

// Status is the conversion state of an Item.
type Status string

// Item statuses.
const (
	StatusPending   Status = "pending"
	StatusConverted Status = "converted"
	StatusFailed    Status = "failed"
)

// Item is one source image queued for conversion.
type Item struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	MimeType   string         `json:"mime_type"`
	Size       int64          `json:"size"`
	Dimensions dimension.Size `json:"dimensions"`
	Status     Status         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Data       []byte         `json:"-"`
}

// NewItem creates a pending Item and reads its dimensions from the image
// header. Undecodable data gets 0x0 dimensions; conversion reports the failure.
func NewItem(itemID, name, mimeType string, data []byte) Item {
	it := Item{
		ID:       itemID,
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Status:   StatusPending,
		Data:     data,
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		it.Dimensions = dimension.Size{Width: cfg.Width, Height: cfg.Height}
	}
	return it
}
