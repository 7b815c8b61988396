package gifenc

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// imageSeparator introduces an image descriptor block in a GIF stream.
const imageSeparator = 0x2C

// Verdict is the outcome of Inspect.
type Verdict struct {
	ValidHeader bool   `json:"valid_header"`
	Version     string `json:"version,omitempty"`
	ImageBlocks int    `json:"image_blocks"`
	Animated    bool   `json:"animated"`
	Message     string `json:"message"`
}

// Inspect checks the GIF signature and counts image separator bytes.
//
// The count is a heuristic: 0x2C bytes inside compressed image data are
// counted as well, so the result can be wrong for unusual streams. It is a
// diagnostic, not a parser.
func Inspect(data []byte) Verdict {
	if len(data) < 6 {
		return Verdict{Message: "invalid GIF header: file too short"}
	}
	version := string(data[:6])
	if version != "GIF87a" && version != "GIF89a" {
		return Verdict{Message: fmt.Sprintf("invalid GIF header %q", version)}
	}

	count := 0
	for i := 0; i < len(data)-1; i++ {
		if data[i] == imageSeparator {
			count++
		}
	}

	v := Verdict{
		ValidHeader: true,
		Version:     version,
		ImageBlocks: count,
		Animated:    count > 1,
	}
	if v.Animated {
		v.Message = fmt.Sprintf("verified animated: %d image blocks", count)
	} else {
		v.Message = fmt.Sprintf("warning: possibly not animated (%d image blocks)", count)
	}
	return v
}

// FileName derives the output name for a GIF made from sourceName:
// <basename>_<YYYY-MM-DDTHH-MM-SS>.gif in UTC. The basename is the part of the
// file name before its first dot.
func FileName(sourceName string, now time.Time) string {
	base := filepath.Base(sourceName)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	if base == "" || base == "/" {
		base = "video"
	}
	stamp := strings.ReplaceAll(now.UTC().Format("2006-01-02T15:04:05"), ":", "-")
	return base + "_" + stamp + ".gif"
}
