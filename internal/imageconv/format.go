package imageconv

import "strings"

// Format is an output image format name as chosen by the user.
type Format string

// Supported output formats. JPG and JPEG are aliases.
const (
	FormatJPG  Format = "jpg"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ParseFormat normalizes s. Unknown names map to FormatJPG.
func ParseFormat(s string) Format {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJPG, FormatJPEG, FormatPNG, FormatWebP:
		return f
	default:
		return FormatJPG
	}
}

// MIMEType returns the MIME type produced for f. Anything that is not PNG or
// WebP is encoded as JPEG.
func (f Format) MIMEType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Lossy reports whether the quality setting affects f.
func (f Format) Lossy() bool {
	return f != FormatPNG
}

// OutputFileName replaces the extension after the last dot of name with f,
// or appends one when name has no dot.
func OutputFileName(name string, f Format) string {
	if name == "" {
		return "converted_image." + string(f)
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i] + "." + string(f)
	}
	return name + "." + string(f)
}
