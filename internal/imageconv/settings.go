package imageconv

import "github.com/maauso/mediaconv/internal/dimension"

// DefaultQuality is used when Settings.Quality is unset.
const DefaultQuality = 90

// Settings are the target parameters applied to every item of a batch.
type Settings struct {
	Format     Format `json:"format"`
	Quality    int    `json:"quality"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	KeepAspect bool   `json:"keep_aspect"`
	MaxDim     int    `json:"-"`
}

// Normalize fills defaults and clamps quality into [1, 100].
func (s Settings) Normalize() Settings {
	s.Format = ParseFormat(string(s.Format))
	switch {
	case s.Quality <= 0:
		s.Quality = DefaultQuality
	case s.Quality > 100:
		s.Quality = 100
	}
	if s.MaxDim <= 0 {
		s.MaxDim = dimension.DefaultMaxDim
	}
	return s
}

func (s Settings) request() dimension.Request {
	return dimension.Request{
		Width:      s.Width,
		Height:     s.Height,
		KeepAspect: s.KeepAspect,
		MaxDim:     s.MaxDim,
	}
}
