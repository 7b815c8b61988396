// Package imageconv converts batches of images to a target format and size,
// one item at a time, isolating per-item failures.
package imageconv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/mediaconv/internal/dimension"
)

// ErrItemFailed marks the failure of a single batch item.
var ErrItemFailed = errors.New("item conversion failed")

// Result is the outcome of converting one Item.
type Result struct {
	// ID identifies the result within its session; the Converter leaves it empty.
	ID           string         `json:"id,omitempty"`
	ItemID       string         `json:"item_id"`
	OriginalName string         `json:"original_name"`
	FileName     string         `json:"file_name"`
	Format       Format         `json:"format"`
	MimeType     string         `json:"mime_type"`
	Dimensions   dimension.Size `json:"dimensions"`
	OriginalSize int64          `json:"original_size"`
	Status       Status         `json:"status"`
	Error        string         `json:"error,omitempty"`
	Artifact     Artifact       `json:"-"`
}

// Size returns the output size and whether it is an estimate.
func (r Result) Size() (int64, bool) {
	return r.Artifact.Size()
}

// ProgressFunc is called after each item with the number of items done.
type ProgressFunc func(done, total int)

// Observer receives per-item outcomes, e.g. for metrics.
type Observer interface {
	ItemConverted(format Format, d time.Duration)
	ItemFailed(format Format)
}

// Option configures a Converter.
type Option func(*Converter)

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(c *Converter) { c.observer = o }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Converter) {
		if l != nil {
			c.logger = l
		}
	}
}

// Converter resolves target dimensions and delegates encoding to an Encoder.
type Converter struct {
	encoder  Encoder
	observer Observer
	logger   *slog.Logger
}

// NewConverter creates a Converter around enc.
func NewConverter(enc Encoder, opts ...Option) *Converter {
	c := &Converter{encoder: enc, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConvertSingle converts one item. The returned Result always describes the
// item; on failure its Status is StatusFailed and err wraps ErrItemFailed.
func (c *Converter) ConvertSingle(ctx context.Context, item Item, settings Settings) (Result, error) {
	return c.convert(ctx, item, settings.Normalize())
}

// ConvertAll converts items strictly in order, one at a time. A failing item
// is recorded as failed and the batch continues.
func (c *Converter) ConvertAll(ctx context.Context, items []Item, settings Settings, progress ProgressFunc) []Result {
	settings = settings.Normalize()
	results := make([]Result, 0, len(items))

	for i, item := range items {
		res, err := c.convert(ctx, item, settings)
		if err != nil {
			c.logger.Warn("image conversion failed",
				slog.String("item_id", item.ID),
				slog.String("name", item.Name),
				slog.String("error", err.Error()),
			)
		}
		results = append(results, res)
		if progress != nil {
			progress(i+1, len(items))
		}
	}

	return results
}

func (c *Converter) convert(ctx context.Context, item Item, settings Settings) (Result, error) {
	start := time.Now()
	target := dimension.ResolveOrFallback(item.Dimensions, settings.request())

	res := Result{
		ItemID:       item.ID,
		OriginalName: item.Name,
		FileName:     OutputFileName(item.Name, settings.Format),
		Format:       settings.Format,
		MimeType:     settings.Format.MIMEType(),
		Dimensions:   target,
		OriginalSize: item.Size,
		Status:       StatusConverted,
	}

	artifact, err := c.encode(ctx, item, target, settings)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		if c.observer != nil {
			c.observer.ItemFailed(settings.Format)
		}
		return res, fmt.Errorf("%w: %s: %w", ErrItemFailed, item.Name, err)
	}

	res.Artifact = artifact
	if c.observer != nil {
		c.observer.ItemConverted(settings.Format, time.Since(start))
	}
	return res, nil
}

// encode shields the batch from a panicking codec.
func (c *Converter) encode(ctx context.Context, item Item, target dimension.Size, settings Settings) (a Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encoder panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	return c.encoder.Encode(ctx, item.Data, target, settings.Format, settings.Quality)
}
