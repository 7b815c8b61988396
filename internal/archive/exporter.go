package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"
)

var (
	// ErrArchiveFailed reports that the archive could not be built or
	// published. Export falls back to per-file publishing when it occurs.
	ErrArchiveFailed = errors.New("archive failed")
	// ErrNothingToExport is returned when Export gets no entries.
	ErrNothingToExport = errors.New("nothing to export")
	// ErrPublishFailed is returned when no output could be published at all.
	ErrPublishFailed = errors.New("publish failed")
)

// DefaultStagger spaces individual publishes in the fallback path.
const DefaultStagger = 500 * time.Millisecond

// Publisher stores a finished artifact and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error)
}

// Observer is notified of archive outcomes.
type Observer interface {
	ArchiveBuilt(entries int)
	ArchiveFellBack()
}

// FileLink is one individually published output.
type FileLink struct {
	Name  string `json:"name"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// Result describes what Export produced.
type Result struct {
	ArchiveName string     `json:"archive_name,omitempty"`
	ArchiveURL  string     `json:"archive_url,omitempty"`
	Files       []FileLink `json:"files,omitempty"`
	FellBack    bool       `json:"fell_back"`
	Warning     string     `json:"warning,omitempty"`
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithStagger sets the spacing between fallback publishes.
func WithStagger(d time.Duration) ExporterOption {
	return func(e *Exporter) { e.stagger = d }
}

// WithExportObserver registers an Observer.
func WithExportObserver(o Observer) ExporterOption {
	return func(e *Exporter) { e.observer = o }
}

// WithExportLogger sets the logger. The default is slog.Default().
func WithExportLogger(l *slog.Logger) ExporterOption {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// Exporter publishes a batch of outputs, as one archive when a Builder is
// available and as individual files otherwise.
type Exporter struct {
	builder   Builder
	publisher Publisher
	stagger   time.Duration
	observer  Observer
	logger    *slog.Logger
	now       func() time.Time
	after     func(time.Duration) <-chan time.Time
}

// NewExporter creates an Exporter. A nil builder disables archiving.
func NewExporter(builder Builder, publisher Publisher, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		builder:   builder,
		publisher: publisher,
		stagger:   DefaultStagger,
		logger:    slog.Default(),
		now:       time.Now,
		after:     time.After,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ArchiveEnabled reports whether Export will attempt an archive first.
func (e *Exporter) ArchiveEnabled() bool {
	return e.builder != nil
}

// Export publishes entries under keys scoped by scope, typically the owning
// session ID. An archive failure is not returned as an error: it is reported
// in Result.Warning and the entries are published one by one.
func (e *Exporter) Export(ctx context.Context, scope string, entries []Entry) (Result, error) {
	if len(entries) == 0 {
		return Result{}, ErrNothingToExport
	}

	if e.builder != nil {
		res, err := e.exportArchive(ctx, scope, entries)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		e.logger.Warn("archive export failed, publishing files individually",
			slog.Int("entries", len(entries)),
			slog.String("error", err.Error()),
		)
		res, ferr := e.exportFiles(ctx, scope, entries)
		res.Warning = err.Error()
		return res, ferr
	}

	return e.exportFiles(ctx, scope, entries)
}

func (e *Exporter) exportArchive(ctx context.Context, scope string, entries []Entry) (Result, error) {
	data, err := e.builder.Build(ctx, entries)
	if err != nil {
		return Result{}, fmt.Errorf("%w: build: %w", ErrArchiveFailed, err)
	}

	name := e.builder.Name(e.now())
	url, err := e.publisher.Publish(ctx, path.Join("archives", scope, name), bytes.NewReader(data), int64(len(data)), e.builder.ContentType())
	if err != nil {
		return Result{}, fmt.Errorf("%w: publish: %w", ErrArchiveFailed, err)
	}

	if e.observer != nil {
		e.observer.ArchiveBuilt(len(entries))
	}
	return Result{ArchiveName: name, ArchiveURL: url}, nil
}

// exportFiles publishes entry i no earlier than i*stagger after the first.
// A failed publish is recorded on its link and does not stop the rest.
// Duplicate names get the same _1, _2 suffixes as archive entries.
func (e *Exporter) exportFiles(ctx context.Context, scope string, entries []Entry) (Result, error) {
	if e.observer != nil {
		e.observer.ArchiveFellBack()
	}

	res := Result{FellBack: true, Files: make([]FileLink, 0, len(entries))}
	start := e.now()
	published := 0
	used := make(map[string]int, len(entries))

	for i, entry := range entries {
		if wait := start.Add(time.Duration(i) * e.stagger).Sub(e.now()); wait > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-e.after(wait):
			}
		}

		name := uniqueName(used, path.Base(entry.Name))
		link := FileLink{Name: name}
		url, err := e.publisher.Publish(ctx, path.Join("images", scope, name), bytes.NewReader(entry.Data), int64(len(entry.Data)), entry.ContentType)
		if err != nil {
			link.Error = err.Error()
			e.logger.Warn("publish failed",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
		} else {
			link.URL = url
			published++
		}
		res.Files = append(res.Files, link)
	}

	if published == 0 {
		return res, fmt.Errorf("%w: none of %d files published", ErrPublishFailed, len(entries))
	}
	return res, nil
}
