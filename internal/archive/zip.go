// Package archive bundles converted outputs into one archive and falls back
// to publishing each output on its own when that is not possible.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultFolder is the single folder entry holding every archived output.
const DefaultFolder = "converted_images"

// Entry is one file to archive or publish.
type Entry struct {
	Name        string
	ContentType string
	Data        []byte
}

// Builder produces an archive from entries.
type Builder interface {
	Build(ctx context.Context, entries []Entry) ([]byte, error)
	// Name returns the archive file name for a build started at now.
	Name(now time.Time) string
	ContentType() string
}

// Compile-time check that ZipBuilder implements Builder.
var _ Builder = (*ZipBuilder)(nil)

// ZipBuilder writes entries into a zip archive under one folder.
type ZipBuilder struct {
	folder string
}

// NewZipBuilder creates a ZipBuilder. An empty folder means DefaultFolder.
func NewZipBuilder(folder string) *ZipBuilder {
	if folder == "" {
		folder = DefaultFolder
	}
	return &ZipBuilder{folder: folder}
}

// Name returns <folder>_<YYYY-MM-DDTHH-MM-SS>.zip in UTC.
func (b *ZipBuilder) Name(now time.Time) string {
	stamp := strings.ReplaceAll(now.UTC().Format("2006-01-02T15:04:05"), ":", "-")
	return b.folder + "_" + stamp + ".zip"
}

// ContentType implements Builder.
func (b *ZipBuilder) ContentType() string {
	return "application/zip"
}

// Build implements Builder. Entries with the same name are kept by suffixing
// later ones with _1, _2, ...
func (b *ZipBuilder) Build(ctx context.Context, entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if _, err := zw.Create(b.folder + "/"); err != nil {
		return nil, fmt.Errorf("create folder entry: %w", err)
	}

	used := make(map[string]int, len(entries))
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		header := &zip.FileHeader{
			Name:     path.Join(b.folder, uniqueName(used, path.Base(e.Name))),
			Method:   zip.Deflate,
			Modified: time.Now(),
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("add %s to zip: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("add %s to zip: %w", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}

func uniqueName(used map[string]int, name string) string {
	n, seen := used[name]
	used[name] = n + 1
	if !seen {
		return name
	}
	ext := path.Ext(name)
	candidate := strings.TrimSuffix(name, ext) + "_" + strconv.Itoa(n) + ext
	return uniqueName(used, candidate)
}
