// Package storage provides temporary and published file storage.
// It defines the Storage interface (port) and implementations for local
// disk, S3 and MinIO.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary files and published artifacts.
// Uploaded sources live in temporary files while a session uses them;
// converted outputs are published and addressed by URL.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish stores a converted artifact under key and returns its URL.
	Publish(ctx context.Context, key string, data io.Reader, size int64, contentType string) (url string, err error)
}

// Compile-time checks that every backend implements Storage.
var (
	_ Storage = (*LocalStorage)(nil)
	_ Storage = (*S3Storage)(nil)
	_ Storage = (*MinIOStorage)(nil)
)
