package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	files := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[f.Name] = string(content)
	}
	return files
}

func TestZipBuilder_Build(t *testing.T) {
	b := NewZipBuilder("")
	data, err := b.Build(context.Background(), []Entry{
		{Name: "a.png", Data: []byte("first")},
		{Name: "b.jpg", Data: []byte("second")},
		{Name: "a.png", Data: []byte("third")},
		{Name: "../sneaky.webp", Data: []byte("fourth")},
	})
	require.NoError(t, err)

	files := readZip(t, data)
	assert.Equal(t, map[string]string{
		"converted_images/":            "",
		"converted_images/a.png":       "first",
		"converted_images/b.jpg":       "second",
		"converted_images/a_1.png":     "third",
		"converted_images/sneaky.webp": "fourth",
	}, files)
}

func TestZipBuilder_BuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewZipBuilder("").Build(ctx, []Entry{{Name: "a.png"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestZipBuilder_Name(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "converted_images_2024-01-02T03-04-05.zip", NewZipBuilder("").Name(now))
	assert.Equal(t, "exports_2024-01-02T03-04-05.zip", NewZipBuilder("exports").Name(now))
	assert.Equal(t, "application/zip", NewZipBuilder("").ContentType())
}
