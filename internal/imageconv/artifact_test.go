package imageconv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateSize(t *testing.T) {
	pngURL := "data:image/png;base64," + strings.Repeat("A", 78)
	webpURL := "data:image/webp;base64," + strings.Repeat("A", 77)
	jpegURL := "data:image/jpeg;base64," + strings.Repeat("A", 77)

	assert.Equal(t, int64(80), EstimateSize(pngURL))
	assert.Equal(t, int64(70), EstimateSize(webpURL))
	assert.Equal(t, int64(75), EstimateSize(jpegURL))
	assert.Equal(t, int64(0), EstimateSize(""))
}

func TestArtifact_Size(t *testing.T) {
	exact, estimated := Artifact{Data: []byte("12345")}.Size()
	assert.Equal(t, int64(5), exact)
	assert.False(t, estimated)

	url := DataURL("image/png", []byte("hello world"))
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	approx, estimated := Artifact{DataURL: url}.Size()
	assert.True(t, estimated)
	assert.Equal(t, EstimateSize(url), approx)
}

func TestArtifact_Bytes(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}

	got, err := Artifact{Data: raw}.Bytes()
	assert.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = Artifact{DataURL: DataURL("image/png", raw)}.Bytes()
	assert.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = Artifact{DataURL: "data:image/png,plain"}.Bytes()
	assert.ErrorIs(t, err, ErrInvalidDataURL)

	_, err = Artifact{DataURL: "data:image/png;base64,@@@"}.Bytes()
	assert.ErrorIs(t, err, ErrInvalidDataURL)
}
