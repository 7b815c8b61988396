package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediaconv/internal/dimension"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(dimension.Size{})
	ctx := context.Background()

	created, err := store.Create(ctx, "sess-1")
	require.NoError(t, err)

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Same(t, created, got)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	deleted, err := store.Delete(ctx, "sess-1")
	require.NoError(t, err)
	assert.Same(t, created, deleted)

	_, err = store.Delete(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStore_Expired(t *testing.T) {
	store := NewMemoryStore(dimension.Size{})
	ctx := context.Background()

	idle, _ := store.Create(ctx, "idle")
	busy, _ := store.Create(ctx, "busy")
	_, _ = store.Create(ctx, "fresh")

	release, err := busy.TryAcquire(PipelineVideo)
	require.NoError(t, err)
	defer release()

	past := time.Now().Add(-2 * time.Hour)
	idle.UpdatedAt = past
	busy.UpdatedAt = past

	expired := store.Expired(time.Hour, time.Now())
	require.Len(t, expired, 1)
	assert.Equal(t, "idle", expired[0].ID)

	_, err = store.Get(ctx, "busy")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}
