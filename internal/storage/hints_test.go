package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starcall/pkg/interfaces"
)

func newTestStore(t *testing.T) *HintStore {
	t.Helper()
	store, err := NewHintStore(Config{Path: filepath.Join(t.TempDir(), "hints.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewHintStoreRequiresPath(t *testing.T) {
	_, err := NewHintStore(Config{})
	assert.ErrorIs(t, err, ErrMissingPath)
}

func TestSetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, interfaces.HintLastTimestamp)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, interfaces.HintLastTimestamp, "2026-03-01T10:00:00Z"))

	value, ok, err := store.Get(ctx, interfaces.HintLastTimestamp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2026-03-01T10:00:00Z", value)
}

func TestSetOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, interfaces.HintPendingDeepLink, "rating"))
	require.NoError(t, store.Set(ctx, interfaces.HintPendingDeepLink, "active_chat"))

	value, ok, err := store.Get(ctx, interfaces.HintPendingDeepLink)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "active_chat", value)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, interfaces.HintLastMissedCall, `{"astrologerId":"p1"}`))
	require.NoError(t, store.Delete(ctx, interfaces.HintLastMissedCall))
	require.NoError(t, store.Delete(ctx, interfaces.HintLastMissedCall))

	_, ok, err := store.Get(ctx, interfaces.HintLastMissedCall)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.db")
	ctx := context.Background()

	store, err := NewHintStore(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, interfaces.HintLastTimestamp, "persisted"))
	require.NoError(t, store.Close())

	reopened, err := NewHintStore(Config{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Get(ctx, interfaces.HintLastTimestamp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "persisted", value)
}

func TestOperationsAfterClose(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())

	_, _, err := store.Get(context.Background(), interfaces.HintLastTimestamp)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Set(context.Background(), "k", "v"), ErrStoreClosed)

	// Closing twice is safe.
	assert.NoError(t, store.Close())
}

func TestHealthCheck(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))
}
