package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwellir/release-monitor/internal/types"
)

func TestStore_StateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	require.NoError(t, store.Bootstrap())

	loaded, err := store.LoadState()
	require.NoError(t, err)
	assert.Empty(t, loaded.Processed)

	loaded.Processed["obj#1"] = types.ProcessingRecord{ProcessedAt: "2026-01-01T00:00:00Z"}
	require.NoError(t, store.SaveState(loaded))

	reloaded, err := store.LoadState()
	require.NoError(t, err)
	require.Contains(t, reloaded.Processed, "obj#1")
	assert.Equal(t, "2026-01-01T00:00:00Z", reloaded.Processed["obj#1"].ProcessedAt)
}

func TestStore_SnapshotDemotesPreviousBeforeInstallingLatest(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	require.NoError(t, store.Bootstrap())

	first := types.NewSnapshot("bucket", "2026-01-01T00:00:00Z")
	first.Objects["a#1"] = types.ObjectMeta{Name: "a", Generation: "1"}
	require.NoError(t, store.SaveSnapshot(first))

	second := types.NewSnapshot("bucket", "2026-01-02T00:00:00Z")
	second.Objects["a#1"] = types.ObjectMeta{Name: "a", Generation: "1"}
	second.Objects["b#2"] = types.ObjectMeta{Name: "b", Generation: "2"}
	require.NoError(t, store.SaveSnapshot(second))

	latest, err := store.LoadLatestSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02T00:00:00Z", latest.CapturedAt)

	previousPath := filepath.Join(dir, "snapshot-previous.json")
	assert.FileExists(t, previousPath)
}

func TestStore_LoadLatestSnapshot_MissingFileReturnsZeroValue(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	snap, err := store.LoadLatestSnapshot()
	require.NoError(t, err)
	assert.Nil(t, snap.Objects)
}

func TestStore_LoadState_MissingFileReturnsEmptyState(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	state, err := store.LoadState()
	require.NoError(t, err)
	assert.NotNil(t, state.Processed)
	assert.Empty(t, state.Processed)
}
