package tilestore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tilestore"
)

func TestTilePathLayout(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	id := tileid.ID{MediaID: "photo.jpg", Level: 1, Row: 2, Col: 3}
	path := store.TilePath(id, "jpg")

	assert.Equal(t, "01", filepath.Base(filepath.Dir(path)))
	assert.Equal(t, "01_000002_000003.jpg", filepath.Base(path))
}

func TestIsTiledFalseBeforeWrite(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)
	assert.False(t, store.IsTiled("photo.jpg"))
}

func TestSaveLoadTileRoundTrip(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	id := tileid.ID{MediaID: "m", Level: 0, Row: 0, Col: 0}
	tile := rasterimg.FillBlack(4, 4)
	require.NoError(t, store.SaveTile(id, tile, "png"))
	require.NoError(t, store.WriteMetadataFields("m", "png", 4, 0, 4, 4, true))

	assert.True(t, store.IsTiled("m"))

	loaded, err := store.LoadTile(id)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Width())
	assert.Equal(t, 4, loaded.Height())
}

func TestReadMetadataNotTiled(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	_, err = store.ReadMetadata("nonexistent")
	assert.ErrorIs(t, err, tilestore.ErrMediaNotTiled)
}

func TestWriteMetadataPreservesUnknownKeys(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.WriteMetadata("m", map[string]tilestore.MetaValue{"custom": {Raw: "kept", Type: "str"}}))
	require.NoError(t, store.WriteMetadataFields("m", "jpg", 256, 2, 512, 512, true))

	meta, err := store.ReadMetadata("m")
	require.NoError(t, err)
	v, ok := meta.Fields["custom"]
	assert.True(t, ok)
	assert.Equal(t, "kept", v.Raw)
}

func TestDeleteMediaRemovesDirectory(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.WriteMetadataFields("m", "jpg", 256, 0, 256, 256, true))
	require.NoError(t, store.DeleteMedia("m"))

	assert.False(t, store.IsTiled("m"))
}

func TestStatsCountsMediaAndFiles(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	id := tileid.ID{MediaID: "m", Level: 0, Row: 0, Col: 0}
	require.NoError(t, store.SaveTile(id, rasterimg.New(2, 2), "png"))
	require.NoError(t, store.WriteMetadataFields("m", "png", 2, 0, 2, 2, true))

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MediaCount)
	assert.GreaterOrEqual(t, stats.FileCount, 2) // tile + metadata
	assert.Greater(t, stats.Bytes, int64(0))
}
