package mbarchive_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilepyramid/engine/internal/mbarchive"
	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tilestore"
)

func seedTiledMedia(t *testing.T, store *tilestore.Store, mediaID string) {
	t.Helper()
	const tileSize, maxLevel = 4, 1
	for level := 0; level <= maxLevel; level++ {
		span := 1 << uint(level)
		for row := 0; row < span; row++ {
			for col := 0; col < span; col++ {
				id := tileid.ID{MediaID: mediaID, Level: level, Row: row, Col: col}
				require.NoError(t, store.SaveTile(id, rasterimg.FillBlack(tileSize, tileSize), "png"))
			}
		}
	}
	dim := tileSize << uint(maxLevel)
	require.NoError(t, store.WriteMetadataFields(mediaID, "png", tileSize, maxLevel, dim, dim, true))
}

func TestExportImportRoundTrip(t *testing.T) {
	srcStore, err := tilestore.New(t.TempDir())
	require.NoError(t, err)
	seedTiledMedia(t, srcStore, "photo.jpg")

	archivePath := filepath.Join(t.TempDir(), "photo.mbtiles")
	require.NoError(t, mbarchive.Export(srcStore, "photo.jpg", archivePath))

	dstStore, err := tilestore.New(t.TempDir())
	require.NoError(t, err)
	mediaID, err := mbarchive.Import(dstStore, archivePath)
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", mediaID)
	assert.True(t, dstStore.IsTiled(mediaID))

	for level := 0; level <= 1; level++ {
		span := 1 << uint(level)
		for row := 0; row < span; row++ {
			for col := 0; col < span; col++ {
				id := tileid.ID{MediaID: mediaID, Level: level, Row: row, Col: col}
				tile, err := dstStore.LoadTile(id)
				require.NoError(t, err)
				assert.Equal(t, 4, tile.Width())
			}
		}
	}
}

func TestExportRejectsUntiledMedia(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	err = mbarchive.Export(store, "never-tiled", filepath.Join(t.TempDir(), "out.mbtiles"))
	assert.Error(t, err)
}
