package xyzimport_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tilestore"
	"github.com/tilepyramid/engine/internal/xyzimport"
)

// writeForeignTile writes one PNG-encoded tile under root following the
// {z}/{x}/{y}.png layout typical third-party tiling tools produce.
func writeForeignTile(t *testing.T, root string, z, x, y, size int) {
	t.Helper()
	dir := filepath.Join(root, strconv.Itoa(z), strconv.Itoa(x))
	require.NoError(t, os.MkdirAll(dir, 0o755))

	var buf bytes.Buffer
	require.NoError(t, rasterimg.FillBlack(size, size).Encode(&buf, "png"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, strconv.Itoa(y)+".png"), buf.Bytes(), 0o644))
}

func TestImportPopulatesStoreAndMetadata(t *testing.T) {
	root := t.TempDir()
	writeForeignTile(t, root, 0, 0, 0, 4)
	writeForeignTile(t, root, 1, 0, 0, 4)
	writeForeignTile(t, root, 1, 1, 0, 4)
	writeForeignTile(t, root, 1, 0, 1, 4)
	writeForeignTile(t, root, 1, 1, 1, 4)

	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	pattern := filepath.Join(root, "{z}", "{x}", "{y}.png")
	require.NoError(t, xyzimport.Import(store, "imported-media", pattern, "png"))

	assert.True(t, store.IsTiled("imported-media"))

	for _, id := range []tileid.ID{
		{MediaID: "imported-media", Level: 0, Row: 0, Col: 0},
		{MediaID: "imported-media", Level: 1, Row: 0, Col: 0},
		{MediaID: "imported-media", Level: 1, Row: 1, Col: 1},
	} {
		tile, err := store.LoadTile(id)
		require.NoError(t, err)
		assert.Equal(t, 4, tile.Width())
	}

	meta, err := store.ReadMetadata("imported-media")
	require.NoError(t, err)
	assert.Equal(t, 1, meta.MaxLevel())
	assert.Equal(t, 4, meta.TileSize())
}

func TestImportRejectsPatternMissingPlaceholders(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	err = xyzimport.Import(store, "m", filepath.Join(t.TempDir(), "{z}", "{x}.png"), "png")
	assert.ErrorIs(t, err, xyzimport.ErrInvalidPattern)
}
