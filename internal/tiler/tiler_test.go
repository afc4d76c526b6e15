package tiler_test

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tiler"
	"github.com/tilepyramid/engine/internal/tilestore"
)

// solidPPM builds a binary P6 PPM of the given size, every pixel the same
// color, as bytes.Reader input for rasterimg.NewPPMRaster.
func solidPPM(w, h int, r, g, b byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "P6\n%d %d\n255\n", w, h)
	row := bytes.Repeat([]byte{r, g, b}, w)
	for i := 0; i < h; i++ {
		buf.Write(row)
	}
	return buf.Bytes()
}

func TestRunProducesExpectedPyramidLayout(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	raster, err := rasterimg.NewPPMRaster(bytes.NewReader(solidPPM(512, 512, 10, 20, 30)))
	require.NoError(t, err)

	tl := tiler.New(store, "m", tiler.Options{TileSize: 256, FileExt: "jpg"})
	require.NoError(t, tl.Run(raster))

	meta, err := store.ReadMetadata("m")
	require.NoError(t, err)
	assert.Equal(t, 512, meta.Width())
	assert.Equal(t, 512, meta.Height())
	assert.Equal(t, 256, meta.TileSize())
	assert.Equal(t, 1, meta.MaxLevel())
	assert.True(t, meta.Tiled())

	for _, p := range []string{
		store.TilePath(idOf("m", 0, 0, 0), "jpg"),
		store.TilePath(idOf("m", 1, 0, 0), "jpg"),
		store.TilePath(idOf("m", 1, 0, 1), "jpg"),
		store.TilePath(idOf("m", 1, 1, 0), "jpg"),
		store.TilePath(idOf("m", 1, 1, 1), "jpg"),
	} {
		assertFileExists(t, p)
	}

	assert.Equal(t, float32(1), tl.Progress())
}

func TestRunPadsNonMultipleDimensionsWithBlack(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	raster, err := rasterimg.NewPPMRaster(bytes.NewReader(solidPPM(300, 200, 5, 5, 5)))
	require.NoError(t, err)

	tl := tiler.New(store, "odd", tiler.Options{TileSize: 256, FileExt: "png"})
	require.NoError(t, tl.Run(raster))

	meta, err := store.ReadMetadata("odd")
	require.NoError(t, err)
	assert.Equal(t, 1, meta.MaxLevel(), "longest side 300 exceeds one 256 tile, so ceil(log2(300/256)) == 1")

	base, err := store.LoadTile(idOf("odd", 1, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 256, base.Width(), "edge tile is padded to the full tile size")
}

func TestRunIsIdempotentOnRetry(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	src := solidPPM(512, 256, 1, 2, 3)

	r1, err := rasterimg.NewPPMRaster(bytes.NewReader(src))
	require.NoError(t, err)
	require.NoError(t, tiler.New(store, "m", tiler.Options{TileSize: 256, FileExt: "jpg"}).Run(r1))

	tile1, err := store.LoadTile(idOf("m", 0, 0, 0))
	require.NoError(t, err)

	r2, err := rasterimg.NewPPMRaster(bytes.NewReader(src))
	require.NoError(t, err)
	require.NoError(t, tiler.New(store, "m", tiler.Options{TileSize: 256, FileExt: "jpg"}).Run(r2))

	tile2, err := store.LoadTile(idOf("m", 0, 0, 0))
	require.NoError(t, err)

	assert.Equal(t, tile1.Width(), tile2.Width())
	assert.Equal(t, tile1.Height(), tile2.Height())
}

func TestCancelRemovesPartialOutput(t *testing.T) {
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)

	raster, err := rasterimg.NewPPMRaster(bytes.NewReader(solidPPM(1024, 1024, 9, 9, 9)))
	require.NoError(t, err)

	tl := tiler.New(store, "m", tiler.Options{TileSize: 256, FileExt: "jpg"})
	tl.Cancel()

	err = tl.Run(raster)
	assert.ErrorIs(t, err, tiler.ErrCancelled)
	assert.False(t, store.IsTiled("m"))
}

func idOf(mediaID string, level, row, col int) tileid.ID {
	return tileid.ID{MediaID: mediaID, Level: level, Row: row, Col: col}
}

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.NoError(t, err, "expected %s to exist", path)
}
