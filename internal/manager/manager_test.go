package manager_test

import (
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilepyramid/engine/internal/manager"
	"github.com/tilepyramid/engine/internal/provider"
	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tilestore"
)

func newTestManager(t *testing.T) (*manager.Manager, *tilestore.Store) {
	t.Helper()
	store, err := tilestore.New(t.TempDir())
	require.NoError(t, err)
	m := manager.New(store, nil, manager.Config{})
	return m, store
}

// quadrantTile paints the top-left quadrant of a size x size tile white
// and everything else black, so cropping out a specific quadrant during
// synthesis is independently verifiable by sampling a pixel.
func quadrantTile(size int) rasterimg.Tile {
	tile := rasterimg.New(size, size)
	img := tile.Image().(*image.RGBA)
	half := size / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x < half && y < half {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return tile
}

func seedTiledMedia(t *testing.T, store *tilestore.Store, mediaID string, tileSize, maxLevel, width, height int, overview rasterimg.Tile) {
	t.Helper()
	id := tileid.ID{MediaID: mediaID, Level: 0, Row: 0, Col: 0}
	require.NoError(t, store.SaveTile(id, overview, "png"))
	require.NoError(t, store.WriteMetadataFields(mediaID, "png", tileSize, maxLevel, width, height, true))
}

func waitForPeek(t *testing.T, m *manager.Manager, id tileid.ID, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := m.Peek(id); err == nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
	_, err := m.Peek(id)
	require.NoError(t, err, "tile never became loaded within %s", timeout)
}

func TestPeekNotTiledForUnknownMedia(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Peek(tileid.ID{MediaID: "never-seen", Level: 0, Row: 0, Col: 0})
	assert.ErrorIs(t, err, manager.ErrNotTiled)
}

func TestPeekNotLoadedBeforeRequest(t *testing.T) {
	m, store := newTestManager(t)
	seedTiledMedia(t, store, "m1", 4, 0, 4, 4, rasterimg.FillBlack(4, 4))

	_, err := m.Peek(tileid.ID{MediaID: "m1", Level: 0, Row: 0, Col: 0})
	assert.ErrorIs(t, err, manager.ErrNotLoaded)
}

func TestFetchReturnsLoadedAfterRequest(t *testing.T) {
	m, store := newTestManager(t)
	seedTiledMedia(t, store, "m1", 4, 0, 4, 4, rasterimg.FillBlack(4, 4))

	id := tileid.ID{MediaID: "m1", Level: 0, Row: 0, Col: 0}
	m.Request(id)
	waitForPeek(t, m, id, time.Second)

	tile, prov := m.Fetch(id)
	assert.Equal(t, manager.Loaded, prov)
	assert.True(t, tile.Valid())
	assert.Equal(t, 4, tile.Width())
}

func TestFetchSynthesizesFromCachedOverview(t *testing.T) {
	m, store := newTestManager(t)
	overview := quadrantTile(8)
	seedTiledMedia(t, store, "m1", 4, 1, 8, 8, overview)

	overviewID := tileid.ID{MediaID: "m1", Level: 0, Row: 0, Col: 0}
	m.Request(overviewID)
	waitForPeek(t, m, overviewID, time.Second)

	// top-left quadrant of the overview is white; the level-1 tile at
	// (row 0, col 0) is exactly that quadrant cropped and resized back to
	// tile size, so it must come back solid white. (row 0, col 1) crops
	// the top-right quadrant, which is black.
	whiteChild := tileid.ID{MediaID: "m1", Level: 1, Row: 0, Col: 0}
	tile, prov := m.Fetch(whiteChild)
	require.Equal(t, manager.Synthesized, prov)
	require.Equal(t, 4, tile.Width())
	r, g, b, _ := tile.Image().At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0xffff), g)
	assert.Equal(t, uint32(0xffff), b)

	blackChild := tileid.ID{MediaID: "m1", Level: 1, Row: 0, Col: 1}
	tile, prov = m.Fetch(blackChild)
	require.Equal(t, manager.Synthesized, prov)
	r, g, b, _ = tile.Image().At(1, 1).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0), g)
	assert.Equal(t, uint32(0), b)
}

func TestFetchPlaceholderWhenNoAncestorCachedYet(t *testing.T) {
	m, store := newTestManager(t)
	seedTiledMedia(t, store, "m1", 4, 1, 8, 8, quadrantTile(8))

	child := tileid.ID{MediaID: "m1", Level: 1, Row: 0, Col: 0}
	tile, prov := m.Fetch(child)
	assert.Equal(t, manager.Placeholder, prov)
	assert.Equal(t, 4, tile.Width())

	// Fetch's side effect is to enqueue the overview so a subsequent call
	// resolves from cache instead of placeholder.
	overview := tileid.ID{MediaID: "m1", Level: 0, Row: 0, Col: 0}
	waitForPeek(t, m, overview, time.Second)
}

func TestCutTileNegativeLevelDownscalesOverview(t *testing.T) {
	m, store := newTestManager(t)
	seedTiledMedia(t, store, "m1", 8, 0, 8, 8, rasterimg.FillBlack(8, 8))

	overview := tileid.ID{MediaID: "m1", Level: 0, Row: 0, Col: 0}
	m.Request(overview)
	waitForPeek(t, m, overview, time.Second)

	tile, prov := m.Fetch(tileid.ID{MediaID: "m1", Level: -1, Row: 0, Col: 0})
	assert.Equal(t, manager.Synthesized, prov)
	assert.Equal(t, 4, tile.Width())
	assert.Equal(t, 4, tile.Height())
}

func TestFetchNeverErrorsOnTiledMedia(t *testing.T) {
	m, store := newTestManager(t)
	seedTiledMedia(t, store, "m1", 4, 1, 8, 8, quadrantTile(8))

	// level >= 0 on a tiled media must always resolve to a tile and a
	// provenance, never an error, whether or not anything is cached yet.
	validProvenance := map[manager.Provenance]bool{
		manager.Loaded:      true,
		manager.Synthesized: true,
		manager.Placeholder: true,
	}
	for _, id := range []tileid.ID{
		{MediaID: "m1", Level: 0, Row: 0, Col: 0},
		{MediaID: "m1", Level: 1, Row: 1, Col: 1},
	} {
		tile, prov := m.Fetch(id)
		assert.True(t, tile.Valid())
		assert.True(t, validProvenance[prov], "unexpected provenance %v", prov)
	}
}

func TestDynamicMediaIsTiledAndFetchableWithoutConversion(t *testing.T) {
	m, _ := newTestManager(t)
	m.RegisterGenerator("dynamic:checkerboard", provider.Checkerboard{Size: 8})

	assert.True(t, m.IsTiled("dynamic:checkerboard"))
	assert.False(t, m.IsTiled("static-media-never-referenced"))

	id := tileid.ID{MediaID: "dynamic:checkerboard", Level: 0, Row: 0, Col: 0}
	m.Request(id)
	waitForPeek(t, m, id, time.Second)

	tile, prov := m.Fetch(id)
	assert.Equal(t, manager.Loaded, prov)
	assert.Equal(t, 8, tile.Width())
}

func TestPurgeDropsCacheEntriesForMedia(t *testing.T) {
	m, store := newTestManager(t)
	seedTiledMedia(t, store, "m1", 4, 0, 4, 4, rasterimg.FillBlack(4, 4))

	id := tileid.ID{MediaID: "m1", Level: 0, Row: 0, Col: 0}
	m.Request(id)
	waitForPeek(t, m, id, time.Second)

	m.Purge("m1")

	_, err := m.Peek(id)
	assert.ErrorIs(t, err, manager.ErrNotLoaded, "purge must evict the cached tile, leaving the media still tiled but unloaded")
}

func TestGetMetadataForStaticAndDynamicMedia(t *testing.T) {
	m, store := newTestManager(t)
	seedTiledMedia(t, store, "m1", 4, 1, 8, 8, rasterimg.FillBlack(8, 8))
	m.RegisterGenerator("dynamic:checkerboard", provider.Checkerboard{Size: 16})

	v, err := m.GetMetadata("m1", "tilesize")
	require.NoError(t, err)
	assert.Equal(t, "4", v)

	v, err = m.GetMetadata("dynamic:checkerboard", "tilesize")
	require.NoError(t, err)
	assert.Equal(t, "16", v)

	_, err = m.GetMetadata("dynamic:unregistered", "tilesize")
	assert.Error(t, err)
}

func TestConcurrentDuplicateRequestsResolveToSameCachedValue(t *testing.T) {
	m, _ := newTestManager(t)
	m.RegisterGenerator("dynamic:checkerboard", provider.Checkerboard{Size: 4})
	id := tileid.ID{MediaID: "dynamic:checkerboard", Level: 1, Row: 0, Col: 0}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Request(id)
		}()
	}
	wg.Wait()

	waitForPeek(t, m, id, time.Second)
	tile, err := m.Peek(id)
	require.NoError(t, err)
	assert.Equal(t, 4, tile.Width())
}
