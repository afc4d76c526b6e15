package provider

import (
	"github.com/tilepyramid/engine/internal/cache"
	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tilestore"
)

// StaticLoader loads tiles from a tilestore.Store. Missing files or
// not-yet-tiled media both resolve to "not available" (nil, nil), which
// the Provider worker turns into a tombstone.
type StaticLoader struct {
	Store *tilestore.Store
}

func (l StaticLoader) Load(id tileid.ID) (*rasterimg.Tile, error) {
	if !l.Store.IsTiled(id.MediaID) {
		return nil, nil
	}
	tile, err := l.Store.LoadTile(id)
	if err != nil {
		return nil, nil
	}
	return &tile, nil
}

// NewStatic creates a Provider that serves tiles out of store.
func NewStatic(c *cache.Cache, store *tilestore.Store) *Provider {
	return New(c, StaticLoader{Store: store})
}
