package provider

import (
	"github.com/tilepyramid/engine/internal/cache"
	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
)

// Generator is a procedural tile source. Generate must be a deterministic,
// pure function of (level, row, col): same inputs always produce the same
// tile.
type Generator interface {
	TileSize() int
	FileExt() string
	AspectRatio() float64
	// MaxLevel returns the generator's level ceiling, if any.
	MaxLevel() (level int, ok bool)
	Generate(level, row, col int) (rasterimg.Tile, error)
}

// DynamicLoader wraps a Generator behind the Loader interface, applying
// the coordinate validation the spec requires before ever invoking
// user-supplied code: negative row/col, or row/col beyond 2^level-1,
// tombstone instead of calling Generate.
type DynamicLoader struct {
	Generator Generator
}

func (l DynamicLoader) Load(id tileid.ID) (*rasterimg.Tile, error) {
	if !validCoords(id) {
		return nil, nil
	}
	if max, ok := l.Generator.MaxLevel(); ok && id.Level > max {
		return nil, nil
	}
	tile, err := l.Generator.Generate(id.Level, id.Row, id.Col)
	if err != nil {
		return nil, nil
	}
	return &tile, nil
}

func validCoords(id tileid.ID) bool {
	if id.Row < 0 || id.Col < 0 {
		return false
	}
	if id.Level < 0 {
		// negative levels address a downscaled overview, not a grid cell;
		// only row=col=0 is meaningful there.
		return id.Row == 0 && id.Col == 0
	}
	limit := 1 << uint(id.Level)
	return id.Row <= limit-1 && id.Col <= limit-1
}

// NewDynamic creates a Provider that serves tiles from a procedural
// Generator.
func NewDynamic(c *cache.Cache, gen Generator) *Provider {
	return New(c, DynamicLoader{Generator: gen})
}
