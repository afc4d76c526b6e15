package spec

import (
	"math/bits"

	"github.com/google/hilbert"

	"github.com/tilepyramid/engine/internal/tileid"
)

// EncodeTileID maps a (level, row, col) tile id onto the single Hilbert
// curve index PMTiles uses to order and address tiles within one zoom
// level's worth of directory entries. id.Level must be >= 0 — PMTiles has
// no negative-zoom concept, so virtual zoom-out levels are rejected before
// export ever calls this (see Writer.WriteTile).
func EncodeTileID(id tileid.ID) uint64 {
	h, _ := hilbert.NewHilbert(1 << uint(id.Level))
	tileCode, _ := h.MapInverse(id.Col, id.Row)

	tilesBelow := (int64(1)<<uint(2*id.Level) - 1) / 3
	return uint64(tileCode) + uint64(tilesBelow)
}

// DecodeTileID is EncodeTileID's inverse, producing a tileid.ID for
// mediaID from a directory entry's tile code.
func DecodeTileID(mediaID string, tileCode uint64) tileid.ID {
	level := (bits.Len64(3*tileCode+1) - 1) / 2
	tilesBelow := (uint64(1)<<uint(2*level) - 1) / 3

	h, _ := hilbert.NewHilbert(1 << uint(level))
	col, row, _ := h.Map(int(tileCode - tilesBelow))

	return tileid.ID{MediaID: mediaID, Level: level, Row: row, Col: col}
}
