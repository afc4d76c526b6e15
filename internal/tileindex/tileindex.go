// Package tileindex defines small tileset interfaces (Writer, Reader,
// Visitor and their Location counterparts), the Location type, and Item, a
// fixed-width binary location-index record with WriteAll/ReadAll. Within
// this module only pmarchive's Reader uses it, for Location; no exporter
// writes an Item index.
//
// Grounded on the teacher's tile/index/tileindex packages, which defined the
// same shapes twice under two names (tile.ID/tile.Location/tile.Writer/...
// and index.Item, duplicating tileindex.IndexItem byte-for-byte) — this
// package keeps one copy, retargeted from the teacher's generic XYZ tile.ID
// to this repo's tileid.ID (Level maps to Z, Row to Y, Col to X).
package tileindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"iter"

	"github.com/tilepyramid/engine/internal/tileid"
)

// Writer writes a single media's tiles to a packed tileset.
type Writer interface {
	// WriteTile writes one tile's encoded bytes.
	WriteTile(id tileid.ID, tileData []byte) error
	// Finalize completes the writing process: flushes buffers, writes
	// header and indices. It must be called before closing the Writer.
	Finalize() error
}

// Reader reads tiles back out of a packed tileset.
type Reader interface {
	// ReadTile returns a tile's encoded bytes, or an empty slice with no
	// error if the tile does not exist.
	ReadTile(id tileid.ID) ([]byte, error)
}

// Visitor enumerates every tile in a tileset. Order, and upfront CPU/memory
// consumption, are implementation-defined.
type Visitor interface {
	VisitTiles(visitor func(tileid.ID, []byte) error) error
}

// Location is the absolute byte range of one tile's data inside a tileset
// file.
type Location struct {
	Offset uint64
	Length uint64
}

type LocationReader interface {
	ReadLocation(id tileid.ID) (Location, error)
}

type LocationVisitor interface {
	VisitLocations(visitor func(tileid.ID, Location) error) error
}

var errVisitCancelled = errors.New("tileindex: visit cancelled")

// IterTiles adapts a Visitor into a range-over-func iterator. Panics if the
// underlying visit fails for a reason other than early stop.
func IterTiles(r Visitor) iter.Seq2[tileid.ID, []byte] {
	return func(yield func(tileid.ID, []byte) bool) {
		err := r.VisitTiles(func(id tileid.ID, data []byte) error {
			if !yield(id, data) {
				return errVisitCancelled
			}
			return nil
		})
		if err != nil && !errors.Is(err, errVisitCancelled) {
			panic(err)
		}
	}
}

// IterLocations adapts a LocationVisitor into a range-over-func iterator.
func IterLocations(r LocationVisitor) iter.Seq2[tileid.ID, Location] {
	return func(yield func(tileid.ID, Location) bool) {
		err := r.VisitLocations(func(id tileid.ID, loc Location) error {
			if !yield(id, loc) {
				return errVisitCancelled
			}
			return nil
		})
		if err != nil && !errors.Is(err, errVisitCancelled) {
			panic(err)
		}
	}
}

// Item is one fixed-width record in the spill-to-disk location index:
// (Level, Row, Col) mapped to where the tile's bytes live in the tileset
// being built. Designed to be easily portable — plain fixed-width fields,
// no variable-length encoding.
type Item struct {
	Level  int32
	Row    int32
	Col    int32
	Length uint32
	Offset uint64
}

// TileID reconstructs the full tile id for mediaID, which the Item itself
// does not carry (a spill index is always scoped to one media's export).
func (i Item) TileID(mediaID string) tileid.ID {
	return tileid.ID{MediaID: mediaID, Level: int(i.Level), Row: int(i.Row), Col: int(i.Col)}
}

func (i Item) Location() Location {
	return Location{Offset: i.Offset, Length: uint64(i.Length)}
}

// ItemFor builds an Item from a tile id and its location; mediaID is
// dropped since the index is always scoped to one media.
func ItemFor(id tileid.ID, loc Location) Item {
	return Item{Level: int32(id.Level), Row: int32(id.Row), Col: int32(id.Col), Length: uint32(loc.Length), Offset: loc.Offset}
}

// WriteAll appends the fixed-width encoding of items to w.
func WriteAll(items []Item, w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, items)
}

// ReadAll decodes a buffer of fixed-width items previously written by
// WriteAll.
func ReadAll(data []byte) ([]Item, error) {
	count := len(data) / binary.Size(Item{})
	items := make([]Item, count)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, items); err != nil {
		return nil, err
	}
	return items, nil
}
