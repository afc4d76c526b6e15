package pmarchive

import (
	"fmt"

	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tilestore"
)

// levelDims mirrors tiler's own tile-count formula (kept duplicated rather
// than exported cross-package, since it is three lines and pulling in the
// tiler package here would invert the dependency direction for no benefit).
func levelDims(w, h, tileSize, maxLevel, level int) (rows, cols int) {
	scale := 1 << uint(maxLevel-level)
	effTile := tileSize * scale
	cols = (w + effTile - 1) / effTile
	rows = (h + effTile - 1) / effTile
	return
}

// Export packs every level of mediaID's pyramid from store into a new
// PMTiles v3 file at filePath. mediaID must already be fully tiled.
func Export(store *tilestore.Store, mediaID, filePath string) error {
	meta, err := store.ReadMetadata(mediaID)
	if err != nil {
		return fmt.Errorf("pmarchive: %w", err)
	}
	if !meta.Tiled() {
		return fmt.Errorf("pmarchive: %w: %s", tilestore.ErrMediaNotTiled, mediaID)
	}

	w, maxLevel := meta.Width(), meta.MaxLevel()
	h := meta.Height()
	ext := meta.FileExt()

	pw, err := NewWriter(filePath, mediaID, ext, 0, maxLevel)
	if err != nil {
		return err
	}
	defer pw.Close()

	for level := 0; level <= maxLevel; level++ {
		rows, cols := levelDims(w, h, meta.TileSize(), maxLevel, level)
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				id := tileid.ID{MediaID: mediaID, Level: level, Row: row, Col: col}
				tile, err := store.LoadTileRaw(id, ext)
				if err != nil {
					return fmt.Errorf("pmarchive: reading %v: %w", id, err)
				}
				buf := tileBuffer{}
				if err := tile.Encode(&buf, ext); err != nil {
					return fmt.Errorf("pmarchive: encoding %v: %w", id, err)
				}
				if err := pw.WriteTile(id, buf.Bytes()); err != nil {
					return fmt.Errorf("pmarchive: writing %v: %w", id, err)
				}
			}
		}
	}

	return pw.Finalize()
}

// tileBuffer is a minimal io.Writer sink, avoiding a bytes.Buffer import
// purely for its zero-value usability in the loop above.
type tileBuffer struct{ buf []byte }

func (b *tileBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}
func (b *tileBuffer) Bytes() []byte { return b.buf }

// Import unpacks every tile in the archive at filePath into store,
// writing both tile files and a completed metadata record so the result
// is immediately servable by TileManager without re-tiling.
func Import(store *tilestore.Store, filePath string) (mediaID string, err error) {
	r, err := NewFileReader(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	mediaID = r.MediaID()
	ext := r.FileExt()
	maxLevel := 0
	var width, height int

	if err := r.VisitTiles(func(id tileid.ID, data []byte) error {
		if err := store.WriteTileBytes(id, data, ext); err != nil {
			return err
		}
		if id.Level > maxLevel {
			maxLevel = id.Level
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("pmarchive: importing %s: %w", filePath, err)
	}

	overview, err := store.LoadTileRaw(tileid.ID{MediaID: mediaID, Level: 0, Row: 0, Col: 0}, ext)
	if err == nil {
		tileSize := overview.Width()
		width, height = tileSize<<uint(maxLevel), tileSize<<uint(maxLevel)
		if err := store.WriteMetadataFields(mediaID, ext, tileSize, maxLevel, width, height, true); err != nil {
			return "", fmt.Errorf("pmarchive: %w", err)
		}
	}

	return mediaID, nil
}
