package mbarchive

import (
	"bytes"
	"fmt"

	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tilestore"
)

func levelDims(w, h, tileSize, maxLevel, level int) (rows, cols int) {
	scale := 1 << uint(maxLevel-level)
	effTile := tileSize * scale
	cols = (w + effTile - 1) / effTile
	rows = (h + effTile - 1) / effTile
	return
}

// Export packs every level of mediaID's pyramid from store into a new
// .mbtiles file at filePath. mediaID must already be fully tiled.
func Export(store *tilestore.Store, mediaID, filePath string) error {
	meta, err := store.ReadMetadata(mediaID)
	if err != nil {
		return fmt.Errorf("mbarchive: %w", err)
	}
	if !meta.Tiled() {
		return fmt.Errorf("mbarchive: %w: %s", tilestore.ErrMediaNotTiled, mediaID)
	}

	w, h, maxLevel, ext := meta.Width(), meta.Height(), meta.MaxLevel(), meta.FileExt()
	format := ext
	if format == "jpg" {
		format = "jpeg"
	}

	mw, err := NewWriter(filePath, mediaID, WithMetadata(map[string]string{
		"format":  format,
		"minzoom": "0",
		"maxzoom": fmt.Sprint(maxLevel),
	}))
	if err != nil {
		return err
	}
	defer mw.Close()

	for level := 0; level <= maxLevel; level++ {
		rows, cols := levelDims(w, h, meta.TileSize(), maxLevel, level)
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				id := tileid.ID{MediaID: mediaID, Level: level, Row: row, Col: col}
				tile, err := store.LoadTileRaw(id, ext)
				if err != nil {
					return fmt.Errorf("mbarchive: reading %v: %w", id, err)
				}
				var buf bytes.Buffer
				if err := tile.Encode(&buf, ext); err != nil {
					return fmt.Errorf("mbarchive: encoding %v: %w", id, err)
				}
				if err := mw.WriteTile(id, buf.Bytes()); err != nil {
					return fmt.Errorf("mbarchive: writing %v: %w", id, err)
				}
			}
		}
	}

	return mw.Finalize()
}

// Import unpacks every tile in the .mbtiles file at filePath into store.
func Import(store *tilestore.Store, filePath string) (mediaID string, err error) {
	r, err := NewReader(filePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	mediaID, err = r.MediaID()
	if err != nil {
		return "", fmt.Errorf("mbarchive: %w", err)
	}

	ext, err := r.format()
	if err != nil {
		return "", fmt.Errorf("mbarchive: %w", err)
	}
	maxLevel := 0
	if err := r.VisitTiles(func(id tileid.ID, data []byte) error {
		if err := store.WriteTileBytes(id, data, ext); err != nil {
			return err
		}
		if id.Level > maxLevel {
			maxLevel = id.Level
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("mbarchive: importing %s: %w", filePath, err)
	}

	overview, err := store.LoadTileRaw(tileid.ID{MediaID: mediaID, Level: 0, Row: 0, Col: 0}, ext)
	if err == nil {
		tileSize := overview.Width()
		dim := tileSize << uint(maxLevel)
		if err := store.WriteMetadataFields(mediaID, ext, tileSize, maxLevel, dim, dim, true); err != nil {
			return "", fmt.Errorf("mbarchive: %w", err)
		}
	}

	return mediaID, nil
}
