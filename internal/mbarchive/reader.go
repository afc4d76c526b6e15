package mbarchive

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tilepyramid/engine/internal/tileid"
)

// Reader reads tiles back out of an MBTiles file written by Writer.
type Reader struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// NewReader opens filePath read-only.
func NewReader(filePath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", filePath))
	if err != nil {
		return nil, fmt.Errorf("mbarchive: %w", err)
	}
	stmt, err := db.Prepare("SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("mbarchive: %w", err)
	}
	return &Reader{db: db, stmt: stmt}, nil
}

// Close releases the underlying database handle.
func (r *Reader) Close() error {
	return errors.Join(r.stmt.Close(), r.db.Close())
}

// MediaID returns the media_id recorded in the metadata table by Writer.
func (r *Reader) MediaID() (string, error) {
	var mediaID string
	err := r.db.QueryRow("SELECT value FROM metadata WHERE name = 'media_id'").Scan(&mediaID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return mediaID, err
}

// format returns the tile file extension recorded in the metadata table
// by Export, defaulting to "png" if unset.
func (r *Reader) format() (string, error) {
	var format string
	err := r.db.QueryRow("SELECT value FROM metadata WHERE name = 'format'").Scan(&format)
	if errors.Is(err, sql.ErrNoRows) || format == "" {
		return "png", nil
	}
	if err != nil {
		return "", err
	}
	if format == "jpeg" {
		format = "jpg"
	}
	return format, nil
}

// ReadTile returns id's encoded tile bytes, or an empty slice if absent.
func (r *Reader) ReadTile(id tileid.ID) ([]byte, error) {
	row := tmsRow(id.Level, id.Row)
	var data []byte
	if err := r.stmt.QueryRow(id.Level, id.Col, row).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("mbarchive: %w", err)
	}
	return data, nil
}

// VisitTiles walks every stored tile, converting TMS rows back to XYZ.
func (r *Reader) VisitTiles(visitor func(tileid.ID, []byte) error) error {
	mediaID, err := r.MediaID()
	if err != nil {
		return err
	}

	rows, err := r.db.Query("SELECT zoom_level, tile_column, tile_row, tile_data FROM tiles")
	if err != nil {
		return fmt.Errorf("mbarchive: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var level, col, tmsY int
		var data []byte
		if err := rows.Scan(&level, &col, &tmsY, &data); err != nil {
			return fmt.Errorf("mbarchive: %w", err)
		}
		id := tileid.ID{MediaID: mediaID, Level: level, Row: tmsRow(level, tmsY), Col: col}
		if err := visitor(id, data); err != nil {
			return err
		}
	}
	return rows.Err()
}
