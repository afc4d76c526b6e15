// Package mbarchive packs one media's tile pyramid into an MBTiles-
// compatible SQLite database, readable by any standard MBTiles consumer.
// Grounded on the teacher's mb package, retargeted from tile.ID{X,Y,Z} to
// this repo's tileid.ID (level maps to zoom, row to Y, col to X); negative
// (virtual zoom-out) levels are rejected, matching pmarchive.
package mbarchive

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tilepyramid/engine/internal/tileid"
)

// ErrNegativeLevel is returned by WriteTile for a virtual zoom-out tile
// id, which has no MBTiles representation.
var ErrNegativeLevel = errors.New("mbarchive: MBTiles has no negative zoom levels")

// Writer packs tiles for one media into an MBTiles file.
type Writer struct {
	db     *sql.DB
	stmt   *sql.Stmt
	logger *slog.Logger
}

// WriterOption configures NewWriter.
type WriterOption func(*writerConfig)

type writerConfig struct {
	metadata map[string]string
	logger   *slog.Logger
}

// WithMetadata seeds the MBTiles metadata table (name/format/bounds/...),
// in addition to the media_id this package always records.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(c *writerConfig) { c.metadata = metadata }
}

// WithLogger routes the writer's debug trace through logger instead of
// discarding it.
func WithLogger(logger *slog.Logger) WriterOption {
	return func(c *writerConfig) { c.logger = logger }
}

// NewWriter creates a new MBTiles file at filePath and seeds its
// metadata table, including media_id so an importer can recover which
// media the archive belongs to.
func NewWriter(filePath, mediaID string, opts ...WriterOption) (w *Writer, err error) {
	cfg := writerConfig{logger: slog.New(slog.DiscardHandler), metadata: make(map[string]string)}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", filePath)
	if err != nil {
		return nil, fmt.Errorf("mbarchive: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	if _, err = db.Exec(`
		CREATE TABLE metadata (name TEXT, value TEXT);
		CREATE TABLE tiles (
			zoom_level INTEGER,
			tile_column INTEGER,
			tile_row INTEGER,
			tile_data BLOB
		);
	`); err != nil {
		return nil, fmt.Errorf("mbarchive: %w", err)
	}

	cfg.metadata["media_id"] = mediaID
	for k, v := range cfg.metadata {
		if _, err = db.Exec("INSERT INTO metadata (name, value) VALUES (?, ?)", k, v); err != nil {
			return nil, fmt.Errorf("mbarchive: %w", err)
		}
	}

	stmt, err := db.Prepare("INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("mbarchive: %w", err)
	}

	return &Writer{db: db, stmt: stmt, logger: cfg.logger}, nil
}

// WriteTile inserts id's already-encoded tile bytes.
func (w *Writer) WriteTile(id tileid.ID, tileData []byte) error {
	if id.Level < 0 {
		return ErrNegativeLevel
	}
	row := tmsRow(id.Level, id.Row) // XYZ -> TMS
	if _, err := w.stmt.Exec(id.Level, id.Col, row, tileData); err != nil {
		return fmt.Errorf("mbarchive: %w", err)
	}
	return nil
}

// Finalize builds the unique tile index that makes the file a
// spec-conformant MBTiles database.
func (w *Writer) Finalize() error {
	w.logger.Debug("mbarchive: creating index")
	_, err := w.db.Exec("CREATE UNIQUE INDEX tile_index ON tiles (zoom_level, tile_column, tile_row)")
	if err != nil {
		return fmt.Errorf("mbarchive: %w", err)
	}
	w.logger.Debug("mbarchive: done")
	return nil
}

// Close releases the underlying database handle.
func (w *Writer) Close() error {
	return errors.Join(w.stmt.Close(), w.db.Close())
}

func tmsRow(level, row int) int {
	return (1 << uint(level)) - 1 - row
}
