// Package tiler implements the streaming pyramid builder: it consumes a
// scanline raster and produces a full tile pyramid plus metadata in a
// tilestore.Store. Grounded on pyzui's tiler.py.
package tiler

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"

	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tilestore"
)

// ErrCancelled is returned by Run when Cancel was called mid-build.
var ErrCancelled = errors.New("tiler: cancelled")

const defaultTileSize = 256

// Options configures a tiling run.
type Options struct {
	TileSize int // default 256
	FileExt  string // "jpg" or "png"

	// ShowProgress, when true, renders a progressbar.v3 bar to stderr.
	// Off by default so library callers (the manager) don't print to the
	// CLI's stderr; the tile CLI subcommand turns it on.
	ShowProgress bool
}

// Tiler builds one media's full pyramid from a streamed raster.
type Tiler struct {
	store   *tilestore.Store
	mediaID string
	opts    Options

	cancelled atomic.Bool
	done      atomic.Uint64
	total     uint64

	bar *progressbar.ProgressBar
}

// New creates a Tiler that will write mediaID's pyramid into store.
func New(store *tilestore.Store, mediaID string, opts Options) *Tiler {
	if opts.TileSize <= 0 {
		opts.TileSize = defaultTileSize
	}
	if opts.FileExt == "" {
		opts.FileExt = "jpg"
	}
	return &Tiler{store: store, mediaID: mediaID, opts: opts}
}

// Cancel requests cooperative cancellation. Run checks for it between rows
// and between levels.
func (t *Tiler) Cancel() {
	t.cancelled.Store(true)
}

// Progress returns a value in [0,1]: the fraction of total tiles written
// across every level so far.
func (t *Tiler) Progress() float32 {
	total := t.total
	if total == 0 {
		return 0
	}
	return float32(t.done.Load()) / float32(total)
}

// maxLevelFor computes ceil(log2(max(w,h)/tileSize)), floored at 0.
func maxLevelFor(w, h, tileSize int) int {
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= tileSize {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(longest) / float64(tileSize))))
}

func levelDims(w, h, tileSize, maxLevel, level int) (rows, cols int) {
	scale := 1 << uint(maxLevel-level)
	effTile := tileSize * scale
	cols = ceilDiv(w, effTile)
	rows = ceilDiv(h, effTile)
	return
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Run drives the full pyramid build from raster, writing tiles and
// metadata into the Tiler's store. On any error, or on cancellation,
// partial output for mediaID is removed and the media is left untiled.
func (t *Tiler) Run(raster rasterimg.Raster) (err error) {
	w, h := raster.Width(), raster.Height()
	tileSize := t.opts.TileSize
	maxLevel := maxLevelFor(w, h, tileSize)

	t.total = 0
	for level := 0; level <= maxLevel; level++ {
		rows, cols := levelDims(w, h, tileSize, maxLevel, level)
		t.total += uint64(rows * cols)
	}
	if t.opts.ShowProgress {
		t.bar = progressbar.Default(int64(t.total), fmt.Sprintf("tiling %s", t.mediaID))
	}

	defer func() {
		if err != nil {
			_ = t.store.DeleteMedia(t.mediaID)
		}
	}()

	if err := t.buildBaseLevel(raster, w, h, tileSize, maxLevel); err != nil {
		return err
	}

	for level := maxLevel - 1; level >= 0; level-- {
		if t.cancelled.Load() {
			return ErrCancelled
		}
		if err := t.mergeLevel(level, maxLevel, w, h, tileSize); err != nil {
			return err
		}
	}

	if err := t.store.WriteMetadataFields(t.mediaID, t.opts.FileExt, tileSize, maxLevel, w, h, true); err != nil {
		return fmt.Errorf("tiler: writing metadata: %w", err)
	}

	return nil
}

func (t *Tiler) buildBaseLevel(raster rasterimg.Raster, w, h, tileSize, maxLevel int) error {
	cols := ceilDiv(w, tileSize)
	row := 0
	for {
		if t.cancelled.Load() {
			return ErrCancelled
		}

		group := make([][]byte, 0, tileSize)
		eof := false
		for i := 0; i < tileSize; i++ {
			line, err := raster.NextScanline()
			if err != nil {
				if errors.Is(err, io.EOF) {
					eof = true
					break
				}
				return fmt.Errorf("tiler: reading scanline %d: %w", row+i, err)
			}
			group = append(group, line)
		}
		if len(group) == 0 {
			break
		}
		// pad short final group with black rows
		for len(group) < tileSize {
			group = append(group, make([]byte, w*3))
		}

		for c := 0; c < cols; c++ {
			colStart := c * tileSize
			tileRows := sliceTileColumns(group, colStart, tileSize, w)
			tile := rasterimg.TileFromScanlines(tileRows, tileSize, tileSize)
			id := tileid.ID{MediaID: t.mediaID, Level: maxLevel, Row: row / tileSize, Col: c}
			if err := t.store.SaveTile(id, tile, t.opts.FileExt); err != nil {
				return fmt.Errorf("tiler: saving base tile %v: %w", id, err)
			}
			t.advance()
		}

		row += tileSize
		if eof || row >= h {
			break
		}
	}
	return nil
}

// sliceTileColumns extracts a tileWidth-wide vertical strip starting at
// colStart from each scanline in rows (each rows[i] holds fullWidth*3
// bytes), padding with black where the source raster is narrower than the
// strip (the right edge of the image).
func sliceTileColumns(rows [][]byte, colStart, tileWidth, fullWidth int) [][]byte {
	out := make([][]byte, len(rows))
	for i, row := range rows {
		dst := make([]byte, tileWidth*3)
		for x := 0; x < tileWidth; x++ {
			srcX := colStart + x
			if srcX >= fullWidth {
				break
			}
			copy(dst[x*3:x*3+3], row[srcX*3:srcX*3+3])
		}
		out[i] = dst
	}
	return out
}

func (t *Tiler) mergeLevel(level, maxLevel, w, h, tileSize int) error {
	rows, cols := levelDims(w, h, tileSize, maxLevel, level)
	childRows, childCols := levelDims(w, h, tileSize, maxLevel, level+1)

	for r := 0; r < rows; r++ {
		if t.cancelled.Load() {
			return ErrCancelled
		}
		for c := 0; c < cols; c++ {
			tl := t.loadOrBlack(level+1, 2*r, 2*c, childRows, childCols, tileSize)
			tr := t.loadOrBlack(level+1, 2*r, 2*c+1, childRows, childCols, tileSize)
			bl := t.loadOrBlack(level+1, 2*r+1, 2*c, childRows, childCols, tileSize)
			br := t.loadOrBlack(level+1, 2*r+1, 2*c+1, childRows, childCols, tileSize)

			merged := rasterimg.Merge(tl, tr, bl, br, tileSize)
			id := tileid.ID{MediaID: t.mediaID, Level: level, Row: r, Col: c}
			if err := t.store.SaveTile(id, merged, t.opts.FileExt); err != nil {
				return fmt.Errorf("tiler: saving level %d tile %v: %w", level, id, err)
			}
			t.advance()
		}
	}
	return nil
}

func (t *Tiler) loadOrBlack(level, row, col, maxRows, maxCols, tileSize int) rasterimg.Tile {
	if row >= maxRows || col >= maxCols {
		return rasterimg.FillBlack(tileSize, tileSize)
	}
	id := tileid.ID{MediaID: t.mediaID, Level: level, Row: row, Col: col}
	tile, err := t.store.LoadTileRaw(id, t.opts.FileExt)
	if err != nil {
		return rasterimg.FillBlack(tileSize, tileSize)
	}
	return tile
}

func (t *Tiler) advance() {
	t.done.Add(1)
	if t.bar != nil {
		_ = t.bar.Add(1)
	}
}
