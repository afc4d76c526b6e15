// Package pmarchive packs one media's full on-disk tile pyramid into a
// single PMTiles-v3-compatible file: a Hilbert-curve-ordered directory of
// byte ranges into one contiguous tile-data section, readable by
// off-the-shelf PMTiles tooling. Grounded on the teacher's pm package,
// retargeted from its generic XYZ tile.ID to this repo's tileid.ID (level
// maps to zoom, row to Y, col to X) and narrowed to a single media per
// archive — negative (virtual zoom-out) levels are rejected at export
// time since PMTiles has no negative-zoom concept.
package pmarchive

import (
	"bufio"
	"cmp"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/tilepyramid/engine/internal/pmarchive/spec"
	"github.com/tilepyramid/engine/internal/tileid"
)

// ErrNegativeLevel is returned by WriteTile for a virtual zoom-out tile
// id, which has no PMTiles representation.
var ErrNegativeLevel = errors.New("pmarchive: PMTiles has no negative zoom levels")

// Writer packs tiles for one media into a PMTiles v3 file.
type Writer struct {
	logger *slog.Logger
	file   *os.File
	header spec.Header

	tileWriter *bufio.Writer
	tileOffset uint64

	entries   []spec.Entry
	locations map[[16]byte]uint32 // content hash -> entries index, for dedup
}

// WriterOption configures NewWriter.
type WriterOption func(*Writer)

// WithLogger routes the writer's debug trace through logger instead of
// discarding it.
func WithLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) { w.logger = logger }
}

// NewWriter creates a Writer for a new PMTiles file at filePath. mediaID
// and fileExt are embedded as the file's metadata section (mediaID, a
// tab, fileExt) so an importer can recover both which media the archive
// belongs to and how to decode its tiles; minLevel/maxLevel populate the
// header's zoom bounds.
func NewWriter(filePath, mediaID, fileExt string, minLevel, maxLevel int, opts ...WriterOption) (w *Writer, err error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("pmarchive: %w", err)
	}
	defer func() {
		if err != nil {
			file.Close()
		}
	}()

	metadata := []byte(mediaID + "\t" + fileExt)
	offset := uint64(spec.HeaderRootDirMaxLength)
	if _, err := file.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("pmarchive: %w", err)
	}
	if _, err := file.Write(metadata); err != nil {
		return nil, fmt.Errorf("pmarchive: %w", err)
	}

	header := spec.Header{
		HeaderMagic:         spec.HeaderMagicV3,
		Clustered:           true,
		InternalCompression: spec.CompressionGzip,
		MetadataOffset:      offset,
		MetadataLength:      uint64(len(metadata)),
		TileDataOffset:      offset + uint64(len(metadata)),
		MinZoom:             uint8(minLevel),
		MaxZoom:             uint8(maxLevel),
	}

	w = &Writer{
		logger:     slog.New(slog.DiscardHandler),
		file:       file,
		header:     header,
		tileWriter: bufio.NewWriter(file),
		locations:  make(map[[16]byte]uint32),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// WriteTile appends tileData (already encoded — JPEG/PNG bytes straight
// from the TileStore) to the archive under id. Identical byte content is
// deduplicated into a shared run, the same trick the teacher's mb/pm
// writers use for tiles that are uniform fill (e.g. black edge padding).
func (w *Writer) WriteTile(id tileid.ID, tileData []byte) error {
	if id.Level < 0 {
		return ErrNegativeLevel
	}
	if len(tileData) == 0 {
		return nil
	}

	digest := md5.Sum(tileData)
	if idx, ok := w.locations[digest]; ok {
		w.entries = append(w.entries, spec.Entry{
			TileCode:  spec.EncodeTileID(id),
			Offset:    w.entries[idx].Offset,
			Length:    w.entries[idx].Length,
			RunLength: 1,
		})
		return nil
	}

	entry := spec.Entry{
		TileCode:  spec.EncodeTileID(id),
		Offset:    w.tileOffset,
		Length:    uint32(len(tileData)),
		RunLength: 1,
	}
	if _, err := w.tileWriter.Write(tileData); err != nil {
		return fmt.Errorf("pmarchive: %w", err)
	}
	w.tileOffset += uint64(len(tileData))

	w.locations[digest] = uint32(len(w.entries))
	w.entries = append(w.entries, entry)
	return nil
}

// Finalize flushes tile data, builds and writes the directory, and
// rewrites the header now that every offset is known. It must be called
// exactly once, and the Writer must not be used afterward.
func (w *Writer) Finalize() error {
	if w.tileWriter == nil {
		return errors.New("pmarchive: Finalize called twice")
	}

	w.logger.Debug("pmarchive: flush tile data")
	if err := w.tileWriter.Flush(); err != nil {
		return fmt.Errorf("pmarchive: %w", err)
	}
	w.header.TileDataLength = w.tileOffset
	w.tileWriter = nil

	w.logger.Debug("pmarchive: sort entries")
	slices.SortFunc(w.entries, func(a, b spec.Entry) int { return cmp.Compare(a.TileCode, b.TileCode) })

	w.logger.Debug("pmarchive: compact runs")
	w.entries = spec.CompactEntries(w.entries)
	w.header.AddressedTilesCount = uint64(len(w.entries))
	w.header.TileEntriesCount = uint64(len(w.entries))
	w.header.TileContentsCount = uint64(len(w.locations))

	w.logger.Debug("pmarchive: serialize directory")
	rootBytes, leafBytes := spec.SerializeAll(w.entries, w.header.InternalCompression)

	leavesOffset, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("pmarchive: %w", err)
	}
	if _, err := w.file.Write(leafBytes); err != nil {
		return fmt.Errorf("pmarchive: %w", err)
	}
	w.header.LeafDirectoryOffset = uint64(leavesOffset)
	w.header.LeafDirectoryLength = uint64(len(leafBytes))

	if _, err := w.file.Seek(spec.RootDirOffset(), io.SeekStart); err != nil {
		return fmt.Errorf("pmarchive: %w", err)
	}
	if _, err := w.file.Write(rootBytes); err != nil {
		return fmt.Errorf("pmarchive: %w", err)
	}
	w.header.RootOffset = uint64(spec.RootDirOffset())
	w.header.RootLength = uint64(len(rootBytes))

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("pmarchive: %w", err)
	}
	if _, err := w.file.Write(spec.SerializeHeader(&w.header)); err != nil {
		return fmt.Errorf("pmarchive: %w", err)
	}

	w.logger.Debug("pmarchive: done")
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("pmarchive: %w", err)
	}
	w.file = nil
	return nil
}

// Close releases the underlying file if Finalize was never called.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
