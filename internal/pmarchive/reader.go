package pmarchive

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/tilepyramid/engine/internal/pmarchive/spec"
	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tileindex"
)

// FileAccessFunc reads length bytes starting at offset; Reader is built
// over this rather than a concrete *os.File so tests (and eventually
// range-request-backed remote archives) can substitute any byte source.
type FileAccessFunc func(offset, length uint64) ([]byte, error)

// Reader reads tiles back out of a PMTiles v3 archive written by Writer.
type Reader struct {
	access  FileAccessFunc
	closer  func() error
	header  *spec.Header
	mediaID string
	fileExt string
}

// NewFileReader opens filePath and reads its header and embedded
// media_id.
func NewFileReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("pmarchive: %w", err)
	}
	access := func(offset, length uint64) ([]byte, error) {
		buf := make([]byte, length)
		if _, err := file.ReadAt(buf, int64(offset)); err != nil {
			return nil, err
		}
		return buf, nil
	}
	return newReader(access, file.Close)
}

func newReader(access FileAccessFunc, closer func() error) (*Reader, error) {
	headerData, err := access(0, uint64(spec.HeaderLength))
	if err != nil {
		return nil, fmt.Errorf("pmarchive: %w", err)
	}
	header, err := spec.DeserializeHeader(headerData)
	if err != nil {
		return nil, err
	}
	metadataBytes, err := access(header.MetadataOffset, header.MetadataLength)
	if err != nil {
		return nil, fmt.Errorf("pmarchive: %w", err)
	}
	mediaID, fileExt, _ := strings.Cut(string(metadataBytes), "\t")
	return &Reader{access: access, closer: closer, header: header, mediaID: mediaID, fileExt: fileExt}, nil
}

// Close releases resources held by the reader.
func (r *Reader) Close() error { return r.closer() }

// MediaID returns the media_id this archive was exported for.
func (r *Reader) MediaID() string { return r.mediaID }

// FileExt returns the tile file extension ("jpg" or "png") recorded by
// Writer, needed to decode the raw bytes VisitTiles/ReadTile return.
func (r *Reader) FileExt() string { return r.fileExt }

func (r *Reader) readDirectory(offset, length uint64) ([]spec.Entry, error) {
	compressed, err := r.access(offset, length)
	if err != nil {
		return nil, fmt.Errorf("pmarchive: %w", err)
	}
	data, err := spec.Decompress(compressed, r.header.InternalCompression)
	if err != nil {
		return nil, err
	}
	return spec.DeserializeDirectory(data)
}

// ReadLocation resolves id to its byte range in the archive, descending
// through leaf directories as needed. Returns the zero Location if id is
// not present.
func (r *Reader) ReadLocation(id tileid.ID) (tileindex.Location, error) {
	tileCode := spec.EncodeTileID(id)
	dirOffset, dirLength := r.header.RootOffset, r.header.RootLength
	for {
		entries, err := r.readDirectory(dirOffset, dirLength)
		if err != nil {
			return tileindex.Location{}, err
		}
		entry, found := spec.FindEntry(entries, tileCode)
		if !found {
			return tileindex.Location{}, nil
		}
		if entry.RunLength > 0 {
			return tileindex.Location{Offset: r.header.TileDataOffset + entry.Offset, Length: uint64(entry.Length)}, nil
		}
		dirOffset, dirLength = r.header.LeafDirectoryOffset+entry.Offset, uint64(entry.Length)
	}
}

// ReadTile returns id's encoded tile bytes, or an empty slice if absent.
func (r *Reader) ReadTile(id tileid.ID) ([]byte, error) {
	loc, err := r.ReadLocation(id)
	if err != nil {
		return nil, err
	}
	if loc.Length == 0 {
		return nil, nil
	}
	return r.access(loc.Offset, loc.Length)
}

var errVisitCancelled = errors.New("pmarchive: visit cancelled")

// VisitLocations walks every directory entry, reconstructing each
// addressed tile's id and calling visitor.
func (r *Reader) VisitLocations(visitor func(tileid.ID, tileindex.Location) error) error {
	var walk func(offset, length uint64) error
	walk = func(offset, length uint64) error {
		entries, err := r.readDirectory(offset, length)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.RunLength > 0 {
				for i := range e.RunLength {
					id := spec.DecodeTileID(r.mediaID, e.TileCode+uint64(i))
					loc := tileindex.Location{Offset: r.header.TileDataOffset + e.Offset, Length: uint64(e.Length)}
					if err := visitor(id, loc); err != nil {
						return err
					}
				}
				continue
			}
			if err := walk(r.header.LeafDirectoryOffset+e.Offset, uint64(e.Length)); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(r.header.RootOffset, r.header.RootLength)
}

// VisitTiles walks every tile in the archive, decoded bytes included.
func (r *Reader) VisitTiles(visitor func(tileid.ID, []byte) error) error {
	return r.VisitLocations(func(id tileid.ID, loc tileindex.Location) error {
		data, err := r.access(loc.Offset, loc.Length)
		if err != nil {
			return err
		}
		return visitor(id, data)
	})
}

// Tiles ranges over every (id, encoded bytes) pair in the archive. Panics
// if the underlying access fails for a reason other than early stop.
func (r *Reader) Tiles() iter.Seq2[tileid.ID, []byte] {
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

var _ io.Closer = (*Reader)(nil)
