package spec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Compression identifies how a header/directory section is compressed.
type Compression uint8

const (
	CompressionUnknown Compression = iota
	CompressionNone
	CompressionGzip
)

// Header is the fixed-size PMTiles v3 header, restricted to the fields
// this single-media exporter populates. MinZoom/MaxZoom carry this
// media's pyramid levels; the lon/lat bounding-box fields are left zero
// since a tile pyramid has no geographic projection — they exist only so
// the file remains a valid, spec-conformant PMTiles v3 container that
// off-the-shelf PMTiles viewers can open.
type Header struct {
	HeaderMagic         uint64
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	MinZoom             uint8
	MaxZoom             uint8
}

const (
	headerMagic     uint64 = 0x73656C69544D50 // "PMTiles"
	headerMagicMask uint64 = 1<<56 - 1
	HeaderMagicV3   uint64 = headerMagic | (0x03 << 56)

	// spec v3: root directory MUST be contained in the first 16,384 bytes.
	HeaderRootDirMaxLength = 16 << 10
)

// HeaderLength is the fixed encoded size of Header, computed rather than
// hand-counted so it can never drift out of sync with the struct.
var HeaderLength = binary.Size(Header{})

// RootDirOffset and RootDirMaxLength depend on HeaderLength and so are
// functions rather than constants.
func RootDirOffset() int64        { return int64(HeaderLength) }
func RootDirMaxLength() int       { return HeaderRootDirMaxLength - HeaderLength }

var ErrInvalidHeader = errors.New("pmarchive: invalid file header")
var ErrInvalidVersion = errors.New("pmarchive: invalid version")

// SerializeHeader encodes header into its fixed-width on-disk form.
func SerializeHeader(header *Header) []byte {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	binary.Write(w, binary.LittleEndian, header)
	w.Flush()
	return buf.Bytes()
}

// DeserializeHeader decodes a header previously written by SerializeHeader.
func DeserializeHeader(buf []byte) (*Header, error) {
	header := Header{}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if header.HeaderMagic&headerMagicMask != headerMagic {
		return nil, ErrInvalidHeader
	}
	if header.HeaderMagic != HeaderMagicV3 {
		return nil, ErrInvalidVersion
	}
	return &header, nil
}
