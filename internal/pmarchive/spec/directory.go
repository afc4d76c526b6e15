package spec

import (
	"bytes"
	"encoding/binary"
	"math"
	"slices"
	"sort"
)

// Entry is one directory record: a run of RunLength consecutive tile
// codes (0 for "this run continues in a leaf directory") starting at
// TileCode, stored at [Offset, Offset+Length) in the tile data section.
type Entry struct {
	TileCode  uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// SerializeDirectory encodes entries using the spec's delta+varint layout:
// tile codes as deltas from the previous entry, then run lengths, then
// lengths, then offsets (0 meaning "contiguous with the previous entry").
func SerializeDirectory(entries []Entry) []byte {
	buf := make([]byte, 0)
	buf = binary.AppendUvarint(buf, uint64(len(entries)))

	last := uint64(0)
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, e.TileCode-last)
		last = e.TileCode
	}
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(e.RunLength))
	}
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, uint64(e.Length))
	}

	next := uint64(0)
	for i, e := range entries {
		if i > 0 && e.Offset == next {
			buf = binary.AppendUvarint(buf, 0)
		} else {
			buf = binary.AppendUvarint(buf, e.Offset+1)
		}
		next = e.Offset + uint64(e.Length)
	}
	return buf
}

// DeserializeDirectory is SerializeDirectory's inverse.
func DeserializeDirectory(data []byte) ([]Entry, error) {
	r := bytes.NewReader(data)

	var err error
	readUvarint := func() uint64 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = binary.ReadUvarint(r)
		return v
	}

	n := readUvarint()
	entries := make([]Entry, n)

	last := uint64(0)
	for i := range entries {
		last += readUvarint()
		entries[i].TileCode = last
	}
	for i := range entries {
		entries[i].RunLength = uint32(readUvarint())
	}
	for i := range entries {
		entries[i].Length = uint32(readUvarint())
	}
	for i := range entries {
		v := readUvarint()
		if v == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	}
	return entries, err
}

// CompactEntries merges entries with consecutive tile codes that point at
// the same Offset (identical tile data) into single runs, shrinking the
// sorted entry slice in place.
func CompactEntries(entries []Entry) []Entry {
	if len(entries) == 0 {
		return entries
	}
	w := 0
	for r := 1; r < len(entries); r++ {
		if entries[r].Offset == entries[w].Offset &&
			entries[r].TileCode == entries[w].TileCode+uint64(entries[w].RunLength) {
			entries[w].RunLength++
		} else {
			w++
			entries[w] = entries[r]
		}
	}
	return entries[:w+1]
}

// FindEntry binary-searches sorted entries for the run containing
// tileCode, returning the matching entry and true, or false if no entry
// covers it.
func FindEntry(entries []Entry, tileCode uint64) (Entry, bool) {
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].TileCode > tileCode
	})
	if idx == 0 {
		return Entry{}, false
	}
	e := entries[idx-1]
	if e.RunLength == 0 {
		return e, true // continue search in the referenced leaf directory
	}
	if tileCode < e.TileCode+uint64(e.RunLength) {
		return e, true
	}
	return Entry{}, false
}

// SerializeAll builds the root directory and, if the root alone would
// exceed the 16KiB PMTiles v3 budget, spills entries into leaf
// directories referenced from the root, growing the leaf chunk size until
// the root fits.
func SerializeAll(entries []Entry, compression Compression) (root, leaves []byte) {
	rootEntries := entries
	rootData := SerializeDirectory(rootEntries)
	root, _ = Compress(rootData, compression)
	leaves = make([]byte, 0)

	if len(entries) == 0 {
		return root, leaves
	}

	count := float64(len(entries))
	entrySize := float64(len(root)) / count
	targetRoot := float64(RootDirMaxLength()) * 0.9

	maxRootEntries := targetRoot / entrySize
	leafSize := max(max(count/maxRootEntries, 4096), math.Sqrt(count))

	for len(root) > RootDirMaxLength() {
		rootEntries = rootEntries[:0]
		leaves = leaves[:0]

		for chunk := range slices.Chunk(entries, int(leafSize)) {
			leafData := SerializeDirectory(chunk)
			leafCompressed, _ := Compress(leafData, compression)

			rootEntries = append(rootEntries, Entry{
				TileCode: chunk[0].TileCode,
				Offset:   uint64(len(leaves)),
				Length:   uint32(len(leafCompressed)),
			})
			leaves = append(leaves, leafCompressed...)
		}

		rootData = SerializeDirectory(rootEntries)
		root, _ = Compress(rootData, compression)
		leafSize *= 1.1
	}

	return root, leaves
}
