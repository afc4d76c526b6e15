package spec_test

import (
	"testing"

	gcmp "github.com/google/go-cmp/cmp"

	"github.com/tilepyramid/engine/internal/pmarchive/spec"
	"github.com/tilepyramid/engine/internal/tileid"
)

func TestDirectorySerializeDeserializeRoundTrip(t *testing.T) {
	entries := []spec.Entry{
		{TileCode: 0, Offset: 0, Length: 100, RunLength: 1},
		{TileCode: 1, Offset: 100, Length: 200, RunLength: 1},
		{TileCode: 5, Offset: 500, Length: 50, RunLength: 3},
	}

	got, err := spec.DeserializeDirectory(spec.SerializeDirectory(entries))
	if err != nil {
		t.Fatalf("DeserializeDirectory failed: %v", err)
	}
	if !gcmp.Equal(entries, got) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, entries)
	}
}

func TestCompactEntriesMergesContiguousRuns(t *testing.T) {
	entries := []spec.Entry{
		{TileCode: 0, Offset: 0, Length: 10, RunLength: 1},
		{TileCode: 1, Offset: 0, Length: 10, RunLength: 1},
		{TileCode: 2, Offset: 0, Length: 10, RunLength: 1},
		{TileCode: 10, Offset: 500, Length: 10, RunLength: 1},
	}
	got := spec.CompactEntries(entries)
	want := []spec.Entry{
		{TileCode: 0, Offset: 0, Length: 10, RunLength: 3},
		{TileCode: 10, Offset: 500, Length: 10, RunLength: 1},
	}
	if !gcmp.Equal(want, got) {
		t.Errorf("CompactEntries mismatch: got %+v, want %+v", got, want)
	}
}

func TestFindEntryLocatesCoveringRun(t *testing.T) {
	entries := []spec.Entry{
		{TileCode: 0, Offset: 0, Length: 10, RunLength: 3},
		{TileCode: 10, Offset: 100, Length: 10, RunLength: 1},
	}

	e, ok := spec.FindEntry(entries, 1)
	if !ok || e.TileCode != 0 {
		t.Errorf("FindEntry(1) = %+v, %v; want first run", e, ok)
	}

	_, ok = spec.FindEntry(entries, 4)
	if ok {
		t.Error("FindEntry(4) should miss, no run covers it")
	}

	e, ok = spec.FindEntry(entries, 10)
	if !ok || e.TileCode != 10 {
		t.Errorf("FindEntry(10) = %+v, %v; want second run", e, ok)
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := []byte("some directory bytes worth compressing, repeated, repeated, repeated")

	compressed, err := spec.Compress(data, spec.CompressionGzip)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(compressed) == 0 {
		t.Fatal("Compress produced empty output")
	}

	got, err := spec.Decompress(compressed, spec.CompressionGzip)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Decompress(Compress(x)) = %q, want %q", got, data)
	}
}

func TestCompressNoneIsIdentity(t *testing.T) {
	data := []byte("untouched")
	got, err := spec.Compress(data, spec.CompressionNone)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Compress with CompressionNone = %q, want %q", got, data)
	}
}

func TestHeaderSerializeDeserializeRoundTrip(t *testing.T) {
	header := &spec.Header{
		HeaderMagic:         spec.HeaderMagicV3,
		RootOffset:          uint64(spec.HeaderLength),
		RootLength:          42,
		AddressedTilesCount: 7,
		MinZoom:             0,
		MaxZoom:             3,
	}

	got, err := spec.DeserializeHeader(spec.SerializeHeader(header))
	if err != nil {
		t.Fatalf("DeserializeHeader failed: %v", err)
	}
	if !gcmp.Equal(header, got) {
		t.Errorf("header round trip mismatch: got %+v, want %+v", got, header)
	}
}

func TestDeserializeHeaderRejectsBadMagic(t *testing.T) {
	header := &spec.Header{HeaderMagic: 0xdeadbeef}
	_, err := spec.DeserializeHeader(spec.SerializeHeader(header))
	if err == nil {
		t.Fatal("expected an error decoding a header with a bad magic number")
	}
}

func TestTileIDEncodeDecodeRoundTrip(t *testing.T) {
	for _, id := range []tileid.ID{
		{MediaID: "photo.jpg", Level: 0, Row: 0, Col: 0},
		{MediaID: "photo.jpg", Level: 2, Row: 1, Col: 3},
		{MediaID: "photo.jpg", Level: 4, Row: 7, Col: 9},
	} {
		code := spec.EncodeTileID(id)
		got := spec.DecodeTileID(id.MediaID, code)
		if got != id {
			t.Errorf("DecodeTileID(EncodeTileID(%+v)) = %+v", id, got)
		}
	}
}
