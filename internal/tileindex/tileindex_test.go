package tileindex_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tileindex"
)

func TestItemForAndTileIDRoundTrip(t *testing.T) {
	id := tileid.ID{MediaID: "photo.jpg", Level: 3, Row: 5, Col: 7}
	loc := tileindex.Location{Offset: 1024, Length: 256}

	item := tileindex.ItemFor(id, loc)
	assert.Equal(t, id.Level, int(item.Level))
	assert.Equal(t, id.Row, int(item.Row))
	assert.Equal(t, id.Col, int(item.Col))
	assert.Equal(t, loc, item.Location())

	got := item.TileID("photo.jpg")
	assert.Equal(t, id, got)
}

func TestWriteAllReadAllRoundTrip(t *testing.T) {
	items := []tileindex.Item{
		tileindex.ItemFor(tileid.ID{Level: 0, Row: 0, Col: 0}, tileindex.Location{Offset: 0, Length: 10}),
		tileindex.ItemFor(tileid.ID{Level: 1, Row: 0, Col: 1}, tileindex.Location{Offset: 10, Length: 20}),
		tileindex.ItemFor(tileid.ID{Level: 1, Row: 1, Col: 0}, tileindex.Location{Offset: 30, Length: 5}),
	}

	var buf []byte
	w := &sliceWriter{buf: &buf}
	require.NoError(t, tileindex.WriteAll(items, w))

	got, err := tileindex.ReadAll(buf)
	require.NoError(t, err)
	assert.Equal(t, items, got)
}

type sliceWriter struct {
	buf *[]byte
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

type fakeVisitor struct {
	tiles map[tileid.ID][]byte
	order []tileid.ID
}

func (f *fakeVisitor) VisitTiles(visit func(tileid.ID, []byte) error) error {
	for _, id := range f.order {
		if err := visit(id, f.tiles[id]); err != nil {
			return err
		}
	}
	return nil
}

func TestIterTilesStopsEarlyOnBreak(t *testing.T) {
	a := tileid.ID{Level: 0, Row: 0, Col: 0}
	b := tileid.ID{Level: 0, Row: 0, Col: 1}
	v := &fakeVisitor{
		tiles: map[tileid.ID][]byte{a: []byte("a"), b: []byte("b")},
		order: []tileid.ID{a, b},
	}

	var seen []tileid.ID
	for id := range tileindex.IterTiles(v) {
		seen = append(seen, id)
		break
	}
	assert.Equal(t, []tileid.ID{a}, seen)
}

func TestIterTilesPanicsOnUnderlyingError(t *testing.T) {
	boom := errors.New("boom")
	v := visitorFunc(func(visit func(tileid.ID, []byte) error) error {
		return boom
	})

	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.ErrorIs(t, r.(error), boom)
	}()
	for range tileindex.IterTiles(v) {
	}
}

type visitorFunc func(visit func(tileid.ID, []byte) error) error

func (f visitorFunc) VisitTiles(visit func(tileid.ID, []byte) error) error { return f(visit) }
