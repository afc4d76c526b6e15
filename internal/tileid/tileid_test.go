package tileid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tilepyramid/engine/internal/tileid"
)

func TestClassifyMedia(t *testing.T) {
	assert.Equal(t, tileid.KindDynamic, tileid.ClassifyMedia("dynamic:fern"))
	assert.Equal(t, tileid.KindStatic, tileid.ClassifyMedia("/home/user/photo.jpg"))
	assert.Equal(t, tileid.KindStatic, tileid.ClassifyMedia("svg:/home/user/map.svg"))
}

func TestValid(t *testing.T) {
	cases := []struct {
		name string
		id   tileid.ID
		want bool
	}{
		{"origin", tileid.ID{Level: 0, Row: 0, Col: 0}, true},
		{"negative row", tileid.ID{Level: 1, Row: -1, Col: 0}, false},
		{"negative col", tileid.ID{Level: 1, Row: 0, Col: -1}, false},
		{"out of range row", tileid.ID{Level: 1, Row: 2, Col: 0}, false},
		{"out of range col", tileid.ID{Level: 2, Row: 0, Col: 4}, false},
		{"max valid corner", tileid.ID{Level: 2, Row: 3, Col: 3}, true},
		{"zoom-out level", tileid.ID{Level: -2, Row: 0, Col: 0}, true},
		{"zoom-out nonzero row", tileid.ID{Level: -2, Row: 1, Col: 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.id.Valid())
		})
	}
}

func TestImmortal(t *testing.T) {
	assert.True(t, tileid.ID{Level: 0}.Immortal())
	assert.False(t, tileid.ID{Level: 1}.Immortal())
	assert.False(t, tileid.ID{Level: -1}.Immortal())
}

func TestParent(t *testing.T) {
	id := tileid.ID{MediaID: "m", Level: 3, Row: 5, Col: 7}
	parent, ok := id.Parent()
	assert.True(t, ok)
	assert.Equal(t, tileid.ID{MediaID: "m", Level: 2, Row: 2, Col: 3}, parent)

	_, ok = (tileid.ID{Level: 0}).Parent()
	assert.False(t, ok)
}

func TestOverview(t *testing.T) {
	id := tileid.ID{MediaID: "m", Level: 4, Row: 2, Col: 9}
	assert.Equal(t, tileid.ID{MediaID: "m", Level: 0, Row: 0, Col: 0}, id.Overview())
}
