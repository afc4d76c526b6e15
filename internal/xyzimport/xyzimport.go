// Package xyzimport bulk-imports a foreign tile tree laid out as
// "{z}/{x}/{y}.ext" files (the layout most third-party tiling tools
// produce) directly into a tilestore.Store's own on-disk layout, writing
// a completed metadata record so the result becomes servable by
// TileManager without re-tiling. Grounded on the teacher's xyz package,
// narrowed from a general-purpose Reader/Writer pair to the one direction
// this repo needs: import.
package xyzimport

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tileid"
	"github.com/tilepyramid/engine/internal/tilestore"
)

// ErrInvalidPattern is returned when a file pattern is missing one of the
// required {x}/{y}/{z} placeholders.
var ErrInvalidPattern = errors.New("xyzimport: invalid file pattern")

func validatePattern(pattern string) error {
	for _, p := range []string{"{x}", "{y}", "{z}"} {
		if !strings.Contains(pattern, p) {
			return fmt.Errorf("%w: placeholder %v not found", ErrInvalidPattern, p)
		}
	}
	return nil
}

func formatPattern(pattern string, x, y, z int) string {
	r := strings.NewReplacer(
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{z}", strconv.Itoa(z),
	)
	return r.Replace(pattern)
}

func patternRoot(pattern string) string {
	path0 := formatPattern(pattern, 0, 0, 0)
	path1 := formatPattern(pattern, 1, 1, 1)
	for path0 != path1 {
		path0 = filepath.Dir(path0)
		path1 = filepath.Dir(path1)
	}
	return path0
}

// Import walks a foreign tile directory matching filePattern (e.g.
// "/data/tiles/{z}/{x}/{y}.png") and copies every matched file into
// store's layout under mediaID, treating pattern's Z as level, X as col,
// Y as row (standard XYZ/slippy-map convention). After the walk, it
// writes a completed metadata record so mediaID reports tiled=true.
// Width and height are both recorded as the first decoded tile's width
// shifted left by the highest level seen, assuming a level-0 tile spans
// the whole image (the same assumption pmarchive.Import and
// mbarchive.Import make); column and row extents are not examined.
func Import(store *tilestore.Store, mediaID, filePattern, ext string) error {
	if err := validatePattern(filePattern); err != nil {
		return err
	}

	regexPattern := filePattern
	regexPattern = strings.ReplaceAll(regexPattern, "{x}", `(?P<x>\d+)`)
	regexPattern = strings.ReplaceAll(regexPattern, "{y}", `(?P<y>\d+)`)
	regexPattern = strings.ReplaceAll(regexPattern, "{z}", `(?P<z>\d+)`)
	pathRegexp, err := regexp.Compile("^" + regexPattern + "$")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}

	root := patternRoot(filePattern)
	tileSize := 0
	maxLevel := 0

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		matches := pathRegexp.FindStringSubmatch(path)
		if matches == nil {
			return nil
		}
		x, _ := strconv.Atoi(matches[pathRegexp.SubexpIndex("x")])
		y, _ := strconv.Atoi(matches[pathRegexp.SubexpIndex("y")])
		z, _ := strconv.Atoi(matches[pathRegexp.SubexpIndex("z")])

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("xyzimport: reading %s: %w", path, err)
		}

		id := tileid.ID{MediaID: mediaID, Level: z, Row: y, Col: x}
		if err := store.WriteTileBytes(id, data, ext); err != nil {
			return fmt.Errorf("xyzimport: writing %v: %w", id, err)
		}
		if z > maxLevel {
			maxLevel = z
		}
		if tileSize == 0 {
			if dims, derr := decodedTileSize(data, ext); derr == nil {
				tileSize = dims
			}
		}
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	if tileSize == 0 {
		return fmt.Errorf("xyzimport: no tiles matched pattern %q under %s", filePattern, root)
	}

	dim := tileSize << uint(maxLevel)
	return store.WriteMetadataFields(mediaID, ext, tileSize, maxLevel, dim, dim, true)
}

func decodedTileSize(data []byte, ext string) (int, error) {
	tile, err := rasterimg.Decode(bytes.NewReader(data), ext)
	if err != nil {
		return 0, err
	}
	return tile.Width(), nil
}
