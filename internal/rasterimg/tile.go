// Package rasterimg implements Tile, the owned pixel buffer the rest of the
// tile pyramid engine passes around. Tiles are value-semantic: every
// operation returns a new Tile rather than mutating its receiver in place.
package rasterimg

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	xdraw "golang.org/x/image/draw"
)

// Tile is a rasterized square (or rectangular, mid-pyramid-construction)
// region of pixels in a fixed RGB pixel format.
type Tile struct {
	img *image.RGBA
}

// New allocates an opaque black tile of the given dimensions.
func New(width, height int) Tile {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return Tile{img: img}
}

// FromImage wraps an already-decoded image, converting to RGBA if needed.
func FromImage(src image.Image) Tile {
	if rgba, ok := src.(*image.RGBA); ok {
		return Tile{img: rgba}
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, bounds.Min, xdraw.Src)
	return Tile{img: dst}
}

// Width returns the pixel width of the tile.
func (t Tile) Width() int { return t.img.Bounds().Dx() }

// Height returns the pixel height of the tile.
func (t Tile) Height() int { return t.img.Bounds().Dy() }

// Valid reports whether the tile wraps a usable pixel buffer.
func (t Tile) Valid() bool { return t.img != nil }

// Image exposes the underlying image.Image for callers that need to hand
// a Tile directly to the standard image/* codecs or golang.org/x/image.
func (t Tile) Image() image.Image { return t.img }

// Clone makes a deep copy of the tile's pixel buffer.
func (t Tile) Clone() Tile {
	clone := image.NewRGBA(t.img.Bounds())
	copy(clone.Pix, t.img.Pix)
	return Tile{img: clone}
}

// FillBlack paints the entire tile opaque black, used to pad partial edge
// tiles during pyramid construction.
func FillBlack(width, height int) Tile {
	tile := New(width, height)
	black := color.RGBA{A: 0xff}
	xdraw.Draw(tile.img, tile.img.Bounds(), &image.Uniform{C: black}, image.Point{}, xdraw.Src)
	return tile
}

// Crop returns a new Tile holding the pixels in [x0,y0)-[x1,y1).
func (t Tile) Crop(x0, y0, x1, y1 int) Tile {
	rect := image.Rect(x0, y0, x1, y1)
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	xdraw.Draw(dst, dst.Bounds(), t.img, rect.Min, xdraw.Src)
	return Tile{img: dst}
}

// Resize returns a new Tile scaled to (width, height) using a bilinear
// filter.
func (t Tile) Resize(width, height int) Tile {
	if width <= 0 || height <= 0 {
		return New(0, 0)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), t.img, t.img.Bounds(), xdraw.Src, nil)
	return Tile{img: dst}
}

// Merge stitches four same-size quadrant tiles (top-left, top-right,
// bottom-left, bottom-right) into one tile of the same dimension as a
// single quadrant, downscaling each quadrant to half size. Any of the four
// quadrants may be the zero Tile (invalid), in which case it is treated as
// a black fill — this is how odd right/bottom pyramid edges are handled.
func Merge(tl, tr, bl, br Tile, quadrantSize int) Tile {
	half := quadrantSize / 2
	full := New(quadrantSize, quadrantSize)

	place := func(q Tile, ox, oy int) {
		if !q.Valid() {
			q = FillBlack(quadrantSize, quadrantSize)
		}
		scaled := q.Resize(half, half)
		xdraw.Draw(full.img, image.Rect(ox, oy, ox+half, oy+half), scaled.img, image.Point{}, xdraw.Src)
	}

	place(tl, 0, 0)
	place(tr, half, 0)
	place(bl, 0, half)
	place(br, half, half)

	return full
}

// Encode writes the tile to w in the format named by ext ("jpg" or "png").
func (t Tile) Encode(w io.Writer, ext string) error {
	switch ext {
	case "png":
		return png.Encode(w, t.img)
	case "jpg", "jpeg":
		return jpeg.Encode(w, t.img, &jpeg.Options{Quality: 90})
	default:
		return fmt.Errorf("rasterimg: unsupported encode extension %q", ext)
	}
}

// Save encodes the tile and writes it to path, inferring the format from
// ext the same way Encode does.
func (t Tile) Save(path, ext string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rasterimg: %w", err)
	}
	defer f.Close()
	if err := t.Encode(f, ext); err != nil {
		return fmt.Errorf("rasterimg: %w", err)
	}
	return f.Close()
}

// Decode reads and decodes a tile from r, dispatching on ext.
func Decode(r io.Reader, ext string) (Tile, error) {
	var img image.Image
	var err error
	switch ext {
	case "png":
		img, err = png.Decode(r)
	case "jpg", "jpeg":
		img, err = jpeg.Decode(r)
	default:
		return Tile{}, fmt.Errorf("rasterimg: unsupported decode extension %q", ext)
	}
	if err != nil {
		return Tile{}, fmt.Errorf("rasterimg: decode: %w", err)
	}
	return FromImage(img), nil
}

// Load decodes the tile stored at path.
func Load(path, ext string) (Tile, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tile{}, fmt.Errorf("rasterimg: %w", err)
	}
	defer f.Close()
	return Decode(f, ext)
}
