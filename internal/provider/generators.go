package provider

import (
	"image/color"
	"math/cmplx"

	"github.com/tilepyramid/engine/internal/rasterimg"
)

// Checkerboard is a reference Generator producing a deterministic
// checkerboard pattern whose square size halves with each level, grounded
// on ferndynamictileprovider.py's role as the example dynamic provider.
type Checkerboard struct {
	Size int // tile size, defaults to 256
}

func (c Checkerboard) tileSize() int {
	if c.Size <= 0 {
		return 256
	}
	return c.Size
}

func (c Checkerboard) TileSize() int        { return c.tileSize() }
func (c Checkerboard) FileExt() string      { return "png" }
func (c Checkerboard) AspectRatio() float64 { return 1 }
func (c Checkerboard) MaxLevel() (int, bool) { return 0, false }

func (c Checkerboard) Generate(level, row, col int) (rasterimg.Tile, error) {
	n := c.tileSize()
	tile := rasterimg.New(n, n)
	img := tile.Image().(interface {
		Set(x, y int, c color.Color)
	})

	// square size shrinks as level increases, so zooming in reveals finer
	// checkerboard detail rather than a blown-up blur.
	square := n >> uint(level)
	if square < 1 {
		square = 1
	}

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			gx := (col*n + x) / square
			gy := (row*n + y) / square
			if (gx+gy)%2 == 0 {
				img.Set(x, y, color.White)
			} else {
				img.Set(x, y, color.Black)
			}
		}
	}
	return tile, nil
}

// Mandelbrot is a reference Generator rendering the Mandelbrot set as an
// infinite zoomable pyramid: level controls zoom depth, row/col select
// the quadrant within the complex plane at that depth.
type Mandelbrot struct {
	Size       int
	Iterations int
}

func (m Mandelbrot) tileSize() int {
	if m.Size <= 0 {
		return 256
	}
	return m.Size
}

func (m Mandelbrot) iterations() int {
	if m.Iterations <= 0 {
		return 100
	}
	return m.Iterations
}

func (m Mandelbrot) TileSize() int          { return m.tileSize() }
func (m Mandelbrot) FileExt() string        { return "png" }
func (m Mandelbrot) AspectRatio() float64   { return 1 }
func (m Mandelbrot) MaxLevel() (int, bool)  { return 0, false }

func (m Mandelbrot) Generate(level, row, col int) (rasterimg.Tile, error) {
	n := m.tileSize()
	tile := rasterimg.New(n, n)
	img := tile.Image().(interface {
		Set(x, y int, c color.Color)
	})

	// the plane spans [-2,2]x[-2,2] at level 0, halving per level and
	// translating by (row,col) so each quadrant is addressed uniquely.
	span := 4.0 / float64(int(1)<<uint(level))
	originX := -2.0 + float64(col)*span
	originY := -2.0 + float64(row)*span
	maxIter := m.iterations()

	for py := 0; py < n; py++ {
		for px := 0; px < n; px++ {
			cx := originX + span*float64(px)/float64(n)
			cy := originY + span*float64(py)/float64(n)
			iter := mandelbrotEscape(complex(cx, cy), maxIter)
			img.Set(px, py, shade(iter, maxIter))
		}
	}
	return tile, nil
}

func mandelbrotEscape(c complex128, maxIter int) int {
	z := complex(0, 0)
	for i := 0; i < maxIter; i++ {
		if cmplx.Abs(z) > 2 {
			return i
		}
		z = z*z + c
	}
	return maxIter
}

func shade(iter, maxIter int) color.Color {
	if iter >= maxIter {
		return color.Black
	}
	v := uint8(255 * iter / maxIter)
	return color.RGBA{R: v, G: v, B: 255 - v, A: 255}
}
