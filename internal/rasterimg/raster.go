package rasterimg

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"io"
)

// rgbColor is an opaque 8-bit RGB color.Color, used when compositing raw
// PPM scanline bytes into a Tile's RGBA buffer.
type rgbColor struct {
	r, g, b uint8
}

func (c rgbColor) RGBA() (r, g, b, a uint32) {
	return uint32(c.r) * 0x101, uint32(c.g) * 0x101, uint32(c.b) * 0x101, 0xffff
}

var _ color.Color = rgbColor{}

// Raster is the streamable input a Tiler consumes: known dimensions plus a
// row-at-a-time iterator yielding exactly Width()*3 bytes of interleaved RGB
// per call. Implementations must be consumed strictly in order — each call
// to NextScanline returns the next row down from the previous one.
type Raster interface {
	Width() int
	Height() int
	// NextScanline returns the next row's raw RGB bytes, or io.EOF once all
	// Height() rows have been returned.
	NextScanline() ([]byte, error)
}

// PPMRaster reads a binary PPM (P6, maxval 255) stream as a Raster. PPM is
// the normalized format ConversionRunner produces for Tiler to consume.
type PPMRaster struct {
	r      *bufio.Reader
	width  int
	height int
	row    int
}

// NewPPMRaster parses a P6 PPM header from r and returns a Raster over the
// remaining scanline data.
func NewPPMRaster(r io.Reader) (*PPMRaster, error) {
	br := bufio.NewReaderSize(r, 64<<10)

	var magic string
	var width, height, maxval int
	if _, err := fmt.Fscan(br, &magic, &width, &height, &maxval); err != nil {
		return nil, fmt.Errorf("rasterimg: invalid PPM header: %w", err)
	}
	if magic != "P6" {
		return nil, fmt.Errorf("rasterimg: can only load binary PPM (P6 format), got %q", magic)
	}
	if maxval != 255 {
		return nil, fmt.Errorf("rasterimg: PPM maxval must equal 255, got %d", maxval)
	}
	// a single whitespace byte separates the header from the binary payload.
	if _, err := br.ReadByte(); err != nil {
		return nil, fmt.Errorf("rasterimg: truncated PPM header: %w", err)
	}

	return &PPMRaster{r: br, width: width, height: height}, nil
}

func (p *PPMRaster) Width() int  { return p.width }
func (p *PPMRaster) Height() int { return p.height }

func (p *PPMRaster) NextScanline() ([]byte, error) {
	if p.row >= p.height {
		return nil, io.EOF
	}
	buf := make([]byte, p.width*3)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return nil, fmt.Errorf("rasterimg: short read at row %d: %w", p.row, err)
	}
	p.row++
	return buf, nil
}

// WritePPM encodes img as a binary PPM (P6, maxval 255) stream, the
// normalized format ConversionRunner's workers hand off to Tiler. Row order
// follows img's bounds top-to-bottom, matching what NewPPMRaster expects to
// read back.
func WritePPM(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	bw := bufio.NewWriterSize(w, 64<<10)
	if _, err := fmt.Fprintf(bw, "P6\n%d %d\n255\n", width, height); err != nil {
		return fmt.Errorf("rasterimg: %w", err)
	}

	row := make([]byte, width*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			i := (x - bounds.Min.X) * 3
			row[i] = uint8(r >> 8)
			row[i+1] = uint8(g >> 8)
			row[i+2] = uint8(b >> 8)
		}
		if _, err := bw.Write(row); err != nil {
			return fmt.Errorf("rasterimg: %w", err)
		}
	}
	return bw.Flush()
}

// TileFromScanlines builds a Tile of (width, height) from a buffer of
// height rows of width*3 interleaved RGB bytes, padding with black if the
// buffer is short (used for the rightmost/bottommost partial edge tiles).
func TileFromScanlines(rows [][]byte, width, height int) Tile {
	tile := FillBlack(width, height)
	for y, row := range rows {
		if y >= height {
			break
		}
		n := min(len(row)/3, width)
		for x := range n {
			i := x * 3
			tile.img.Set(x, y, rgbColor{row[i], row[i+1], row[i+2]})
		}
	}
	return tile
}
