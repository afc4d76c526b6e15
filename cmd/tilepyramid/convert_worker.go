package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/tilepyramid/engine/internal/rasterimg"
)

// convertWorkerCmd is the hidden re-exec target conversion.SelfExecWorker
// spawns as a freshly started process per job (never forked), so a
// decoder library's internal thread pool can never conflict with the
// provider workers running in the parent process (§4.4, §9 DESIGN NOTES).
// Its flag surface mirrors defaultArgs in internal/conversion/runner.go
// exactly.
type convertWorkerCmd struct {
	in       string
	out      string
	kind     string
	rotation int
	invert   bool
	mono     bool
	dpi      int
}

func (c *convertWorkerCmd) Name() string     { return "__convert-worker" }
func (c *convertWorkerCmd) Synopsis() string { return "internal: runs one conversion job in an isolated process" }
func (c *convertWorkerCmd) Usage() string    { return "tilepyramid __convert-worker -in <path> -out <path> -kind image|document ...\n" }
func (c *convertWorkerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.in, "in", "", "Source asset path")
	f.StringVar(&c.out, "out", "", "Output normalized PPM raster path")
	f.StringVar(&c.kind, "kind", "image", "Job kind: image or document")
	f.IntVar(&c.rotation, "rotation", 0, "Rotation in degrees (0, 90, 180, 270)")
	f.BoolVar(&c.invert, "invert", false, "Invert colors")
	f.BoolVar(&c.mono, "mono", false, "Convert to monochrome")
	f.IntVar(&c.dpi, "dpi", 150, "Rasterization DPI (document kind only)")
}

func (c *convertWorkerCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.in == "" || c.out == "" {
		log.Println("__convert-worker: -in and -out are required")
		return subcommands.ExitUsageError
	}

	var img image.Image
	var err error
	switch c.kind {
	case "image":
		img, err = decodeImage(c.in)
	case "document":
		img, err = rasterizeDocumentStub(c.dpi)
	default:
		log.Printf("__convert-worker: unknown kind %q", c.kind)
		return subcommands.ExitUsageError
	}
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	img = applyRotation(img, c.rotation)
	if c.invert {
		img = applyInvert(img)
	}
	if c.mono {
		img = applyMono(img)
	}

	f, err := os.Create(c.out)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer f.Close()

	if err := rasterimg.WritePPM(f, img); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	if err := f.Close(); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("__convert-worker: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("__convert-worker: decoding %s: %w", path, err)
	}
	return img, nil
}

func init() {
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
	image.RegisterFormat("tiff", "II*\x00", tiff.Decode, tiff.DecodeConfig)
	image.RegisterFormat("tiff", "MM\x00*", tiff.Decode, tiff.DecodeConfig)
}

// rasterizeDocumentStub stands in for a real PDF/vips-backed document
// rasterizer (out of scope — §1 Non-goals excludes "actual pixel-decoding
// libraries"). It produces a single blank US-Letter page at the requested
// DPI so the rest of the convert-then-tile pipeline has a concrete raster
// to exercise; a real backend slots in behind the same RasterDecoder-style
// contract without touching ConversionRunner.
func rasterizeDocumentStub(dpi int) (image.Image, error) {
	if dpi <= 0 {
		dpi = 150
	}
	width := dpi * 85 / 10  // 8.5in
	height := dpi * 11      // 11in
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return img, nil
}

func applyRotation(img image.Image, degrees int) image.Image {
	switch ((degrees % 360) + 360) % 360 {
	case 90:
		return rotate90(img)
	case 180:
		return rotate180(img)
	case 270:
		return rotate90(rotate180(img))
	default:
		return img
	}
}

func rotate90(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.Y-1-y, x-b.Min.X, img.At(x, y))
		}
	}
	return dst
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.X-1-(x-b.Min.X), b.Max.Y-1-(y-b.Min.Y), img.At(x, y))
		}
	}
	return dst
}

func applyInvert(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			dst.Set(x, y, color.RGBA64{R: 0xffff - uint16(r), G: 0xffff - uint16(g), B: 0xffff - uint16(bl), A: uint16(a)})
		}
	}
	return dst
}

func applyMono(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray := color.GrayModel.Convert(img.At(x, y))
			dst.Set(x, y, gray)
		}
	}
	return dst
}
