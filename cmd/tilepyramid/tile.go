package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/google/subcommands"

	"github.com/tilepyramid/engine/internal/rasterimg"
	"github.com/tilepyramid/engine/internal/tiler"
)

type tileCmd struct {
	inputPath string
	mediaID   string
	root      string
	tileSize  int
	fileExt   string
}

func (c *tileCmd) Name() string     { return "tile" }
func (c *tileCmd) Synopsis() string { return "build a tile pyramid from a PPM raster stream" }
func (c *tileCmd) Usage() string {
	return "tilepyramid tile -in <path.ppm> -media <id> [-tilesize 256] [-ext jpg]\n"
}
func (c *tileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "in", "", "Input binary PPM (P6) file")
	f.StringVar(&c.mediaID, "media", "", "Target media_id")
	f.StringVar(&c.root, "root", "", "TileStore root directory (default platform tilestore dir)")
	f.IntVar(&c.tileSize, "tilesize", 256, "Tile size in pixels")
	f.StringVar(&c.fileExt, "ext", "jpg", "Tile file extension (jpg, png)")
}

func (c *tileCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.inputPath == "" || c.mediaID == "" {
		log.Println("tile: -in and -media are required")
		return subcommands.ExitUsageError
	}

	store, err := openStore(c.root)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	f, err := os.Open(c.inputPath)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer f.Close()

	raster, err := rasterimg.NewPPMRaster(f)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	t := tiler.New(store, c.mediaID, tiler.Options{
		TileSize:     c.tileSize,
		FileExt:      c.fileExt,
		ShowProgress: true,
	})
	if err := t.Run(raster); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}
