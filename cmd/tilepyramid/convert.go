package main

import (
	"context"
	"flag"
	"log"

	"github.com/google/subcommands"

	"github.com/tilepyramid/engine/internal/conversion"
	"github.com/tilepyramid/engine/internal/manager"
)

type convertCmd struct {
	inputPath string
	mediaID   string
	root      string
	tileSize  int
	fileExt   string
	rotation  int
	invert    bool
	mono      bool
	workers   int
}

func (c *convertCmd) Name() string { return "convert" }
func (c *convertCmd) Synopsis() string {
	return "normalize a source image and tile it in one step"
}
func (c *convertCmd) Usage() string {
	return "tilepyramid convert -in <path> -media <id> [-rotation 0|90|180|270] [-invert] [-mono]\n"
}
func (c *convertCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "in", "", "Input source image path")
	f.StringVar(&c.mediaID, "media", "", "Target media_id")
	f.StringVar(&c.root, "root", "", "TileStore root directory (default platform tilestore dir)")
	f.IntVar(&c.tileSize, "tilesize", 256, "Tile size in pixels")
	f.StringVar(&c.fileExt, "ext", "jpg", "Tile file extension (jpg, png)")
	f.IntVar(&c.rotation, "rotation", 0, "Rotation in degrees (0, 90, 180, 270)")
	f.BoolVar(&c.invert, "invert", false, "Invert colors during normalization")
	f.BoolVar(&c.mono, "mono", false, "Convert to monochrome during normalization")
	f.IntVar(&c.workers, "workers", 0, "ConversionRunner pool size (default min(NumCPU,4))")
}

func (c *convertCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.inputPath == "" || c.mediaID == "" {
		log.Println("convert: -in and -media are required")
		return subcommands.ExitUsageError
	}

	store, err := openStore(c.root)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	runner := conversion.NewRunner(c.workers, conversion.SelfExecWorker{})
	defer runner.Shutdown()

	mgr := manager.New(store, runner, manager.Config{})
	defer mgr.Shutdown()

	err = mgr.ConvertAndTile(ctx, c.inputPath, c.mediaID, manager.ConvertOptions{
		TileSize: c.tileSize,
		FileExt:  c.fileExt,
		Rotation: c.rotation,
		Invert:   c.invert,
		Mono:     c.mono,
	})
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}
