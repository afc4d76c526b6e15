package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/subcommands"

	"github.com/tilepyramid/engine/internal/mbarchive"
	"github.com/tilepyramid/engine/internal/pmarchive"
)

// exportCmd packs one media's on-disk pyramid into a single portable
// archive file, via either pmarchive (PMTiles v3) or mbarchive (MBTiles
// SQLite), per §4.9.
type exportCmd struct {
	root    string
	mediaID string
	out     string
	format  string
}

func (c *exportCmd) Name() string     { return "export" }
func (c *exportCmd) Synopsis() string { return "pack a media's tile pyramid into a PMTiles or MBTiles archive" }
func (c *exportCmd) Usage() string {
	return "tilepyramid export -media <id> -out <path> [-format pmtiles|mbtiles]\n"
}
func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.root, "root", "", "TileStore root directory (default platform tilestore dir)")
	f.StringVar(&c.mediaID, "media", "", "Source media_id, must already be tiled")
	f.StringVar(&c.out, "out", "", "Output archive path")
	f.StringVar(&c.format, "format", "pmtiles", "Archive format: pmtiles or mbtiles")
}

func (c *exportCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.mediaID == "" || c.out == "" {
		log.Println("export: -media and -out are required")
		return subcommands.ExitUsageError
	}

	store, err := openStore(c.root)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	switch c.format {
	case "pmtiles":
		err = pmarchive.Export(store, c.mediaID, c.out)
	case "mbtiles":
		err = mbarchive.Export(store, c.mediaID, c.out)
	default:
		log.Printf("export: unknown format %q, want pmtiles or mbtiles", c.format)
		return subcommands.ExitUsageError
	}
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("exported %s -> %s (%s)\n", c.mediaID, c.out, c.format)
	return subcommands.ExitSuccess
}
