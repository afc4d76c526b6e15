// Command tilepyramid exposes the tile pyramid engine's headless surface:
// building a pyramid from a raster, running the convert-then-tile
// pipeline, a scripted request/fetch demo against a live TileManager,
// on-disk cleanup, and archive export/import. Grounded on the teacher's
// cmd/tileutils command layout.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&tileCmd{}, "")
	subcommands.Register(&convertCmd{}, "")
	subcommands.Register(&serveDemoCmd{}, "")
	subcommands.Register(&cleanupCmd{}, "")
	subcommands.Register(&exportCmd{}, "")
	subcommands.Register(&importXYZCmd{}, "")
	subcommands.Register(&convertWorkerCmd{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
