package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/subcommands"

	"github.com/tilepyramid/engine/internal/xyzimport"
)

// importXYZCmd bulk-imports a third-party "{z}/{x}/{y}.ext" tile directory
// directly into a TileStore, per §4.9, so it becomes servable by
// TileManager without re-tiling.
type importXYZCmd struct {
	root    string
	mediaID string
	pattern string
	ext     string
}

func (c *importXYZCmd) Name() string { return "import-xyz" }
func (c *importXYZCmd) Synopsis() string {
	return "bulk-import a foreign {z}/{x}/{y}.ext tile directory into a TileStore"
}
func (c *importXYZCmd) Usage() string {
	return "tilepyramid import-xyz -media <id> -pattern '/data/tiles/{z}/{x}/{y}.png' -ext png\n"
}
func (c *importXYZCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.root, "root", "", "TileStore root directory (default platform tilestore dir)")
	f.StringVar(&c.mediaID, "media", "", "Target media_id for the imported pyramid")
	f.StringVar(&c.pattern, "pattern", "", "Source file pattern, containing {x}, {y}, {z} placeholders")
	f.StringVar(&c.ext, "ext", "png", "Tile file extension matched by pattern")
}

func (c *importXYZCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.mediaID == "" || c.pattern == "" {
		log.Println("import-xyz: -media and -pattern are required")
		return subcommands.ExitUsageError
	}

	store, err := openStore(c.root)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	if err := xyzimport.Import(store, c.mediaID, c.pattern, c.ext); err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("imported %s -> media %s\n", c.pattern, c.mediaID)
	return subcommands.ExitSuccess
}
