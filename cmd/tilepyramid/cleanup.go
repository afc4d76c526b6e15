package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/subcommands"

	"github.com/tilepyramid/engine/internal/cleanup"
)

// cleanupCmd invokes the cleanup subsystem directly, honoring the CLI
// surface named in §6: --no-cleanup, --cleanup-age N, --fast-cleanup.
type cleanupCmd struct {
	root         string
	noCleanup    bool
	cleanupAge   int
	fastCleanup  bool
	collectStats bool
}

func (c *cleanupCmd) Name() string     { return "cleanup" }
func (c *cleanupCmd) Synopsis() string { return "reclaim disk space from media not touched recently" }
func (c *cleanupCmd) Usage() string {
	return "tilepyramid cleanup [--no-cleanup] [--cleanup-age N] [--fast-cleanup] [--stats]\n"
}
func (c *cleanupCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.root, "root", "", "TileStore root directory (default platform tilestore dir)")
	f.BoolVar(&c.noCleanup, "no-cleanup", false, "Report what would be deleted without deleting (dry run)")
	f.IntVar(&c.cleanupAge, "cleanup-age", 3, "Delete media untouched for this many days")
	f.BoolVar(&c.fastCleanup, "fast-cleanup", false, "Skip before/after stats collection")
	f.BoolVar(&c.collectStats, "stats", false, "Collect before/after tilestore stats (overridden off by --fast-cleanup)")
}

func (c *cleanupCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	store, err := openStore(c.root)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	opts := cleanup.Options{
		MaxAge:       daysToDuration(c.cleanupAge),
		DryRun:       c.noCleanup,
		CollectStats: c.collectStats && !c.fastCleanup,
	}

	report, err := cleanup.Run(store, opts)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}

	fmt.Printf("deleted=%d kept=%d freed_bytes=%d\n", report.DeletedMediaCount, report.KeptMediaCount, report.FreedBytes)
	if opts.CollectStats {
		fmt.Printf("before: media=%d files=%d bytes=%d\n", report.BeforeStats.MediaCount, report.BeforeStats.FileCount, report.BeforeStats.Bytes)
		fmt.Printf("after:  media=%d files=%d bytes=%d\n", report.AfterStats.MediaCount, report.AfterStats.FileCount, report.AfterStats.Bytes)
	}

	if len(report.Failures) > 0 {
		for hash, failErr := range report.Failures {
			log.Printf("cleanup: %s: %v", hash, failErr)
		}
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}
