// Package cleanup implements age-based disk reclamation over a
// tilestore.Store: it deletes any media directory whose most recently
// touched file is older than a threshold, freeing disk space from media
// no longer referenced by any scene. Grounded on pyzui's cleanup pass in
// tilemanager.py (invoked at shutdown by default, so startup stays fast),
// serialized on the same disk mutex tilestore.Store uses for writes since
// deleting a media directory competes with in-flight tile saves.
package cleanup

import (
	"time"

	"github.com/tilepyramid/engine/internal/tilestore"
)

// Report summarizes one cleanup pass.
type Report struct {
	DeletedMediaCount int
	KeptMediaCount    int
	FreedBytes        int64

	// BeforeStats/AfterStats are populated only when Options.CollectStats
	// is set; both are the zero value otherwise.
	BeforeStats tilestore.Stats
	AfterStats  tilestore.Stats

	// Failures records per-media errors (reading access times or sizes,
	// and deletion errors when DryRun is false), keyed by media hash; the
	// run continues past them rather than aborting,
	// matching the "non-zero exit on cleanup I/O failure" CLI contract
	// without letting one bad directory block reclaiming the rest.
	Failures map[string]error
}

// Options configures a Run.
type Options struct {
	MaxAge       time.Duration
	DryRun       bool
	CollectStats bool
}

// Run scans store's root and deletes every media directory whose most
// recent file access (the later of atime and mtime) is older than opts.MaxAge, unless opts.DryRun is set,
// in which case candidates are reported but nothing is deleted.
func Run(store *tilestore.Store, opts Options) (Report, error) {
	report := Report{Failures: make(map[string]error)}

	if opts.CollectStats {
		before, err := store.Stats()
		if err != nil {
			return report, err
		}
		report.BeforeStats = before
	}

	hashes, err := store.MediaHashes()
	if err != nil {
		return report, err
	}

	now := time.Now()
	for _, hash := range hashes {
		latest, err := store.MostRecentAccessHash(hash)
		if err != nil {
			report.Failures[hash] = err
			continue
		}
		if now.Sub(latest) <= opts.MaxAge {
			report.KeptMediaCount++
			continue
		}

		size, err := store.DirSize(hash)
		if err != nil {
			report.Failures[hash] = err
			continue
		}

		if opts.DryRun {
			report.DeletedMediaCount++
			report.FreedBytes += size
			continue
		}

		if err := store.DeleteMediaHash(hash); err != nil {
			report.Failures[hash] = err
			continue
		}
		report.DeletedMediaCount++
		report.FreedBytes += size
	}

	if opts.CollectStats {
		after, err := store.Stats()
		if err != nil {
			return report, err
		}
		report.AfterStats = after
	}

	return report, nil
}
