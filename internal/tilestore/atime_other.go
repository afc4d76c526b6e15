//go:build !unix

package tilestore

import (
	"io/fs"
	"time"
)

// atimeOf has no portable equivalent outside unix (syscall.Stat_t.Atim
// doesn't exist on Windows' os.fileStat); callers fall back to mtime
// alone on these platforms via the max() in MostRecentAccess.
func atimeOf(info fs.FileInfo) time.Time {
	return time.Time{}
}
