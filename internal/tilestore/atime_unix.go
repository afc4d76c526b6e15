//go:build unix

package tilestore

import (
	"io/fs"
	"syscall"
	"time"
)

// atimeOf extracts the last-access time from a FileInfo's underlying
// syscall.Stat_t, falling back to the zero Time if the platform's Sys()
// value isn't the expected type.
func atimeOf(info fs.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}
	}
	return time.Unix(stat.Atim.Sec, stat.Atim.Nsec)
}
