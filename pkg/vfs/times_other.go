//go:build !linux && !darwin

package vfs

import (
	"os"
	"time"
)

// No lookup is wired for this OS; StatFile falls back to mtime.
const nativePlatform Platform = -1

func osTimes(string) (ctime, atime time.Time, ok bool) {
	return time.Time{}, time.Time{}, false
}

func statTimes(os.FileInfo) (ctime, atime time.Time, ok bool) {
	return time.Time{}, time.Time{}, false
}
