//go:build darwin

package vfs

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const nativePlatform = PlatformDarwin

func osTimes(path string) (ctime, atime time.Time, ok bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(st.Btim.Unix()), time.Unix(st.Atim.Unix()), true
}

// statTimes reads birth and access time from the stat record of an
// OS-backed file.
func statTimes(info os.FileInfo) (ctime, atime time.Time, ok bool) {
	st, isOS := info.Sys().(*syscall.Stat_t)
	if !isOS {
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(st.Birthtimespec.Unix()), time.Unix(st.Atimespec.Unix()), true
}
