//go:build linux

package vfs

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const nativePlatform = PlatformLinux

// osTimes reads birth and access time with statx. Filesystems without birth
// time support report the modification time as creation time.
func osTimes(path string) (ctime, atime time.Time, ok bool) {
	var stx unix.Statx_t
	mask := unix.STATX_BTIME | unix.STATX_ATIME | unix.STATX_MTIME
	if err := unix.Statx(unix.AT_FDCWD, path, unix.AT_STATX_SYNC_AS_STAT, mask, &stx); err != nil {
		return time.Time{}, time.Time{}, false
	}

	if stx.Mask&unix.STATX_BTIME != 0 {
		ctime = time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	} else {
		ctime = time.Unix(stx.Mtime.Sec, int64(stx.Mtime.Nsec))
	}
	atime = time.Unix(stx.Atime.Sec, int64(stx.Atime.Nsec))
	return ctime, atime, true
}

// statTimes reads access time from the stat record of an OS-backed file.
func statTimes(info os.FileInfo) (ctime, atime time.Time, ok bool) {
	st, isOS := info.Sys().(*syscall.Stat_t)
	if !isOS {
		return time.Time{}, time.Time{}, false
	}
	return info.ModTime(), time.Unix(st.Atim.Unix()), true
}
