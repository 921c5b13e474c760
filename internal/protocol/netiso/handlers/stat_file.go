package handlers

import (
	"context"

	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
	"github.com/marmos91/ps3netsrv/pkg/vfs"
)

const statFileResponseSize = 8 + 8 + 8 + 8 + 1

// StatFile handles STAT_FILE:
//
//	size i64, mtime i64, ctime i64, atime i64, is_dir u8
//
// The resolved target becomes the read handle, so a stat can be followed
// directly by reads. Directories report size 0 and ctime = atime = mtime.
// Files report OS creation and access times when the handle offers them,
// mtime otherwise. A miss reports size -1 with zero times.
func StatFile(ctx context.Context, s *Session, req *Request) (*Response, error) {
	path, err := readPath(req.Body, req.Header.PathLen())
	if err != nil {
		return resultResponse(false), err
	}

	s.setReadHandle(nil)

	entry, err := openEntry(s, path)
	if err != nil {
		w := wire.NewWriter(statFileResponseSize)
		w.Int64(-1).Int64(0).Int64(0).Int64(0).Bool(false)
		return writerResponse(w), err
	}
	s.setReadHandle(entry)

	mtime := unixSeconds(entry.ModTime())
	ctime, atime := mtime, mtime
	size := entry.Size()

	if entry.IsDir() {
		size = 0
	} else if et, ok := entry.(vfs.ExtendedTimes); ok {
		if c, a, ok := et.Times(); ok {
			ctime, atime = unixSeconds(c), unixSeconds(a)
		}
	}

	w := wire.NewWriter(statFileResponseSize)
	w.Int64(size).Int64(mtime).Int64(ctime).Int64(atime).Bool(entry.IsDir())
	return writerResponse(w), nil
}
