package handlers

import (
	"context"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
)

const openFileResponseSize = 8 + 8

// OpenFile handles OPEN_FILE:
//
//	size i64, mtime i64
//
// The current read handle is always closed first. An empty path or
// CloseFilePath only closes it. Otherwise the path is resolved like
// STAT_FILE and, when it names a file, becomes the read handle with its CD
// sector mode probed. Misses and directories report size -1.
func OpenFile(ctx context.Context, s *Session, req *Request) (*Response, error) {
	path, err := readPath(req.Body, req.Header.PathLen())
	if err != nil {
		return resultResponse(false), err
	}

	s.setReadHandle(nil)

	if path == "" || path == CloseFilePath {
		return openFileResponse(-1, 0), nil
	}

	entry, err := openEntry(s, path)
	if err != nil {
		return openFileResponse(-1, 0), err
	}
	if entry.IsDir() {
		_ = entry.Close()
		return openFileResponse(-1, 0), nil
	}

	s.setReadHandle(entry)
	s.log.Debug("File opened",
		logger.KeyPath, path,
		logger.KeySize, entry.Size(),
		logger.KeySectorSize, uint32(s.sectorSize))
	return openFileResponse(entry.Size(), unixSeconds(entry.ModTime())), nil
}

func openFileResponse(size, mtime int64) *Response {
	w := wire.NewWriter(openFileResponseSize)
	w.Int64(size).Int64(mtime)
	return writerResponse(w)
}
