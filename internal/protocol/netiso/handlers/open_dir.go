package handlers

import (
	"context"

	"github.com/marmos91/ps3netsrv/internal/logger"
)

// OpenDir handles OPEN_DIR.
//
// The path is remembered for READ_DIR and any pending listing is dropped.
// The first match becomes the read handle. The response is 0 when that
// match is a directory and -1 otherwise; a file match is still kept as the
// read handle.
func OpenDir(ctx context.Context, s *Session, req *Request) (*Response, error) {
	path, err := readPath(req.Body, req.Header.PathLen())
	if err != nil {
		return resultResponse(false), err
	}

	s.clientPath, s.pathSet = path, true
	s.dir.Reset()

	entry, found, err := s.resolver.ResolveFirst(path)
	if err != nil {
		s.log.Debug("OPEN_DIR resolve failed", logger.KeyPath, path, logger.KeyError, err)
	}
	if !found {
		s.SetFile(nil)
		return resultResponse(false), nil
	}

	s.SetFile(entry)
	return resultResponse(entry.IsDir()), nil
}
