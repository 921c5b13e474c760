package handlers

import (
	"context"
	"fmt"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
	"github.com/marmos91/ps3netsrv/pkg/vfs"
)

// DeleteFile handles DELETE_FILE. Only regular files under the primary
// root are removed.
func DeleteFile(ctx context.Context, s *Session, req *Request) (*Response, error) {
	return mutatePath(s, req, "DELETE_FILE", func(target string) error {
		info, err := s.resolver.FS().Stat(target)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return vfs.ErrIsDirectory
		}
		return s.resolver.FS().Remove(target)
	})
}

// Mkdir handles MKDIR. The parent must exist.
func Mkdir(ctx context.Context, s *Session, req *Request) (*Response, error) {
	return mutatePath(s, req, "MKDIR", func(target string) error {
		return s.resolver.FS().Mkdir(target, 0o755)
	})
}

// Rmdir handles RMDIR. Only empty directories under the primary root are
// removed.
func Rmdir(ctx context.Context, s *Session, req *Request) (*Response, error) {
	return mutatePath(s, req, "RMDIR", func(target string) error {
		info, err := s.resolver.FS().Stat(target)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s: not a directory", target)
		}
		return s.resolver.FS().Remove(target)
	})
}

// mutatePath reads the path payload and applies op to its primary-root
// location. Read-only servers answer -1 after consuming the path, and the
// connection continues either way.
func mutatePath(s *Session, req *Request, command string, op func(target string) error) (*Response, error) {
	path, err := readPath(req.Body, req.Header.PathLen())
	if err != nil {
		return resultResponse(false), err
	}

	if s.readOnly {
		return resultResponse(false), fmt.Errorf("%w: %s %s", wire.ErrReadOnly, command, path)
	}

	target := s.resolver.ResolveForWrite(path)
	if err := op(target); err != nil {
		return resultResponse(false), fmt.Errorf("%w: %s %s: %v", wire.ErrFileSystem, command, path, err)
	}

	s.log.Debug("Path modified", logger.KeyCommand, command, logger.KeyPath, target)
	return resultResponse(true), nil
}
