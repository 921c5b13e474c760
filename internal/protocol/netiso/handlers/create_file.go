package handlers

import (
	"context"
	"fmt"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
	"github.com/marmos91/ps3netsrv/pkg/vfs"
)

// CreateFile handles CREATE_FILE: the path is resolved like a read, and the
// first match, in whichever root it lives, is truncated and becomes the
// write handle. Nothing is created for a path that does not resolve.
//
// Every failure answers -1 and closes the connection: a read-only server
// (the path is not read), a missing target, a directory, a virtual image
// target and a failed truncate.
func CreateFile(ctx context.Context, s *Session, req *Request) (*Response, error) {
	if s.readOnly {
		return resultResponse(false), wire.Fatal(fmt.Errorf("%w: CREATE_FILE", wire.ErrReadOnly))
	}

	path, err := readPath(req.Body, req.Header.PathLen())
	if err != nil {
		return resultResponse(false), err
	}

	s.SetWriteFile(nil)

	target, err := createTarget(s, path)
	if err != nil {
		return resultResponse(false), wire.Fatal(err)
	}

	f, err := vfs.Create(target.FS(), target.Path(), s.resolver.Platform())
	if err != nil {
		return resultResponse(false), wire.Fatal(fmt.Errorf("%w: %v", wire.ErrFileSystem, err))
	}

	s.SetWriteFile(f)
	s.log.Debug("File truncated for writing", logger.KeyPath, target.Path())
	return resultResponse(true), nil
}

// createTarget resolves the file CREATE_FILE may truncate.
func createTarget(s *Session, path string) (*vfs.RealFile, error) {
	if dir, ok := virtualTarget(path); ok {
		target, found, err := s.resolver.ResolveFirst(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", wire.ErrFileSystem, path, err)
		}
		if found && target.IsDir() {
			return nil, fmt.Errorf("%w: %s: virtual image is read-only", wire.ErrFileSystem, path)
		}
	}

	entry, found, err := s.resolver.ResolveFirst(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", wire.ErrFileSystem, path, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", wire.ErrNotFound, path)
	}
	if entry.IsDir() {
		return nil, fmt.Errorf("%w: %s: %v", wire.ErrFileSystem, path, vfs.ErrIsDirectory)
	}

	rf, ok := entry.(*vfs.RealFile)
	if !ok {
		return nil, fmt.Errorf("%w: %s: not a regular file", wire.ErrFileSystem, path)
	}
	return rf, nil
}
