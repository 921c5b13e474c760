package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
	"github.com/marmos91/ps3netsrv/pkg/vfs"
)

// ReadFileCritical handles READ_FILE_CRITICAL: exactly Length bytes at
// Offset of the read handle, sent without a prefix.
//
// The client has no way to learn about a failure, so a missing handle, an
// oversized request, a short read or an I/O error all close the connection.
func ReadFileCritical(ctx context.Context, s *Session, req *Request) (*Response, error) {
	length, offset := req.Header.Length(), req.Header.Offset()

	if s.file == nil {
		return nil, wire.Fatal(fmt.Errorf("%w: READ_FILE_CRITICAL", wire.ErrNoHandle))
	}
	if length > wire.MaxTransfer {
		return nil, wire.Fatal(fmt.Errorf("%w: read of %d bytes exceeds %d", wire.ErrProtocol, length, wire.MaxTransfer))
	}

	w := wire.NewWriter(int(length))
	if _, err := vfs.ReadFullAt(s.file, w.Extend(int(length)), int64(offset)); err != nil {
		w.Release()
		return nil, wire.Fatal(fmt.Errorf("%w: read %d bytes at %d: %v", wire.ErrFileSystem, length, offset, err))
	}

	resp := writerResponse(w)
	resp.BytesRead = int64(length)
	return resp, nil
}

// ReadFile handles READ_FILE, the best-effort read:
//
//	bytes_read i32, data [bytes_read]
//
// Reads that cross the end of the file return what exists. A missing handle,
// an oversized request or an I/O error answers -1 and the connection
// carries on.
func ReadFile(ctx context.Context, s *Session, req *Request) (*Response, error) {
	length, offset := req.Header.Length(), req.Header.Offset()

	if s.file == nil {
		return resultResponse(false), fmt.Errorf("%w: READ_FILE", wire.ErrNoHandle)
	}
	if length > wire.MaxTransfer {
		return resultResponse(false), fmt.Errorf("%w: read of %d bytes exceeds %d", wire.ErrProtocol, length, wire.MaxTransfer)
	}

	w := wire.NewWriter(4 + int(length))
	w.Int32(0)
	n, err := s.file.ReadAt(w.Extend(int(length)), int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		w.Release()
		return resultResponse(false), fmt.Errorf("%w: read %d bytes at %d: %v", wire.ErrFileSystem, length, offset, err)
	}

	w.Truncate(4 + n)
	wire.PutInt32(w.Data()[0:4], int32(n))

	resp := writerResponse(w)
	resp.BytesRead = int64(n)
	return resp, nil
}
