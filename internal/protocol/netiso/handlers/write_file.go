package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
)

// WriteFile handles WRITE_FILE: Length payload bytes follow the header and
// are appended to the write handle. The response is the number of bytes
// written as an i32.
//
// A read-only server, a missing write handle or Length above MaxTransfer
// answer -1 without reading the payload. Unread payload would be parsed as
// the next request, so those rejections close the connection unless Length
// is 0. A short payload or a failed write also closes it.
func WriteFile(ctx context.Context, s *Session, req *Request) (*Response, error) {
	length := req.Header.Length()

	var reject error
	switch {
	case s.readOnly:
		reject = fmt.Errorf("%w: WRITE_FILE", wire.ErrReadOnly)
	case s.writeFile == nil:
		reject = fmt.Errorf("%w: WRITE_FILE", wire.ErrNoHandle)
	case length > wire.MaxTransfer:
		reject = fmt.Errorf("%w: write of %d bytes exceeds %d", wire.ErrProtocol, length, wire.MaxTransfer)
	}
	if reject != nil {
		if length > 0 {
			reject = wire.Fatal(reject)
		}
		return resultResponse(false), reject
	}

	buf := wire.GetBuffer(length)
	defer wire.PutBuffer(buf)

	if _, err := io.ReadFull(req.Body, buf); err != nil {
		return resultResponse(false), wire.Fatal(fmt.Errorf("%w: payload of %d bytes: %v", wire.ErrProtocol, length, err))
	}

	n, err := s.writeFile.Write(buf)
	if err != nil {
		return resultResponse(false), wire.Fatal(fmt.Errorf("%w: write %d bytes: %v", wire.ErrFileSystem, length, err))
	}

	w := wire.NewWriter(4)
	w.Int32(int32(n))
	resp := writerResponse(w)
	resp.BytesWritten = int64(n)
	return resp, nil
}
