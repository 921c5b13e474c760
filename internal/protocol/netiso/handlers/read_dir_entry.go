package handlers

import (
	"context"

	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
)

// Sizes of the empty READ_DIR_ENTRY and READ_DIR_ENTRY_V2 replies.
const (
	dirEntryV1HeaderSize = 8 + 2 + 1
	dirEntryV2HeaderSize = 8 + 8 + 8 + 8 + 2 + 1
)

// ReadDirEntry handles READ_DIR_ENTRY: it pops the front of the listing
// queued by READ_DIR.
//
//	size i64, name_len u16, is_dir u8, name [name_len]
//
// An unset or drained queue yields the all-zero record with no name.
func ReadDirEntry(ctx context.Context, s *Session, req *Request) (*Response, error) {
	e, ok := s.dir.Pop()
	if !ok {
		return bytesResponse(make([]byte, dirEntryV1HeaderSize)), nil
	}

	name := []byte(truncateName(e.Name, 0xFFFF))
	w := wire.NewWriter(dirEntryV1HeaderSize + len(name))
	w.Int64(e.Size).Uint16(uint16(len(name))).Bool(e.IsDir).Bytes(name)
	return writerResponse(w), nil
}

// ReadDirEntryV2 handles READ_DIR_ENTRY_V2, which adds timestamps:
//
//	size i64, mtime i64, ctime i64, atime i64, name_len u16, is_dir u8, name
//
// ctime and atime repeat mtime.
func ReadDirEntryV2(ctx context.Context, s *Session, req *Request) (*Response, error) {
	e, ok := s.dir.Pop()
	if !ok {
		return bytesResponse(make([]byte, dirEntryV2HeaderSize)), nil
	}

	name := []byte(truncateName(e.Name, 0xFFFF))
	w := wire.NewWriter(dirEntryV2HeaderSize + len(name))
	w.Int64(e.Size).Int64(e.ModTime).Int64(e.ModTime).Int64(e.ModTime).
		Uint16(uint16(len(name))).Bool(e.IsDir).Bytes(name)
	return writerResponse(w), nil
}
