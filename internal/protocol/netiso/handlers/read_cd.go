package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
)

// cdUserDataSize is the payload of one logical CD sector.
const cdUserDataSize = 2048

// MaxCDSectors bounds SectorCount of READ_CD_2048_CRITICAL.
const MaxCDSectors = wire.MaxTransfer / cdUserDataSize

// ReadCD2048 handles READ_CD_2048_CRITICAL.
//
// Logical sector i lives at i*SectorSize()+UserDataOffset() of the read
// handle; its 2048 user bytes are concatenated into the response. Sectors
// past the end of the image contribute what can be read, possibly nothing,
// so the response may be shorter than SectorCount*2048.
//
// A missing handle, too many sectors or an I/O error close the connection.
func ReadCD2048(ctx context.Context, s *Session, req *Request) (*Response, error) {
	start, count := req.Header.StartSector(), req.Header.SectorCount()

	if count > MaxCDSectors {
		return nil, wire.Fatal(fmt.Errorf("%w: %d sectors exceeds %d", wire.ErrProtocol, count, MaxCDSectors))
	}
	if s.file == nil {
		return nil, wire.Fatal(fmt.Errorf("%w: READ_CD_2048_CRITICAL", wire.ErrNoHandle))
	}

	size := int64(s.sectorSize)
	skip := s.sectorSize.UserDataOffset()

	w := wire.NewWriter(int(count) * cdUserDataSize)
	for i := int64(0); i < int64(count); i++ {
		off := (int64(start)+i)*size + skip

		chunk := w.Extend(cdUserDataSize)
		n, err := s.file.ReadAt(chunk, off)
		w.Truncate(w.Len() - cdUserDataSize + n)

		if err != nil && !errors.Is(err, io.EOF) {
			w.Release()
			return nil, wire.Fatal(fmt.Errorf("%w: read sector %d: %v", wire.ErrFileSystem, int64(start)+i, err))
		}
	}

	resp := writerResponse(w)
	resp.BytesRead = int64(w.Len())
	return resp, nil
}
