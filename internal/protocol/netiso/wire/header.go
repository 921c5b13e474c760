package wire

import (
	"fmt"
	"io"
)

const (
	// HeaderSize is the fixed request header length, opcode included.
	HeaderSize = 16

	// MaxTransfer bounds every read and write payload (BUFFER_SIZE).
	MaxTransfer = 4 << 20

	// BytesToSkip is the raw CD sector prefix before 2048 bytes of user data.
	BytesToSkip = 24

	// MaxDirEntries caps a READ_DIR listing.
	MaxDirEntries = 4096

	// DirEntryNameSize is the fixed, zero-padded name field of a READ_DIR record.
	DirEntryNameSize = 512

	// DirEntrySize is one READ_DIR record: size, mtime, is_dir and the name.
	DirEntrySize = 8 + 8 + 1 + DirEntryNameSize
)

// Header is a decoded request header.
//
// Fields after the opcode are positional. Accessors name them the way each
// command interprets them:
//
//	path commands:      PathLen            (bytes 2-3)
//	read commands:      Length, Offset     (bytes 4-7, 8-15)
//	READ_CD_2048:       StartSector, SectorCount (bytes 4-7, 8-11)
//	WRITE_FILE:         Length             (bytes 4-7)
type Header struct {
	Opcode Opcode
	Data   [HeaderSize - 2]byte
}

// ReadHeader reads exactly HeaderSize bytes from r.
//
// io.EOF is returned unchanged when the stream ends before the first byte,
// so callers can treat it as a clean disconnect. A partial header is an
// ErrProtocol failure.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			return Header{}, io.EOF
		}
		return Header{}, fmt.Errorf("%w: read header: %w", ErrProtocol, err)
	}
	return ParseHeader(buf), nil
}

// ParseHeader decodes a raw header.
func ParseHeader(buf [HeaderSize]byte) Header {
	h := Header{Opcode: Opcode(Uint16(buf[0:2]))}
	copy(h.Data[:], buf[2:])
	return h
}

// Bytes encodes the header. Used by clients and tests.
func (h Header) Bytes() [HeaderSize]byte {
	var buf [HeaderSize]byte
	PutUint16(buf[0:2], uint16(h.Opcode))
	copy(buf[2:], h.Data[:])
	return buf
}

// PathLen is the fp_len/dp_len field of path commands.
func (h Header) PathLen() uint16 { return Uint16(h.Data[0:2]) }

// Length is num_bytes of the read and write commands.
func (h Header) Length() uint32 { return Uint32(h.Data[2:6]) }

// Offset is the byte offset of the read commands.
func (h Header) Offset() uint64 { return Uint64(h.Data[6:14]) }

// StartSector is the first sector of READ_CD_2048_CRITICAL.
func (h Header) StartSector() uint32 { return Uint32(h.Data[2:6]) }

// SectorCount is the sector count of READ_CD_2048_CRITICAL.
func (h Header) SectorCount() uint32 { return Uint32(h.Data[6:10]) }

// PathHeader builds a header for a command followed by a path of n bytes.
func PathHeader(op Opcode, n int) Header {
	h := Header{Opcode: op}
	PutUint16(h.Data[0:2], uint16(n))
	return h
}

// ReadHeaderFor builds a READ_FILE or READ_FILE_CRITICAL header.
func ReadHeaderFor(op Opcode, length uint32, offset uint64) Header {
	h := Header{Opcode: op}
	PutUint32(h.Data[2:6], length)
	PutUint64(h.Data[6:14], offset)
	return h
}

// CDHeader builds a READ_CD_2048_CRITICAL header.
func CDHeader(start, count uint32) Header {
	h := Header{Opcode: OpReadCD2048Critical}
	PutUint32(h.Data[2:6], start)
	PutUint32(h.Data[6:10], count)
	return h
}

// WriteHeader builds a WRITE_FILE header.
func WriteHeader(length uint32) Header {
	h := Header{Opcode: OpWriteFile}
	PutUint32(h.Data[2:6], length)
	return h
}
