package iso

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/marmos91/ps3netsrv/pkg/vfs"
)

// ErrNotISO is returned by Inspect when no primary volume descriptor is found.
var ErrNotISO = errors.New("not an ISO9660 image")

// Image is the parsed top-level structure of an ISO9660 volume.
type Image struct {
	VolumeID      string
	VolumeSectors uint32
	BlockSize     uint16
	PathTableSize uint32
	PathTableL    uint32
	PathTableM    uint32
	PathTable     []PathTableEntry
	Root          Record
}

// PathTableEntry is one path table row. Parent is a 1-based row index.
type PathTableEntry struct {
	Name   string
	LBA    uint32
	Parent uint16
}

// Record is a decoded directory record. "." and ".." are reported by name.
type Record struct {
	Name   string
	LBA    uint32
	Size   uint32
	Flags  byte
	Length byte
	Date   [7]byte
}

// IsDir reports whether the record describes a directory.
func (r Record) IsDir() bool { return r.Flags&flagDirectory != 0 }

// MultiExtent reports whether another extent of the same file follows.
func (r Record) MultiExtent() bool { return r.Flags&flagMultiExtent != 0 }

// Inspect parses the volume descriptor and both path tables of an image.
// The two path tables must agree.
//
// Parameters:
//   - r: a 2048-byte sector image, virtual or on disk
//
// Returns:
//   - *Image: the volume id, size, root record and path table
//   - error: if sector 16 is not a primary volume descriptor, a both-endian
//     field disagrees with itself or the path tables differ
func Inspect(r io.ReaderAt) (*Image, error) {
	pvd := make([]byte, SectorSize)
	if _, err := vfs.ReadFullAt(r, pvd, pvdSector*SectorSize); err != nil {
		return nil, fmt.Errorf("read volume descriptor: %w", err)
	}
	if pvd[0] != 1 || !bytes.Equal(pvd[1:6], standardID) {
		return nil, ErrNotISO
	}

	img := &Image{
		VolumeID:      string(bytes.TrimRight(pvd[pvdVolumeID:pvdVolumeID+volumeIDFieldSize], "\x00 ")),
		VolumeSectors: binary.LittleEndian.Uint32(pvd[pvdVolumeSpace:]),
		BlockSize:     binary.LittleEndian.Uint16(pvd[pvdBlockSize:]),
		PathTableSize: binary.LittleEndian.Uint32(pvd[pvdPathTableSize:]),
		PathTableL:    binary.LittleEndian.Uint32(pvd[pvdPathTableL:]),
		PathTableM:    binary.BigEndian.Uint32(pvd[pvdPathTableM:]),
	}

	if err := checkBoth32(pvd[pvdVolumeSpace:]); err != nil {
		return nil, fmt.Errorf("volume space size: %w", err)
	}

	root, err := decodeRecord(pvd[pvdRootRecord:])
	if err != nil {
		return nil, fmt.Errorf("root record: %w", err)
	}
	img.Root = root

	lTable, err := readPathTable(r, img.PathTableL, img.PathTableSize, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("L path table: %w", err)
	}
	mTable, err := readPathTable(r, img.PathTableM, img.PathTableSize, binary.BigEndian)
	if err != nil {
		return nil, fmt.Errorf("M path table: %w", err)
	}
	if len(lTable) != len(mTable) {
		return nil, fmt.Errorf("path tables differ: %d vs %d entries", len(lTable), len(mTable))
	}
	for i := range lTable {
		if lTable[i] != mTable[i] {
			return nil, fmt.Errorf("path tables differ at entry %d", i+1)
		}
	}
	img.PathTable = lTable

	return img, nil
}

func readPathTable(r io.ReaderAt, lba, size uint32, order binary.ByteOrder) ([]PathTableEntry, error) {
	buf := make([]byte, size)
	if _, err := vfs.ReadFullAt(r, buf, int64(lba)*SectorSize); err != nil {
		return nil, err
	}

	var entries []PathTableEntry
	for pos := 0; pos < len(buf); {
		if pos+8 > len(buf) {
			return nil, fmt.Errorf("truncated entry at %d", pos)
		}
		nameLen := int(buf[pos])
		end := pos + 8 + nameLen
		if nameLen == 0 || end > len(buf) {
			return nil, fmt.Errorf("bad entry at %d", pos)
		}

		name := string(buf[pos+8 : end])
		if name == "\x00" {
			name = ""
		}
		entries = append(entries, PathTableEntry{
			Name:   name,
			LBA:    order.Uint32(buf[pos+2:]),
			Parent: order.Uint16(buf[pos+6:]),
		})

		pos = end + nameLen%2
	}
	return entries, nil
}

func checkBoth32(b []byte) error {
	if le, be := binary.LittleEndian.Uint32(b), binary.BigEndian.Uint32(b[4:]); le != be {
		return fmt.Errorf("both-endian mismatch: %d vs %d", le, be)
	}
	return nil
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < recordFixedLen+1 {
		return Record{}, io.ErrUnexpectedEOF
	}
	length := int(b[0])
	nameLen := int(b[32])
	if length < recordFixedLen+nameLen || length > len(b) {
		return Record{}, fmt.Errorf("record length %d, name length %d", length, nameLen)
	}
	if err := checkBoth32(b[2:]); err != nil {
		return Record{}, fmt.Errorf("extent location: %w", err)
	}
	if err := checkBoth32(b[10:]); err != nil {
		return Record{}, fmt.Errorf("data length: %w", err)
	}

	rec := Record{
		LBA:    binary.LittleEndian.Uint32(b[2:]),
		Size:   binary.LittleEndian.Uint32(b[10:]),
		Flags:  b[25],
		Length: b[0],
	}
	copy(rec.Date[:], b[18:25])

	switch ident := b[33 : 33+nameLen]; {
	case nameLen == 1 && ident[0] == 0:
		rec.Name = "."
	case nameLen == 1 && ident[0] == 1:
		rec.Name = ".."
	default:
		rec.Name = string(ident)
	}
	return rec, nil
}

// ReadDirRecords decodes every record of a directory extent, including
// "." and "..". Zero padding at the end of a sector is skipped.
func ReadDirRecords(r io.ReaderAt, dir Record) ([]Record, error) {
	if !dir.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir.Name, ErrNotDirectory)
	}

	buf := make([]byte, dir.Size)
	if _, err := vfs.ReadFullAt(r, buf, int64(dir.LBA)*SectorSize); err != nil {
		return nil, fmt.Errorf("read directory extent: %w", err)
	}

	var records []Record
	for pos := 0; pos < len(buf); {
		if buf[pos] == 0 {
			pos = (pos/SectorSize + 1) * SectorSize
			continue
		}
		if pos%SectorSize+int(buf[pos]) > SectorSize {
			return nil, fmt.Errorf("record at %d crosses a sector boundary", pos)
		}
		rec, err := decodeRecord(buf[pos:])
		if err != nil {
			return nil, fmt.Errorf("record at %d: %w", pos, err)
		}
		records = append(records, rec)
		pos += int(rec.Length)
	}
	return records, nil
}

// Walk visits every record below root depth-first, skipping "." and "..".
// Paths are slash separated and start with "/". Every extent of a
// multi-extent file is visited under the same path.
//
// Walk stops at the first error returned by fn and returns it.
func Walk(r io.ReaderAt, root Record, fn func(p string, rec Record) error) error {
	return walk(r, "/", root, fn)
}

func walk(r io.ReaderAt, dir string, rec Record, fn func(string, Record) error) error {
	children, err := ReadDirRecords(r, rec)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.Name == "." || c.Name == ".." {
			continue
		}
		p := path.Join(dir, strings.TrimSuffix(c.Name, fileVersionSuffix))
		if err := fn(p, c); err != nil {
			return err
		}
		if c.IsDir() {
			if err := walk(r, p, c, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
