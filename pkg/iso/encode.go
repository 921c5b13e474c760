package iso

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// Directory record flags.
const (
	flagFile        byte = 0x00
	flagDirectory   byte = 0x02
	flagMultiExtent byte = 0x80
)

const (
	// recordFixedLen is the directory record size without its identifier.
	recordFixedLen = 33

	// recordPadLen trails every directory-extent record. Clients expect it.
	recordPadLen = 6

	// maxIdentLen keeps the even-rounded record length within one byte.
	maxIdentLen = 255 - recordFixedLen - recordPadLen - 1

	fileVersionSuffix = ";1"
)

// record is one directory record before encoding.
type record struct {
	lba   uint32
	size  uint32
	flags byte
	ident []byte
}

func recordLen(identLen int) int {
	n := recordFixedLen + identLen + recordPadLen
	if n%2 != 0 {
		n++
	}
	return n
}

// appendRecord encodes r at the end of buf. A record that would cross a
// sector boundary starts at the next sector instead.
func appendRecord(buf []byte, r record, date [7]byte) []byte {
	n := recordLen(len(r.ident))
	if used := len(buf) % SectorSize; used+n > SectorSize {
		buf = append(buf, make([]byte, SectorSize-used)...)
	}

	start := len(buf)
	buf = append(buf, make([]byte, n)...)
	encodeRecord(buf[start:start+recordFixedLen+len(r.ident)], byte(n), r, date)
	return buf
}

// encodeRecord writes the fixed fields and identifier into dst.
func encodeRecord(dst []byte, length byte, r record, date [7]byte) {
	dst[0] = length
	dst[1] = 0 // extended attribute length
	putBoth32(dst[2:], r.lba)
	putBoth32(dst[10:], r.size)
	copy(dst[18:25], date[:])
	dst[25] = r.flags
	dst[26] = 0 // file unit size
	dst[27] = 0 // interleave gap
	putBoth16(dst[28:], 1)
	dst[32] = byte(len(r.ident))
	copy(dst[33:], r.ident)
}

// putBoth32 writes v little-endian then big-endian (ISO9660 7.3.3).
func putBoth32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b[0:4], v)
	binary.BigEndian.PutUint32(b[4:8], v)
}

// putBoth16 writes v little-endian then big-endian (ISO9660 7.2.3).
func putBoth16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b[0:2], v)
	binary.BigEndian.PutUint16(b[2:4], v)
}

// recordDate encodes t in the 7-byte directory record format, UTC.
func recordDate(t time.Time) [7]byte {
	t = t.UTC()
	return [7]byte{
		byte(t.Year() - 1900),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
		0, // GMT offset
	}
}

// isoName uppercases name and replaces runes outside ASCII with '_'.
func isoName(name string, limit int) []byte {
	out := make([]byte, 0, min(len(name), limit))
	for _, r := range strings.ToUpper(name) {
		if len(out) == limit {
			break
		}
		if r >= utf8.RuneSelf {
			r = '_'
		}
		out = append(out, byte(r))
	}
	return out
}

func dirIdent(name string) []byte {
	return isoName(name, maxIdentLen)
}

func fileIdent(name string) []byte {
	return append(isoName(name, maxIdentLen-len(fileVersionSuffix)), fileVersionSuffix...)
}

// pathTable encodes the path table in breadth-first directory order. msb
// selects the big-endian (M) variant.
func pathTable(dirs []*dirNode, msb bool) []byte {
	var order binary.ByteOrder = binary.LittleEndian
	if msb {
		order = binary.BigEndian
	}

	var buf []byte
	for _, d := range dirs {
		ident := []byte{0}
		parent := uint16(1)
		if !d.isRoot {
			ident = dirIdent(d.name)
			parent = uint16(d.parent.idx)
		}

		entry := make([]byte, 8+len(ident)+len(ident)%2)
		entry[0] = byte(len(ident))
		entry[1] = 0 // extended attribute length
		order.PutUint32(entry[2:6], d.lba)
		order.PutUint16(entry[6:8], parent)
		copy(entry[8:], ident)
		buf = append(buf, entry...)
	}
	return buf
}

// writeMetadata assembles the in-memory region: PS3 header, descriptors,
// path tables and every directory extent.
func (b *builder) writeMetadata() error {
	b.buf = make([]byte, int64(b.filesStart)*SectorSize)

	if b.titleID != "" {
		if err := b.writePS3Header(); err != nil {
			return err
		}
	}

	b.writePVD(b.buf[pvdSector*SectorSize : (pvdSector+1)*SectorSize])

	term := b.buf[terminatorSector*SectorSize:]
	term[0] = 255
	copy(term[1:6], standardID)
	term[6] = 1

	copy(b.buf[int64(b.ptL)*SectorSize:], pathTable(b.dirs, false))
	copy(b.buf[int64(b.ptM)*SectorSize:], pathTable(b.dirs, true))

	for _, d := range b.dirs {
		copy(b.buf[int64(d.lba)*SectorSize:], d.content)
	}
	return nil
}

var standardID = []byte("CD001")

// Primary volume descriptor field offsets (ISO9660 8.4).
const (
	pvdVolumeID       = 40
	pvdVolumeSpace    = 80
	pvdVolumeSetSize  = 120
	pvdVolumeSeq      = 124
	pvdBlockSize      = 128
	pvdPathTableSize  = 132
	pvdPathTableL     = 140
	pvdPathTableM     = 148
	pvdRootRecord     = 156
	pvdFileStructure  = 881
	volumeIDFieldSize = 32
)

func (b *builder) writePVD(s []byte) {
	s[0] = 1
	copy(s[1:6], standardID)
	s[6] = 1

	// system identifier at 8 stays zero; the volume id is zero padded
	copy(s[pvdVolumeID:pvdVolumeID+volumeIDFieldSize], isoName(b.volumeID, volumeIDFieldSize))

	putBoth32(s[pvdVolumeSpace:], b.volumeSectors)
	putBoth16(s[pvdVolumeSetSize:], 1)
	putBoth16(s[pvdVolumeSeq:], 1)
	putBoth16(s[pvdBlockSize:], SectorSize)
	putBoth32(s[pvdPathTableSize:], b.pathTableSize)
	binary.LittleEndian.PutUint32(s[pvdPathTableL:], b.ptL)
	binary.BigEndian.PutUint32(s[pvdPathTableM:], b.ptM)

	// the root record uses the same padded length as the "." record of
	// its extent; its tail spills into the zeroed volume set identifier
	root := b.tree.root
	n := recordLen(1)
	encodeRecord(s[pvdRootRecord:pvdRootRecord+n], byte(n),
		record{lba: root.lba, size: root.sizeBytes, flags: flagDirectory, ident: []byte{0}}, b.date)

	s[pvdFileStructure] = 1
}

// PS3 disc header layout, sectors 0 and 1.
const (
	ps3ConsoleID     = "PlayStation3"
	ps3ConsoleIDLen  = 0x10
	ps3ProductIDLen  = 0x20
	ps3ReservedLen   = 0x10
	ps3InfoLen       = 0x1B0
	ps3HashLen       = 0x10
	ps3TitlePrefix   = 4
	ps3TitleNumber   = 5
	ps3MinTitleIDLen = ps3TitlePrefix + ps3TitleNumber
)

// writePS3Header writes the single-range region table to sector 0 and the
// disc identity to sector 1.
func (b *builder) writePS3Header() error {
	// one plaintext range covering the whole volume
	s0 := b.buf[0:SectorSize]
	binary.BigEndian.PutUint32(s0[0:], 1)
	binary.BigEndian.PutUint32(s0[4:], 0)
	binary.BigEndian.PutUint32(s0[8:], 0)
	binary.BigEndian.PutUint32(s0[12:], b.volumeSectors-1)

	s1 := b.buf[SectorSize : 2*SectorSize]
	off := 0
	copy(s1[off:off+ps3ConsoleIDLen], ps3ConsoleID)
	off += ps3ConsoleIDLen

	copy(s1[off:off+ps3ProductIDLen], ProductID(b.titleID))
	off += ps3ProductIDLen + ps3ReservedLen

	if _, err := io.ReadFull(b.rand, s1[off:off+ps3InfoLen+ps3HashLen]); err != nil {
		return fmt.Errorf("ps3 header filler: %w", err)
	}
	return nil
}

// ProductID formats a title id as the 32-byte, space-filled product id of
// sector 1: "BLES01234" becomes "BLES-01234". Title ids shorter than nine
// characters leave the field blank.
func ProductID(titleID string) []byte {
	out := []byte(strings.Repeat(" ", ps3ProductIDLen))
	if len(titleID) < ps3MinTitleIDLen {
		return out
	}
	copy(out[0:ps3TitlePrefix], titleID[:ps3TitlePrefix])
	out[ps3TitlePrefix] = '-'
	copy(out[ps3TitlePrefix+1:], titleID[ps3TitlePrefix:ps3MinTitleIDLen])
	return out
}
