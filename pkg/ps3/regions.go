// Package ps3 holds the disc-level helpers for PlayStation 3 images: the
// plaintext/encrypted region table, per-sector AES decryption, 3k3y key
// unwrapping, .dkey files and the PARAM.SFO parser.
package ps3

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SectorSize is the logical sector size of a PS3 disc image.
const SectorSize = 2048

// HeaderSize is the size of the sector 0-1 header carrying the region table
// and the 3k3y watermark.
const HeaderSize = 2 * SectorSize

// regionTableOffset is where region boundaries start inside sector 0.
const regionTableOffset = 12

var (
	// ErrNoRegions is returned when the header declares zero regions.
	ErrNoRegions = errors.New("region table is empty")

	// ErrShortHeader is returned when the header cannot hold the declared table.
	ErrShortHeader = errors.New("header too short for region table")
)

// RegionInfo is a contiguous byte range of a disc image that is uniformly
// encrypted or plaintext. First and Last are inclusive byte addresses.
type RegionInfo struct {
	Encrypted bool
	First     uint64
	Last      uint64
}

// Contains reports whether the byte address lies in the region.
func (r RegionInfo) Contains(addr uint64) bool {
	return addr >= r.First && addr <= r.Last
}

// ParseRegions derives up to 2N-1 regions from a header declaring N
// plaintext ranges. Region i of the table is encrypted iff i is odd.
// Boundaries are stored as big-endian sector numbers after a 12-byte
// preamble; even entries are inclusive end sectors, odd entries are
// exclusive.
//
// A boundary that does not advance past the previous region yields an
// empty region, which is left out of the result. Discs with no encrypted
// data between two plaintext ranges carry such entries.
//
// Parameters:
//   - header: the first bytes of the image; HeaderSize bytes always suffice
//
// Returns:
//   - []RegionInfo: the non-empty regions in address order
//   - error: ErrNoRegions for an empty table, ErrShortHeader when the
//     declared table does not fit in header
func ParseRegions(header []byte) ([]RegionInfo, error) {
	if len(header) < 4 {
		return nil, ErrShortHeader
	}

	declared := binary.BigEndian.Uint32(header[0:4])
	if declared == 0 {
		return nil, ErrNoRegions
	}

	count := int(declared)*2 - 1
	if need := regionTableOffset + count*4; need > len(header) {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortHeader, need, len(header))
	}

	regions := make([]RegionInfo, 0, count)
	var next uint64
	for i := 0; i < count; i++ {
		off := regionTableOffset + i*4
		sector := uint64(binary.BigEndian.Uint32(header[off : off+4]))

		encrypted := i%2 == 1
		if encrypted {
			if sector == 0 {
				continue
			}
			sector--
		}

		last := sector*SectorSize + SectorSize - 1
		if last < next {
			continue
		}

		regions = append(regions, RegionInfo{Encrypted: encrypted, First: next, Last: last})
		next = last + 1
	}

	return regions, nil
}
