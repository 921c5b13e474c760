package ps3

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/marmos91/ps3netsrv/pkg/vfs"
)

// EncryptedImage serves a redump-style disc image in plaintext. Bytes lying
// in encrypted regions are decrypted on every read; the image on disk is
// never modified.
type EncryptedImage struct {
	*vfs.RealFile

	block   cipher.Block
	regions []RegionInfo
}

var _ vfs.Entry = (*EncryptedImage)(nil)

// NewEncryptedImage wraps f using key. The region table comes from the
// first two sectors of f.
//
// Parameters:
//   - f: an existing disc image of at least HeaderSize bytes
//   - key: the 16-byte AES disc key
//
// Returns an EncryptedImage whose ReadAt yields plaintext for every
// encrypted region, or an error for an unreadable header, an empty region
// table or a bad key.
func NewEncryptedImage(f *vfs.RealFile, key []byte) (*EncryptedImage, error) {
	header := make([]byte, HeaderSize)
	if _, err := vfs.ReadFullAt(f, header, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	regions, err := ParseRegions(header)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("disc key: %w", err)
	}

	return &EncryptedImage{RealFile: f, block: block, regions: regions}, nil
}

// Regions returns the parsed region table.
func (e *EncryptedImage) Regions() []RegionInfo { return e.regions }

// ReadAt reads like the underlying file, then replaces every byte inside an
// encrypted region with its plaintext.
func (e *EncryptedImage) ReadAt(p []byte, off int64) (int, error) {
	n, err := e.RealFile.ReadAt(p, off)
	if n <= 0 {
		return n, err
	}

	start := uint64(off)
	end := start + uint64(n) // exclusive

	for _, r := range e.regions {
		if !r.Encrypted || r.Last < start || r.First >= end {
			continue
		}

		lo := max(start, r.First)
		hi := min(end, r.Last+1)
		if derr := e.decryptRange(p[lo-start:hi-start], lo); derr != nil {
			return 0, derr
		}
	}

	return n, err
}

// decryptRange decrypts dst, the bytes at image address addr. Unaligned
// edges are handled by re-reading the surrounding whole sectors.
func (e *EncryptedImage) decryptRange(dst []byte, addr uint64) error {
	firstSector := addr / SectorSize
	lastSector := (addr + uint64(len(dst)) - 1) / SectorSize

	if addr%SectorSize == 0 && len(dst)%SectorSize == 0 {
		return DecryptSectors(e.block, dst, uint32(firstSector))
	}

	buf := make([]byte, (lastSector-firstSector+1)*SectorSize)
	if _, err := vfs.ReadFullAt(e.RealFile, buf, int64(firstSector*SectorSize)); err != nil {
		return fmt.Errorf("read sectors %d-%d: %w", firstSector, lastSector, err)
	}
	if err := DecryptSectors(e.block, buf, uint32(firstSector)); err != nil {
		return err
	}

	skip := addr - firstSector*SectorSize
	copy(dst, buf[skip:skip+uint64(len(dst))])
	return nil
}

// OpenImage opens path as a handle. Images under PS3ISO that have a disc
// key are wrapped in an EncryptedImage; everything else is a plain RealFile.
//
// Parameters:
//   - f: the resolved file; missing files and directories pass through
//   - root: the served root, searched for REDKEY/<name>.dkey
//
// Returns:
//   - vfs.Entry: f itself, or an EncryptedImage reading through f
//   - error: if the header cannot be read or the key is unusable; f is left
//     open for the caller to close
func OpenImage(f *vfs.RealFile, root string) (vfs.Entry, error) {
	if !f.Exists() || f.IsDir() || !IsPS3ISOPath(f.Path()) || f.Size() < HeaderSize {
		return f, nil
	}

	header := make([]byte, HeaderSize)
	if _, err := vfs.ReadFullAt(f, header, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	key, err := KeyForImage(f.FS(), root, f.Path(), header)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return f, nil
	}

	return NewEncryptedImage(f, key)
}
