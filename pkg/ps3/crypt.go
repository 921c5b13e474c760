package ps3

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// KeySize is the AES-128 disc key size.
const KeySize = 16

const (
	watermarkOffset = 0xF70
	d1KeyOffset     = 0xF80
)

var (
	// 3k3y headers carry "Encrypted 3K BLD" while the disc key is still
	// wrapped and "Dncrypted 3K BLD" once the image itself is plaintext.
	encryptedWatermark = []byte("Encrypted 3K BLD")
	decryptedWatermark = []byte("Dncrypted 3K BLD")

	d1Key = []byte{
		0x38, 0x0B, 0xCF, 0x0B, 0x53, 0x45, 0x5B, 0x3C,
		0x78, 0x17, 0xAB, 0x4F, 0xA3, 0xBA, 0x90, 0xED,
	}
	d1IV = []byte{
		0x69, 0x47, 0x47, 0x72, 0xAF, 0x6F, 0xDA, 0xB3,
		0x42, 0x74, 0x3A, 0xEF, 0xAA, 0x18, 0x62, 0x87,
	}
)

// SectorIV returns the IV for a sector: 12 zero bytes followed by the LBA
// big-endian. Every sector is decrypted independently.
func SectorIV(lba uint32) [aes.BlockSize]byte {
	var iv [aes.BlockSize]byte
	binary.BigEndian.PutUint32(iv[12:], lba)
	return iv
}

// DecryptSectors decrypts whole 2048-byte sectors in place. data[0] is the
// first byte of sector startLBA.
func DecryptSectors(block cipher.Block, data []byte, startLBA uint32) error {
	if len(data)%SectorSize != 0 {
		return fmt.Errorf("decrypt: %d bytes is not a whole number of sectors", len(data))
	}

	for i := 0; i*SectorSize < len(data); i++ {
		iv := SectorIV(startLBA + uint32(i))
		sector := data[i*SectorSize : (i+1)*SectorSize]
		cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(sector, sector)
	}
	return nil
}

// EncryptSectors is the inverse of DecryptSectors. The server never writes
// images; it exists for building test fixtures and tooling.
func EncryptSectors(block cipher.Block, data []byte, startLBA uint32) error {
	if len(data)%SectorSize != 0 {
		return fmt.Errorf("encrypt: %d bytes is not a whole number of sectors", len(data))
	}

	for i := 0; i*SectorSize < len(data); i++ {
		iv := SectorIV(startLBA + uint32(i))
		sector := data[i*SectorSize : (i+1)*SectorSize]
		cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(sector, sector)
	}
	return nil
}

// Has3k3yEncryptedWatermark reports whether the header carries a wrapped key.
func Has3k3yEncryptedWatermark(header []byte) bool {
	if len(header) < d1KeyOffset+KeySize {
		return false
	}
	return bytes.Equal(header[watermarkOffset:watermarkOffset+KeySize], encryptedWatermark)
}

// Has3k3yDecryptedWatermark reports whether the image was already decrypted.
func Has3k3yDecryptedWatermark(header []byte) bool {
	if len(header) < watermarkOffset+KeySize {
		return false
	}
	return bytes.Equal(header[watermarkOffset:watermarkOffset+KeySize], decryptedWatermark)
}

// ConvertD1ToKey unwraps the 3k3y D1 value into the disc key with a single
// AES-CBC decryption under the fixed D1 key and IV.
func ConvertD1ToKey(header []byte) ([]byte, error) {
	if len(header) < d1KeyOffset+KeySize {
		return nil, fmt.Errorf("%w: no D1 field", ErrShortHeader)
	}

	block, err := aes.NewCipher(d1Key)
	if err != nil {
		return nil, fmt.Errorf("d1 cipher: %w", err)
	}

	key := make([]byte, KeySize)
	cipher.NewCBCDecrypter(block, d1IV).CryptBlocks(key, header[d1KeyOffset:d1KeyOffset+KeySize])
	return key, nil
}

// WrapD1 is the inverse of ConvertD1ToKey. It is used to build 3k3y
// fixtures.
func WrapD1(key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(d1Key)
	if err != nil {
		return nil, fmt.Errorf("d1 cipher: %w", err)
	}

	d1 := make([]byte, KeySize)
	cipher.NewCBCEncrypter(block, d1IV).CryptBlocks(d1, key)
	return d1, nil
}
