package ps3

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/spf13/afero"
)

const (
	// DiscKeyExt is the extension of a disc key file.
	DiscKeyExt = ".dkey"

	// ISOFolder is the directory PS3 disc images are served from.
	ISOFolder = "PS3ISO"

	// KeyFolder is the directory holding one .dkey per image.
	KeyFolder = "REDKEY"

	isoExt = ".iso"
)

// maxKeyFile bounds how much of a .dkey file is read.
const maxKeyFile = 256

// LoadDiscKey reads a .dkey file. The file holds either the key as 32 hex
// characters (surrounding whitespace ignored) or the 16 raw key bytes.
func LoadDiscKey(fs afero.Fs, name string) ([]byte, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, maxKeyFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	text := bytes.TrimSpace(buf)
	if len(text) == hex.EncodedLen(KeySize) {
		key := make([]byte, KeySize)
		if _, err := hex.Decode(key, text); err == nil {
			return key, nil
		}
	}

	if len(buf) == KeySize {
		return append([]byte(nil), buf...), nil
	}

	return nil, fmt.Errorf("%s: not a disc key (%d bytes)", name, len(buf))
}

// IsPS3ISOPath reports whether p names an .iso inside a PS3ISO directory.
// Both comparisons ignore case.
func IsPS3ISOPath(p string) bool {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if !strings.EqualFold(path.Ext(p), isoExt) {
		return false
	}
	for _, part := range strings.Split(path.Dir(p), "/") {
		if strings.EqualFold(part, ISOFolder) {
			return true
		}
	}
	return false
}

// keyCandidates lists the .dkey paths probed for an image: the REDKEY
// directory beside the image's PS3ISO ancestor, then <root>/REDKEY.
func keyCandidates(root, isoPath string) []string {
	isoPath = path.Clean(strings.ReplaceAll(isoPath, "\\", "/"))
	base := strings.TrimSuffix(path.Base(isoPath), path.Ext(isoPath)) + DiscKeyExt

	var out []string
	dir := path.Dir(isoPath)
	for dir != "/" && dir != "." {
		if strings.EqualFold(path.Base(dir), ISOFolder) {
			out = append(out, path.Join(path.Dir(dir), KeyFolder, base))
			break
		}
		dir = path.Dir(dir)
	}

	if root != "" {
		primary := path.Join(strings.ReplaceAll(root, "\\", "/"), KeyFolder, base)
		if len(out) == 0 || out[0] != primary {
			out = append(out, primary)
		}
	}
	return out
}

// KeyForImage returns the disc key for a PS3ISO image, or nil when the image
// is served as-is. header is the image's first two sectors.
//
// A .dkey file takes precedence over an embedded 3k3y key. A 3k3y image
// carrying the decrypted watermark is plaintext.
//
// Key files are looked up as REDKEY/<name>.dkey beside the image's PS3ISO
// ancestor, then as <root>/REDKEY/<name>.dkey.
//
// Parameters:
//   - fs: the filesystem holding the image and its key files
//   - root: the served root; "" skips the root REDKEY folder
//   - isoPath: the image path on fs
//   - header: at least HeaderSize bytes from the start of the image
//
// Returns:
//   - []byte: the 16-byte disc key, or nil for a plaintext image
//   - error: if a key file exists but is malformed, or the 3k3y key cannot
//     be unwrapped
func KeyForImage(fs afero.Fs, root, isoPath string, header []byte) ([]byte, error) {
	if !IsPS3ISOPath(isoPath) {
		return nil, nil
	}

	for _, candidate := range keyCandidates(root, isoPath) {
		if _, err := fs.Stat(candidate); err != nil {
			continue
		}
		return LoadDiscKey(fs, candidate)
	}

	if Has3k3yEncryptedWatermark(header) {
		return ConvertD1ToKey(header)
	}
	return nil, nil
}
