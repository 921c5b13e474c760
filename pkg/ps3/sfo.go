package ps3

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// SFO value formats.
const (
	SFOFormatUTF8Special uint16 = 0x0004
	SFOFormatUTF8        uint16 = 0x0204
	SFOFormatInt32       uint16 = 0x0404
)

const (
	sfoHeaderSize = 0x14
	sfoIndexSize  = 0x10

	// sfoMaxSize bounds how much of a PARAM.SFO is read.
	sfoMaxSize = 64 * 1024
)

var sfoMagic = []byte{0x00, 'P', 'S', 'F'}

var (
	// ErrNotSFO is returned when the magic does not match.
	ErrNotSFO = errors.New("not a PARAM.SFO file")

	// ErrNoTitleID is returned when PARAM.SFO has no TITLE_ID value.
	ErrNoTitleID = errors.New("PARAM.SFO has no TITLE_ID")
)

// SFOValue is one PARAM.SFO entry.
type SFOValue struct {
	Format uint16
	Data   []byte
}

// String returns the value as text with trailing NULs removed.
func (v SFOValue) String() string {
	if v.Format == SFOFormatInt32 {
		return fmt.Sprint(v.Int())
	}
	return string(bytes.TrimRight(v.Data, "\x00"))
}

// Int returns an int32 value; other formats report 0.
func (v SFOValue) Int() uint32 {
	if v.Format != SFOFormatInt32 || len(v.Data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(v.Data)
}

// ParseSFO parses a PARAM.SFO document. All fields are little-endian.
//
// Returns every entry keyed by name, or ErrNotSFO when the magic is wrong.
// Entries pointing outside the document are an error; documents larger
// than the PARAM.SFO size limit are truncated before parsing.
func ParseSFO(r io.Reader) (map[string]SFOValue, error) {
	data, err := io.ReadAll(io.LimitReader(r, sfoMaxSize))
	if err != nil {
		return nil, fmt.Errorf("read sfo: %w", err)
	}
	if len(data) < sfoHeaderSize || !bytes.Equal(data[:4], sfoMagic) {
		return nil, ErrNotSFO
	}

	keyTable := binary.LittleEndian.Uint32(data[0x08:])
	dataTable := binary.LittleEndian.Uint32(data[0x0C:])
	entries := binary.LittleEndian.Uint32(data[0x10:])

	if uint64(sfoHeaderSize)+uint64(entries)*sfoIndexSize > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d entries overflow %d bytes", ErrNotSFO, entries, len(data))
	}

	values := make(map[string]SFOValue, entries)
	for i := uint32(0); i < entries; i++ {
		idx := data[sfoHeaderSize+i*sfoIndexSize:]

		keyOff := uint64(keyTable) + uint64(binary.LittleEndian.Uint16(idx[0:]))
		format := binary.LittleEndian.Uint16(idx[2:])
		length := uint64(binary.LittleEndian.Uint32(idx[4:]))
		dataOff := uint64(dataTable) + uint64(binary.LittleEndian.Uint32(idx[12:]))

		if keyOff >= uint64(len(data)) || dataOff+length > uint64(len(data)) {
			return nil, fmt.Errorf("%w: entry %d out of bounds", ErrNotSFO, i)
		}

		key := data[keyOff:]
		if nul := bytes.IndexByte(key, 0); nul >= 0 {
			key = key[:nul]
		}

		values[string(key)] = SFOValue{
			Format: format,
			Data:   append([]byte(nil), data[dataOff:dataOff+length]...),
		}
	}

	return values, nil
}

// SFOPath is the location of PARAM.SFO inside a PS3 game folder.
const SFOPath = "PS3_GAME/PARAM.SFO"

// TitleID reads <dir>/PS3_GAME/PARAM.SFO and returns its TITLE_ID.
func TitleID(fs afero.Fs, dir string) (string, error) {
	f, err := fs.Open(filepath.Join(dir, filepath.FromSlash(SFOPath)))
	if err != nil {
		return "", err
	}
	defer f.Close()

	values, err := ParseSFO(f)
	if err != nil {
		return "", err
	}

	v, ok := values["TITLE_ID"]
	if !ok {
		return "", ErrNoTitleID
	}
	id := v.String()
	if id == "" {
		return "", ErrNoTitleID
	}
	return id, nil
}

// MarshalSFO encodes values as a PARAM.SFO document with keys in sorted
// order. Data is stored unpadded.
func MarshalSFO(values map[string]SFOValue) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var keyTable, dataTable bytes.Buffer
	index := make([]byte, len(keys)*sfoIndexSize)
	for i, k := range keys {
		v := values[k]
		e := index[i*sfoIndexSize:]
		binary.LittleEndian.PutUint16(e[0:], uint16(keyTable.Len()))
		binary.LittleEndian.PutUint16(e[2:], v.Format)
		binary.LittleEndian.PutUint32(e[4:], uint32(len(v.Data)))
		binary.LittleEndian.PutUint32(e[8:], uint32(len(v.Data)))
		binary.LittleEndian.PutUint32(e[12:], uint32(dataTable.Len()))

		keyTable.WriteString(k)
		keyTable.WriteByte(0)
		dataTable.Write(v.Data)
	}

	keyStart := sfoHeaderSize + len(index)
	dataStart := keyStart + keyTable.Len()

	out := make([]byte, sfoHeaderSize, dataStart+dataTable.Len())
	copy(out, sfoMagic)
	binary.LittleEndian.PutUint32(out[0x04:], 0x0101)
	binary.LittleEndian.PutUint32(out[0x08:], uint32(keyStart))
	binary.LittleEndian.PutUint32(out[0x0C:], uint32(dataStart))
	binary.LittleEndian.PutUint32(out[0x10:], uint32(len(keys)))

	out = append(out, index...)
	out = append(out, keyTable.Bytes()...)
	return append(out, dataTable.Bytes()...)
}
