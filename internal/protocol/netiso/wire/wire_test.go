package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Opcode Tests
// ============================================================================

func TestOpcodeValues(t *testing.T) {
	tests := []struct {
		op   Opcode
		want uint16
		name string
	}{
		{OpOpenFile, 0x1224, "OPEN_FILE"},
		{OpReadFileCritical, 0x1225, "READ_FILE_CRITICAL"},
		{OpReadCD2048Critical, 0x1226, "READ_CD_2048_CRITICAL"},
		{OpReadFile, 0x1227, "READ_FILE"},
		{OpCreateFile, 0x1228, "CREATE_FILE"},
		{OpWriteFile, 0x1229, "WRITE_FILE"},
		{OpOpenDir, 0x122A, "OPEN_DIR"},
		{OpReadDirEntry, 0x122B, "READ_DIR_ENTRY"},
		{OpDeleteFile, 0x122C, "DELETE_FILE"},
		{OpMkdir, 0x122D, "MKDIR"},
		{OpRmdir, 0x122E, "RMDIR"},
		{OpReadDirEntryV2, 0x122F, "READ_DIR_ENTRY_V2"},
		{OpStatFile, 0x1230, "STAT_FILE"},
		{OpGetDirSize, 0x1231, "GET_DIR_SIZE"},
		{OpReadDir, 0x1232, "READ_DIR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uint16(tt.op))
			assert.Equal(t, tt.name, tt.op.String())
			assert.True(t, tt.op.Known())
		})
	}

	assert.Equal(t, "UNKNOWN_0x2412", Opcode(0x2412).String())
	assert.False(t, Opcode(0x1233).Known())
}

// ============================================================================
// Header Tests
// ============================================================================

func TestHeaderFields(t *testing.T) {
	t.Run("Path", func(t *testing.T) {
		h := PathHeader(OpStatFile, 300)
		raw := h.Bytes()
		assert.Equal(t, []byte{0x12, 0x30, 0x01, 0x2C}, raw[:4])
		assert.Equal(t, make([]byte, 12), raw[4:])

		parsed := ParseHeader(raw)
		assert.Equal(t, OpStatFile, parsed.Opcode)
		assert.Equal(t, uint16(300), parsed.PathLen())
	})

	t.Run("Read", func(t *testing.T) {
		h := ReadHeaderFor(OpReadFileCritical, 0x10000, 0x0102030405060708)
		raw := h.Bytes()
		assert.Equal(t, []byte{0x12, 0x25, 0, 0, 0, 1, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8}, raw[:])

		parsed := ParseHeader(raw)
		assert.Equal(t, uint32(0x10000), parsed.Length())
		assert.Equal(t, uint64(0x0102030405060708), parsed.Offset())
	})

	t.Run("CD", func(t *testing.T) {
		raw := CDHeader(16, 3).Bytes()
		assert.Equal(t, []byte{0x12, 0x26, 0, 0, 0, 0, 0, 16, 0, 0, 0, 3, 0, 0, 0, 0}, raw[:])

		parsed := ParseHeader(raw)
		assert.Equal(t, uint32(16), parsed.StartSector())
		assert.Equal(t, uint32(3), parsed.SectorCount())
	})

	t.Run("Write", func(t *testing.T) {
		parsed := ParseHeader(WriteHeader(MaxTransfer + 1).Bytes())
		assert.Equal(t, OpWriteFile, parsed.Opcode)
		assert.Equal(t, uint32(MaxTransfer+1), parsed.Length())
	})
}

func TestReadHeader(t *testing.T) {
	t.Run("CleanEOF", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader(nil))
		assert.Equal(t, io.EOF, err)
	})

	t.Run("PartialHeaderIsProtocolError", func(t *testing.T) {
		_, err := ReadHeader(bytes.NewReader([]byte{0x12, 0x2A, 0}))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProtocol)
	})

	t.Run("ReadsExactlySixteenBytes", func(t *testing.T) {
		raw := PathHeader(OpOpenDir, 6).Bytes()
		r := bytes.NewReader(append(raw[:], "/games"...))

		h, err := ReadHeader(r)
		require.NoError(t, err)
		assert.Equal(t, OpOpenDir, h.Opcode)
		assert.Equal(t, 6, r.Len())
	})
}

// ============================================================================
// Codec Tests
// ============================================================================

func TestBigEndianHelpers(t *testing.T) {
	b := make([]byte, 8)

	PutInt32(b, -1)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, b[:4])
	assert.Equal(t, int32(-1), Int32(b))

	PutInt64(b, -1)
	assert.Equal(t, int64(-1), Int64(b))

	PutUint64(b, 38008)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0x94, 0x78}, b)
	assert.Equal(t, uint64(38008), Uint64(b))
}

func TestWriter(t *testing.T) {
	t.Run("AppendsFieldsInOrder", func(t *testing.T) {
		w := NewWriter(64)
		defer w.Release()

		w.Int64(-1).Uint64(2).Uint16(3).Bool(true).Bytes([]byte("ab"))
		assert.Equal(t, []byte{
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
			0, 0, 0, 0, 0, 0, 0, 2,
			0, 3,
			1,
			'a', 'b',
		}, w.Data())
	})

	t.Run("FixedPadsAndTruncates", func(t *testing.T) {
		var w Writer
		w.Fixed([]byte("abc"), 5).Fixed([]byte("abcdef"), 2)
		assert.Equal(t, []byte{'a', 'b', 'c', 0, 0, 'a', 'b'}, w.Data())
	})

	t.Run("ExtendBeyondCapacity", func(t *testing.T) {
		w := NewWriter(4)
		defer w.Release()

		w.Int32(7)
		tail := w.Extend(smallBufferSize)
		tail[0] = 9
		assert.Equal(t, 4+smallBufferSize, w.Len())
		assert.Equal(t, byte(9), w.Data()[4])
		assert.Equal(t, int32(7), Int32(w.Data()))

		w.Truncate(5)
		assert.Equal(t, []byte{0, 0, 0, 7, 9}, w.Data())
	})

	t.Run("Result", func(t *testing.T) {
		assert.Equal(t, []byte{0, 0, 0, 0}, Result(true))
		assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, Result(false))
	})
}

// ============================================================================
// Buffer Pool Tests
// ============================================================================

func TestBufferPool(t *testing.T) {
	tests := []struct {
		size    uint32
		wantCap int
	}{
		{1, smallBufferSize},
		{smallBufferSize, smallBufferSize},
		{smallBufferSize + 1, mediumBufferSize},
		{MaxTransfer, largeBufferSize},
		{MaxTransfer + 4, largeBufferSize},
		{largeBufferSize + 1, largeBufferSize + 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.size), func(t *testing.T) {
			buf := GetBuffer(tt.size)
			assert.Len(t, buf, int(tt.size))
			assert.Equal(t, tt.wantCap, cap(buf))
			PutBuffer(buf)
		})
	}

	PutBuffer(nil)
}

// ============================================================================
// Error Tests
// ============================================================================

func TestFatal(t *testing.T) {
	assert.NoError(t, Fatal(nil))

	base := fmt.Errorf("%w: short path", ErrProtocol)
	err := Fatal(base)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, base.Error(), err.Error())

	wrapped := fmt.Errorf("READ_FILE_CRITICAL: %w", err)
	assert.True(t, IsFatal(wrapped))

	assert.False(t, IsFatal(base))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestClass(t *testing.T) {
	assert.Equal(t, "", Class(nil))
	assert.Equal(t, "protocol", Class(Fatal(ErrProtocol)))
	assert.Equal(t, "filesystem", Class(fmt.Errorf("x: %w", ErrFileSystem)))
	assert.Equal(t, "readonly", Class(ErrReadOnly))
	assert.Equal(t, "notfound", Class(ErrNotFound))
	assert.Equal(t, "nohandle", Class(ErrNoHandle))
	assert.Equal(t, "other", Class(io.ErrUnexpectedEOF))
}
