package wire

import "encoding/binary"

// Result codes of the status-only responses.
const (
	ResultOK    int32 = 0
	ResultError int32 = -1
)

func PutUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func PutUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func PutUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
func PutInt32(b []byte, v int32)   { binary.BigEndian.PutUint32(b, uint32(v)) }
func PutInt64(b []byte, v int64)   { binary.BigEndian.PutUint64(b, uint64(v)) }

func Uint16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func Uint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func Uint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
func Int32(b []byte) int32   { return int32(binary.BigEndian.Uint32(b)) }
func Int64(b []byte) int64   { return int64(binary.BigEndian.Uint64(b)) }

// Writer appends big-endian fields to a response buffer.
//
// The zero value is ready to use. NewWriter starts from a pooled buffer;
// the connection returns it to the pool once the response is sent.
type Writer struct {
	buf    []byte
	pooled bool
}

// NewWriter returns a Writer whose buffer can hold size bytes without
// growing.
func NewWriter(size int) *Writer {
	return &Writer{buf: GetBuffer(uint32(size))[:0], pooled: true}
}

func (w *Writer) Uint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.Uint8(1)
	}
	return w.Uint8(0)
}

func (w *Writer) Uint16(v uint16) *Writer {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) Uint32(v uint32) *Writer {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) Uint64(v uint64) *Writer {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
	return w
}

func (w *Writer) Int32(v int32) *Writer { return w.Uint32(uint32(v)) }

func (w *Writer) Int64(v int64) *Writer { return w.Uint64(uint64(v)) }

// Bytes appends p verbatim.
func (w *Writer) Bytes(p []byte) *Writer {
	w.buf = append(w.buf, p...)
	return w
}

// Fixed appends p truncated or zero-padded to exactly n bytes.
func (w *Writer) Fixed(p []byte, n int) *Writer {
	if len(p) > n {
		p = p[:n]
	}
	w.buf = append(w.buf, p...)
	for i := len(p); i < n; i++ {
		w.buf = append(w.buf, 0)
	}
	return w
}

// Extend grows the buffer by n bytes and returns them for direct filling,
// such as a positioned read.
func (w *Writer) Extend(n int) []byte {
	start := len(w.buf)
	if cap(w.buf)-start < n {
		grown := make([]byte, start, start+n)
		copy(grown, w.buf)
		w.release()
		w.buf = grown
	}
	w.buf = w.buf[:start+n]
	return w.buf[start:]
}

// Truncate drops everything after the first n bytes.
func (w *Writer) Truncate(n int) { w.buf = w.buf[:n] }

func (w *Writer) Len() int { return len(w.buf) }

// Data returns the encoded response.
func (w *Writer) Data() []byte { return w.buf }

// Release returns a pooled buffer. The Writer must not be used afterwards.
func (w *Writer) Release() {
	w.release()
	w.buf = nil
}

func (w *Writer) release() {
	if w.pooled {
		PutBuffer(w.buf)
		w.pooled = false
	}
}

// Result encodes a status-only response.
func Result(ok bool) []byte {
	b := make([]byte, 4)
	if ok {
		PutInt32(b, ResultOK)
	} else {
		PutInt32(b, ResultError)
	}
	return b
}
