package wire

import (
	"sync"
)

// ============================================================================
// Buffer Pool for Responses and Payloads
// ============================================================================
//
// Reads of disc images dominate the traffic: a client streaming a game
// issues READ_FILE_CRITICAL and READ_CD_2048_CRITICAL back to back, each up
// to MaxTransfer bytes. Pooling those buffers keeps a busy connection from
// allocating megabytes per request.
//
// Size classes:
//   - small: status codes, STAT_FILE, OPEN_FILE and single dir entries
//   - medium: moderate reads and partial listings
//   - large: full MaxTransfer reads, writes and READ_DIR listings
//
// Thread Safety:
// All operations are safe for concurrent use via sync.Pool.

const (
	smallBufferSize = 4 << 10 // 4KB

	mediumBufferSize = 64 << 10 // 64KB

	// largeBufferSize fits a MaxTransfer payload plus a response prefix.
	largeBufferSize = MaxTransfer + smallBufferSize
)

// bufferPool manages byte slice pools organized by size class.
type bufferPool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
}

var globalBufferPool = &bufferPool{
	small: sync.Pool{
		New: func() any {
			buf := make([]byte, smallBufferSize)
			return &buf
		},
	},
	medium: sync.Pool{
		New: func() any {
			buf := make([]byte, mediumBufferSize)
			return &buf
		},
	},
	large: sync.Pool{
		New: func() any {
			buf := make([]byte, largeBufferSize)
			return &buf
		},
	},
}

// Get returns a byte slice of length size backed by a pooled buffer.
//
// Sizes above the large class are allocated directly and never pooled.
// The caller must call Put when finished with the buffer.
func (p *bufferPool) Get(size uint32) []byte {
	var bufPtr *[]byte

	switch {
	case size <= smallBufferSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= mediumBufferSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= largeBufferSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}

	buf := *bufPtr
	return buf[:size]
}

// Put returns a buffer obtained from Get. Buffers whose capacity does not
// match a size class are dropped.
func (p *bufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}

	full := buf[:cap(buf)]
	switch cap(buf) {
	case smallBufferSize:
		p.small.Put(&full)
	case mediumBufferSize:
		p.medium.Put(&full)
	case largeBufferSize:
		p.large.Put(&full)
	}
}

// GetBuffer acquires a buffer from the global pool.
//
// Usage:
//
//	buf := GetBuffer(size)
//	defer PutBuffer(buf)
func GetBuffer(size uint32) []byte {
	return globalBufferPool.Get(size)
}

// PutBuffer returns a buffer to the global pool.
func PutBuffer(buf []byte) {
	globalBufferPool.Put(buf)
}
