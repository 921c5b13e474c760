package vfs

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// MultiPart presents ordered parts as one contiguous Source. Reads that span
// a part boundary continue in the next part at offset zero.
//
// Concurrent ReadAt calls are allowed. Close waits for reads in flight and
// later reads fail with ErrClosed.
type MultiPart struct {
	starts []int64 // starts[i] is the logical offset of parts[i]
	size   int64

	mu     sync.RWMutex
	parts  []Source
	closed bool
}

var _ Source = (*MultiPart)(nil)

// NewMultiPart joins parts in order. Part sizes are fixed at construction.
func NewMultiPart(parts ...Source) *MultiPart {
	m := &MultiPart{
		parts:  parts,
		starts: make([]int64, len(parts)),
	}
	for i, p := range parts {
		m.starts[i] = m.size
		m.size += p.Size()
	}
	return m
}

func (m *MultiPart) Size() int64 { return m.size }

// Parts returns the number of underlying parts.
func (m *MultiPart) Parts() int { return len(m.parts) }

func (m *MultiPart) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	if off >= m.size {
		return 0, io.EOF
	}

	// last part whose start is <= off
	idx := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] > off }) - 1

	read := 0
	for idx < len(m.parts) && read < len(p) {
		part := m.parts[idx]
		inPart := off - m.starts[idx]
		want := part.Size() - inPart
		if want > int64(len(p)-read) {
			want = int64(len(p) - read)
		}
		if want <= 0 {
			idx++
			continue
		}

		n, err := part.ReadAt(p[read:read+int(want)], inPart)
		read += n
		off += int64(n)
		if int64(n) < want {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return read, fmt.Errorf("part %d: %w", idx, err)
		}
		idx++
	}

	if read < len(p) {
		return read, io.EOF
	}
	return read, nil
}

// Close closes every part once and reports all failures together.
func (m *MultiPart) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var err error
	for _, p := range m.parts {
		err = multierr.Append(err, p.Close())
	}
	return err
}
