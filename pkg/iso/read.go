package iso

import (
	"fmt"
	"io"
	"sort"

	"github.com/marmos91/ps3netsrv/pkg/vfs"
)

// ReadAt reads image bytes at off. It keeps no cursor, so reads of any
// size in any order return the same bytes.
//
// A request crossing the end of the image returns the available bytes and
// io.EOF. Sector padding after file data reads as zeros.
func (v *VirtualISO) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= v.totalSize {
		return 0, io.EOF
	}

	want := len(p)
	if rest := v.totalSize - off; int64(want) > rest {
		want = int(rest)
	}

	n := 0
	v.mu.Lock()
	closed := v.buf == nil
	if !closed && off < v.bufSize {
		n = copy(p[:want], v.buf[off:])
	}
	v.mu.Unlock()
	if closed {
		return 0, vfs.ErrClosed
	}

	for n < want {
		pos := off + int64(n)

		f, next := v.lookup(pos)
		if f == nil {
			// unmapped: zeros up to the next file or the request end
			stop := off + int64(want)
			if next != nil && next.start < stop {
				stop = next.start
			}
			n += zero(p[n : n+int(stop-pos)])
			continue
		}

		if pos < f.end {
			chunk := min(f.end-pos, int64(want-n))
			read, err := vfs.ReadFullAt(f.src, p[n:n+int(chunk)], pos-f.start)
			n += read
			if err != nil {
				return n, fmt.Errorf("read %s at %d: %w", f.name, pos-f.start, err)
			}
			continue
		}

		chunk := min(f.areaEnd()-pos, int64(want-n))
		n += zero(p[n : n+int(chunk)])
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// lookup returns the file whose padded area holds pos. When none does, it
// returns the first file starting after pos, if any.
func (v *VirtualISO) lookup(pos int64) (hit, next *fileEntry) {
	i := sort.Search(len(v.files), func(i int) bool { return v.files[i].areaEnd() > pos })
	if i == len(v.files) {
		return nil, nil
	}
	if v.files[i].start <= pos {
		return v.files[i], nil
	}
	return nil, v.files[i]
}

func zero(b []byte) int {
	clear(b)
	return len(b)
}
