package vfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// RealFile is a handle to a path on an afero filesystem. The path may not
// exist; Exists reports that. Read handles are opened lazily on first
// ReadAt, write handles only through Create.
type RealFile struct {
	fs       afero.Fs
	path     string
	platform Platform
	info     os.FileInfo

	mu     sync.Mutex
	rd     afero.File
	wr     afero.File
	closed bool
}

var (
	_ Entry         = (*RealFile)(nil)
	_ ExtendedTimes = (*RealFile)(nil)
	_ Source        = (*RealFile)(nil)
)

// Open returns a handle for path. A missing path is not an error; stat
// failures other than not-exist are.
//
// No file descriptor is held until the first ReadAt.
//
// Parameters:
//   - fs: the filesystem holding path
//   - path: the path on fs
//   - platform: selects how extended timestamps are looked up
//
// Returns a handle whose Exists reports whether path was found.
func Open(fs afero.Fs, path string, platform Platform) (*RealFile, error) {
	info, err := fs.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &RealFile{fs: fs, path: path, platform: platform, info: info}, nil
}

// OpenWithInfo returns a handle for path using info from an earlier stat or
// directory listing.
func OpenWithInfo(fs afero.Fs, path string, platform Platform, info os.FileInfo) *RealFile {
	return &RealFile{fs: fs, path: path, platform: platform, info: info}
}

// Create creates or truncates path and returns a writable handle.
//
// Writes append at the current offset. Close flushes and releases the
// write handle.
func Create(fs afero.Fs, path string, platform Platform) (*RealFile, error) {
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &RealFile{fs: fs, path: path, platform: platform, info: info, wr: f}, nil
}

// Path returns the underlying filesystem path.
func (f *RealFile) Path() string { return f.path }

// FS returns the filesystem the handle lives on.
func (f *RealFile) FS() afero.Fs { return f.fs }

func (f *RealFile) Name() string {
	if f.info != nil {
		return f.info.Name()
	}
	return filepath.Base(f.path)
}

func (f *RealFile) Exists() bool { return f.info != nil }

func (f *RealFile) IsDir() bool { return f.info != nil && f.info.IsDir() }

func (f *RealFile) Size() int64 {
	if f.info == nil {
		return 0
	}
	return f.info.Size()
}

func (f *RealFile) ModTime() time.Time {
	if f.info == nil {
		return time.Time{}
	}
	return f.info.ModTime()
}

// Times implements ExtendedTimes.
//
// Only OS-backed files are queried, whether the filesystem is an OsFs or
// wraps one (BasePathFs and friends): the stat result carries the OS stat
// record in both cases. When the OS path of the file can be recovered the
// birth time is read from it; otherwise the stat record supplies the
// access time and the modification time stands in for creation.
func (f *RealFile) Times() (ctime, atime time.Time, ok bool) {
	if f.info == nil || !f.platform.supportsTimes() {
		return time.Time{}, time.Time{}, false
	}
	if p, found := f.osPath(); found {
		if ctime, atime, ok = osTimes(p); ok {
			return ctime, atime, true
		}
	}
	return statTimes(f.info)
}

// realPather is implemented by afero.BasePathFs.
type realPather interface {
	RealPath(name string) (string, error)
}

// osPath returns the OS path of the file. A path recovered through a
// wrapper only counts when it names the same file the handle was opened on.
func (f *RealFile) osPath() (string, bool) {
	switch fs := f.fs.(type) {
	case *afero.OsFs:
		return f.path, true
	case realPather:
		p, err := fs.RealPath(f.path)
		if err != nil {
			return "", false
		}
		info, err := os.Stat(p)
		if err != nil || !os.SameFile(info, f.info) {
			return "", false
		}
		return p, true
	default:
		return "", false
	}
}

func (f *RealFile) ReadAt(p []byte, off int64) (int, error) {
	if f.info == nil {
		return 0, ErrNotExist
	}
	if f.info.IsDir() {
		return 0, ErrIsDirectory
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, ErrClosed
	}
	if f.rd == nil {
		rd, err := f.fs.Open(f.path)
		if err != nil {
			f.mu.Unlock()
			return 0, fmt.Errorf("open %s: %w", f.path, err)
		}
		f.rd = rd
	}
	rd := f.rd
	f.mu.Unlock()

	if off >= f.info.Size() && f.wr == nil {
		return 0, io.EOF
	}
	return rd.ReadAt(p, off)
}

func (f *RealFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, ErrClosed
	}
	if f.wr == nil {
		return 0, ErrNotWritable
	}
	return f.wr.Write(p)
}

func (f *RealFile) List() ([]Entry, error) {
	if !f.IsDir() {
		return nil, ErrNotExist
	}
	infos, err := afero.ReadDir(f.fs, f.path)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", f.path, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, OpenWithInfo(f.fs, filepath.Join(f.path, info.Name()), f.platform, info))
	}
	return entries, nil
}

func (f *RealFile) Find(name string) (Entry, bool) {
	if !f.IsDir() {
		return nil, false
	}
	child := filepath.Join(f.path, name)
	info, err := f.fs.Stat(child)
	if err != nil {
		return nil, false
	}
	return OpenWithInfo(f.fs, child, f.platform, info), true
}

// Close releases open read and write handles. It is safe to call twice.
func (f *RealFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	var err error
	if f.rd != nil {
		err = multierr.Append(err, f.rd.Close())
		f.rd = nil
	}
	if f.wr != nil {
		err = multierr.Append(err, f.wr.Close())
		f.wr = nil
	}
	return err
}
