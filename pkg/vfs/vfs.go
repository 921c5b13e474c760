// Package vfs defines the file handle abstraction the protocol engine works
// against. A handle is either a real file or directory on an afero
// filesystem, or a synthetic read-only image (virtual ISO, decrypted disc).
package vfs

import (
	"errors"
	"io"
	"time"
)

var (
	// ErrNotWritable is returned by Write on handles not opened for writing.
	ErrNotWritable = errors.New("handle is not writable")

	// ErrIsDirectory is returned when file data is requested from a directory.
	ErrIsDirectory = errors.New("is a directory")

	// ErrNotExist is returned when reading through a handle whose target is missing.
	ErrNotExist = errors.New("file does not exist")

	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("handle is closed")
)

// Entry is a polymorphic file handle.
//
// ReadAt follows io.ReaderAt: a short read returns io.EOF (or another error).
// Implementations must not keep a cursor; every read is positioned.
type Entry interface {
	Name() string
	Exists() bool
	IsDir() bool
	Size() int64
	ModTime() time.Time

	ReadAt(p []byte, off int64) (int, error)
	Write(p []byte) (int, error)

	// List returns the immediate children of a directory handle.
	List() ([]Entry, error)

	// Find returns the named child of a directory handle.
	Find(name string) (Entry, bool)

	Close() error
}

// ExtendedTimes is an optional capability for handles backed by an OS file.
// Synthetic handles do not implement it.
type ExtendedTimes interface {
	// Times returns creation and last access time. ok is false when the
	// platform lookup failed or is unsupported.
	Times() (ctime, atime time.Time, ok bool)
}

// Source is a sized random-access byte source, such as one file inside a
// virtual image.
type Source interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// ReadFullAt reads len(p) bytes at off, tolerating io.EOF only when the
// buffer was filled.
func ReadFullAt(r io.ReaderAt, p []byte, off int64) (int, error) {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return n, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}
