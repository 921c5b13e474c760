package wire

import "errors"

// Error taxonomy of the protocol.
//
// Handlers wrap one of these sentinels so the connection can log and count
// failures by class. Whether a failure ends the connection is decided
// separately with Fatal.
var (
	// ErrProtocol is a malformed or short request.
	ErrProtocol = errors.New("protocol error")

	// ErrFileSystem is an I/O failure against a real file.
	ErrFileSystem = errors.New("file system error")

	// ErrReadOnly is a write attempted while the server is read-only.
	ErrReadOnly = errors.New("server is read-only")

	// ErrNotFound is a path that does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrNoHandle is a read or write with no open handle.
	ErrNoHandle = errors.New("no open handle")
)

// fatalError marks an error as ending the connection.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as connection-ending. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err, or any error it wraps, was marked by Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// Class returns a short label for metrics: protocol, filesystem, readonly,
// notfound, nohandle or other. A nil error yields "".
func Class(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrFileSystem):
		return "filesystem"
	case errors.Is(err, ErrReadOnly):
		return "readonly"
	case errors.Is(err, ErrNotFound):
		return "notfound"
	case errors.Is(err, ErrNoHandle):
		return "nohandle"
	default:
		return "other"
	}
}
