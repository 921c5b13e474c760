package handlers

import (
	"log/slog"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
	"github.com/marmos91/ps3netsrv/pkg/iso"
	"github.com/marmos91/ps3netsrv/pkg/metrics"
	"github.com/marmos91/ps3netsrv/pkg/resolver"
	"github.com/marmos91/ps3netsrv/pkg/vfs"
	"go.uber.org/multierr"
)

// ============================================================================
// CD Sector Modes
// ============================================================================

// CDSectorSize is the physical sector size of the open image, used by
// READ_CD_2048_CRITICAL to map logical 2048-byte sectors onto the file.
type CDSectorSize uint32

const (
	CDSector2048 CDSectorSize = 2048
	CDSector2352 CDSectorSize = 2352
	CDSector2336 CDSectorSize = 2336
	CDSector2340 CDSectorSize = 2340
)

// DefaultCDSectorSize is in force until a probe matches.
const DefaultCDSectorSize = CDSector2352

// cdProbeOrder is the order in which sector sizes are tried.
var cdProbeOrder = []CDSectorSize{CDSector2352, CDSector2048, CDSector2336, CDSector2340}

// UserDataOffset is the byte offset of the 2048 bytes of user data within
// one physical sector. Raw modes carry a BytesToSkip prefix; cooked 2048
// images have none.
func (c CDSectorSize) UserDataOffset() int64 {
	if c == CDSector2048 {
		return 0
	}
	return wire.BytesToSkip
}

// ============================================================================
// Directory Entry Queue
// ============================================================================

// DirEntry is one immutable directory listing entry.
type DirEntry struct {
	Size    int64
	ModTime int64 // seconds since the Unix epoch
	IsDir   bool
	Name    string
}

type dirQueueState int

const (
	dirQueueUnset dirQueueState = iota
	dirQueueEmpty
	dirQueueFilled
)

// DirQueue holds the listing produced by READ_DIR until READ_DIR_ENTRY
// drains it, front first.
//
// The queue has three explicit states: unset (no listing since the last
// OPEN_DIR), empty (a listing that produced or has run out of entries) and
// filled.
type DirQueue struct {
	state   dirQueueState
	entries []DirEntry
}

// Fill replaces the queue contents.
func (q *DirQueue) Fill(entries []DirEntry) {
	if len(entries) == 0 {
		q.state, q.entries = dirQueueEmpty, nil
		return
	}
	q.state, q.entries = dirQueueFilled, entries
}

// Reset drops any listing and returns the queue to the unset state.
func (q *DirQueue) Reset() {
	q.state, q.entries = dirQueueUnset, nil
}

// Pop removes and returns the front entry. ok is false when the queue is
// unset or drained.
func (q *DirQueue) Pop() (entry DirEntry, ok bool) {
	if q.state != dirQueueFilled {
		return DirEntry{}, false
	}
	entry, q.entries = q.entries[0], q.entries[1:]
	if len(q.entries) == 0 {
		q.state, q.entries = dirQueueEmpty, nil
	}
	return entry, true
}

// Len returns the number of entries left.
func (q *DirQueue) Len() int { return len(q.entries) }

// IsSet reports whether a listing has been stored since the last reset.
func (q *DirQueue) IsSet() bool { return q.state != dirQueueUnset }

// ============================================================================
// Session
// ============================================================================

// SessionConfig carries the per-server settings every session shares.
type SessionConfig struct {
	// Resolver maps client paths onto the served roots. Required.
	Resolver *resolver.Resolver

	// ReadOnly rejects every mutating command.
	ReadOnly bool

	// ClientAddr is the remote address, for logs.
	ClientAddr string

	// Metrics receives virtual ISO build timings. Nil disables them.
	Metrics metrics.NetisoMetrics

	// ISOOptions are passed to every virtual ISO build.
	ISOOptions []iso.Option

	// Logger is the connection-scoped logger. Nil uses the global one.
	Logger *slog.Logger
}

// Session is the state of one client connection: the open read and write
// handles, the CD sector mode, the last OPEN_DIR path and the pending
// directory listing.
//
// A Session belongs to exactly one connection goroutine and is not safe for
// concurrent use. Close must run when the connection ends.
type Session struct {
	resolver   *resolver.Resolver
	readOnly   bool
	clientAddr string
	metrics    metrics.NetisoMetrics
	isoOptions []iso.Option
	log        *slog.Logger

	file       vfs.Entry
	writeFile  vfs.Entry
	sectorSize CDSectorSize
	clientPath string
	pathSet    bool
	dir        DirQueue
}

// NewSession creates a session with no open handles.
func NewSession(cfg SessionConfig) *Session {
	s := &Session{
		resolver:   cfg.Resolver,
		readOnly:   cfg.ReadOnly,
		clientAddr: cfg.ClientAddr,
		metrics:    cfg.Metrics,
		isoOptions: cfg.ISOOptions,
		log:        cfg.Logger,
		sectorSize: DefaultCDSectorSize,
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoopNetisoMetrics()
	}
	if s.log == nil {
		s.log = logger.With(logger.KeyClientAddr, cfg.ClientAddr)
	}
	return s
}

// ReadOnly reports whether mutating commands are rejected.
func (s *Session) ReadOnly() bool { return s.readOnly }

// File returns the open read handle, or nil.
func (s *Session) File() vfs.Entry { return s.file }

// WriteHandle returns the open write handle, or nil.
func (s *Session) WriteHandle() vfs.Entry { return s.writeFile }

// SectorSize returns the CD sector mode of the read handle.
func (s *Session) SectorSize() CDSectorSize { return s.sectorSize }

// ClientPath returns the path of the last OPEN_DIR and whether one was set.
func (s *Session) ClientPath() (string, bool) { return s.clientPath, s.pathSet }

// Dir returns the pending directory listing.
func (s *Session) Dir() *DirQueue { return &s.dir }

// SetFile replaces the read handle, closing the previous one.
func (s *Session) SetFile(f vfs.Entry) {
	if s.file != nil && s.file != f {
		if err := s.file.Close(); err != nil {
			s.log.Debug("Close read handle failed", logger.KeyPath, s.file.Name(), logger.KeyError, err)
		}
	}
	s.file = f
}

// SetWriteFile replaces the write handle, closing the previous one.
func (s *Session) SetWriteFile(f vfs.Entry) {
	if s.writeFile != nil && s.writeFile != f {
		if err := s.writeFile.Close(); err != nil {
			s.log.Debug("Close write handle failed", logger.KeyPath, s.writeFile.Name(), logger.KeyError, err)
		}
	}
	s.writeFile = f
}

// Close releases both handles and the directory listing. It is safe to
// call more than once.
func (s *Session) Close() error {
	var err error
	if s.file != nil {
		err = multierr.Append(err, s.file.Close())
		s.file = nil
	}
	if s.writeFile != nil {
		err = multierr.Append(err, s.writeFile.Close())
		s.writeFile = nil
	}
	s.dir.Reset()
	return err
}
