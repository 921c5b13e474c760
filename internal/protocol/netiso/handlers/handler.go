package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
	"github.com/marmos91/ps3netsrv/pkg/iso"
	"github.com/marmos91/ps3netsrv/pkg/ps3"
	"github.com/marmos91/ps3netsrv/pkg/vfs"
)

// ============================================================================
// Request and Response
// ============================================================================

// Request is one decoded header plus the stream its payload, if any,
// follows on. Handlers read exactly the payload bytes their command
// defines and nothing more.
type Request struct {
	Header wire.Header
	Body   io.Reader
}

// Response is the encoded reply to one request. The connection writes
// Data in a single call and then calls Release.
type Response struct {
	data []byte
	w    *wire.Writer

	// BytesRead is the file payload sent to the client.
	BytesRead int64

	// BytesWritten is the payload received from the client and stored.
	BytesWritten int64
}

// Data returns the encoded bytes.
func (r *Response) Data() []byte {
	if r.w != nil {
		return r.w.Data()
	}
	return r.data
}

// Release returns pooled buffers. Safe on a nil Response.
func (r *Response) Release() {
	if r != nil && r.w != nil {
		r.w.Release()
		r.w = nil
	}
}

// Handler executes one command against a session.
//
// A returned error is logged by the caller. If wire.IsFatal(err) the
// connection closes after the response, when non-nil, has been sent.
type Handler func(ctx context.Context, s *Session, req *Request) (*Response, error)

func bytesResponse(b []byte) *Response { return &Response{data: b} }

func writerResponse(w *wire.Writer) *Response { return &Response{w: w} }

func resultResponse(ok bool) *Response { return bytesResponse(wire.Result(ok)) }

// ============================================================================
// Shared helpers
// ============================================================================

const (
	// VirtualPS3Prefix selects a virtual image of a PS3 game folder.
	VirtualPS3Prefix = "/***PS3***/"

	// VirtualDVDPrefix selects a virtual image of a video folder.
	VirtualDVDPrefix = "/***DVD***/"
)

// CloseFilePath is the OPEN_FILE path that only closes the read handle.
const CloseFilePath = "/CLOSEFILE"

// readPath reads an n-byte path payload. Trailing NULs are stripped and
// invalid UTF-8 is replaced. A short read cannot be recovered from: the
// stream position is unknown.
func readPath(r io.Reader, n uint16) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", wire.Fatal(fmt.Errorf("%w: path of %d bytes: %v", wire.ErrProtocol, n, err))
	}
	buf = bytes.TrimRight(buf, "\x00")
	return strings.ToValidUTF8(string(buf), "\uFFFD"), nil
}

// virtualTarget returns the directory a virtual image path refers to.
func virtualTarget(path string) (string, bool) {
	for _, prefix := range []string{VirtualPS3Prefix, VirtualDVDPrefix} {
		if strings.HasPrefix(path, prefix) {
			return path[len(prefix):], true
		}
	}
	return "", false
}

type pathEntry interface {
	vfs.Entry
	Path() string
}

// openEntry resolves a file command path to a handle.
//
// A virtual image path whose target is an existing directory builds a
// virtual ISO over it. Otherwise the path resolves to its first match;
// disc images with a known key come back wrapped for decryption.
//
// Every miss, including a failed image build, is reported as ErrNotFound.
func openEntry(s *Session, path string) (vfs.Entry, error) {
	if dir, ok := virtualTarget(path); ok {
		target, found, err := s.resolver.ResolveFirst(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", wire.ErrNotFound, path, err)
		}
		if found && target.IsDir() {
			return buildVirtualISO(s, target)
		}
	}

	entry, found, err := s.resolver.ResolveFirst(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", wire.ErrNotFound, path, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", wire.ErrNotFound, path)
	}

	rf, ok := entry.(*vfs.RealFile)
	if !ok || rf.IsDir() {
		return entry, nil
	}

	img, err := ps3.OpenImage(rf, s.resolver.Root())
	if err != nil {
		_ = rf.Close()
		return nil, fmt.Errorf("%w: %s: %v", wire.ErrNotFound, path, err)
	}
	return img, nil
}

func buildVirtualISO(s *Session, target vfs.Entry) (vfs.Entry, error) {
	dir := target.Name()
	if pe, ok := target.(pathEntry); ok {
		dir = pe.Path()
	}

	start := time.Now()
	img, err := iso.NewVirtualISO(s.resolver.FS(), dir, s.isoOptions...)
	if err != nil {
		s.metrics.RecordVirtualISOBuild(time.Since(start), 0, err)
		s.log.Warn("Virtual ISO build failed", logger.KeyPath, dir, logger.KeyError, err)
		return nil, fmt.Errorf("%w: virtual iso %s: %v", wire.ErrNotFound, dir, err)
	}

	s.metrics.RecordVirtualISOBuild(time.Since(start), img.VolumeSectors(), nil)
	s.log.Debug("Virtual ISO built",
		logger.KeyPath, dir,
		logger.KeySectors, img.VolumeSectors(),
		logger.KeyTitleID, img.TitleID(),
		logger.KeyDurationMs, logger.Duration(start))
	return img, nil
}

// cdMagic is the start of an ISO9660 volume descriptor.
var cdMagic = []byte{0x01, 'C', 'D', '0', '0', '1'}

// probeSectorSize returns the first sector mode whose volume descriptor
// (sector 16) sits where that mode expects it, or DefaultCDSectorSize.
func probeSectorSize(f vfs.Entry) CDSectorSize {
	buf := make([]byte, len(cdMagic))
	for _, size := range cdProbeOrder {
		off := 16*int64(size) + size.UserDataOffset()
		if off+int64(len(buf)) > f.Size() {
			continue
		}
		if _, err := vfs.ReadFullAt(f, buf, off); err != nil {
			continue
		}
		if bytes.Equal(buf, cdMagic) {
			return size
		}
	}
	return DefaultCDSectorSize
}

// setReadHandle installs f as the read handle and re-probes its sector mode.
func (s *Session) setReadHandle(f vfs.Entry) {
	s.SetFile(f)
	s.sectorSize = DefaultCDSectorSize
	if f != nil && !f.IsDir() {
		s.sectorSize = probeSectorSize(f)
	}
}

// unixSeconds converts t for the wire. The zero time is 0.
func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
