// Package iso synthesizes a read-only ISO9660 image from a directory tree.
//
// The image is never materialized. Its layout is:
//
//	sectors 0-1    PS3 disc header (PS3 mode only, zero otherwise)
//	sector  16     primary volume descriptor
//	sector  17     volume descriptor set terminator
//	sector  20     little-endian path table, then the big-endian copy
//	sector  32+    directory records, one extent per directory
//	files start    file data, each file padded to a whole sector
//	tail           1 to 32 zero sectors up to a multiple of 32
//
// Everything before the files region is built once into an in-memory
// buffer. File data is read from the source files on demand.
package iso

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/pkg/ps3"
	"github.com/marmos91/ps3netsrv/pkg/vfs"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

const (
	// SectorSize is the ISO9660 logical block size.
	SectorSize = 2048

	// MultiExtentPartSize is the largest extent a single directory record
	// describes. Larger files are split into several records.
	MultiExtentPartSize = 0xFFFFF800

	// PS3VolumeID is the volume identifier used for PS3 game folders.
	PS3VolumeID = "PS3VOLUME"

	// DefaultVolumeID is used when the directory has no usable name.
	DefaultVolumeID = "DVDVIDEO"

	// Extension is appended to the directory name to name the image.
	Extension = ".iso"
)

var (
	// ErrNotDirectory is returned when the image root is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrOverlap is returned when two files would share image sectors.
	ErrOverlap = errors.New("file extents overlap")
)

// VirtualISO is a lazily read ISO9660 image over a directory. It satisfies
// vfs.Entry and is safe for concurrent ReadAt.
type VirtualISO struct {
	dir     string
	modTime time.Time
	titleID string

	volumeSectors uint32
	totalSize     int64

	mu      sync.Mutex
	buf     []byte // metadata region, nil once closed
	bufSize int64
	files   []*fileEntry // sorted by start offset
}

var _ vfs.Entry = (*VirtualISO)(nil)

// Option configures image construction.
type Option func(*buildOptions)

type buildOptions struct {
	now  func() time.Time
	rand io.Reader
}

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *buildOptions) { o.now = now }
}

// WithRand sets the source of the PS3 header filler bytes.
func WithRand(r io.Reader) Option {
	return func(o *buildOptions) { o.rand = r }
}

// NewVirtualISO scans dir and builds the image metadata. Any scan failure
// aborts the build.
//
// Only the system area, the volume descriptors, the path tables and the
// directory extents are held in memory. File data is read from the source
// files on demand, which stay open until Close.
//
// A dir holding PS3_GAME/PARAM.SFO with a TITLE_ID produces a PS3 image:
// the volume id is PS3VolumeID and sectors 0-1 carry the disc header.
//
// Parameters:
//   - fs: the filesystem holding dir
//   - dir: the directory to present as an image
//   - opts: optional clock and randomness sources, for reproducible images
//
// Returns:
//   - *VirtualISO: a read-only image; the caller must Close it
//   - error: ErrNotDirectory, or a scan or layout failure
func NewVirtualISO(fs afero.Fs, dir string, opts ...Option) (*VirtualISO, error) {
	o := buildOptions{now: time.Now, rand: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}

	info, err := fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}

	titleID, err := ps3.TitleID(fs, dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debug("No PS3 title id", logger.KeyPath, dir, logger.KeyError, err)
		}
		titleID = ""
	}

	tree, err := scan(fs, dir)
	if err != nil {
		return nil, err
	}

	b := &builder{
		tree:     tree,
		titleID:  titleID,
		volumeID: volumeID(dir, titleID != ""),
		date:     recordDate(o.now()),
		rand:     o.rand,
	}
	if err := b.build(); err != nil {
		_ = closeFiles(tree.files())
		return nil, err
	}

	return &VirtualISO{
		dir:           dir,
		modTime:       info.ModTime(),
		titleID:       titleID,
		volumeSectors: b.volumeSectors,
		totalSize:     int64(b.volumeSectors) * SectorSize,
		buf:           b.buf,
		bufSize:       int64(len(b.buf)),
		files:         b.files,
	}, nil
}

func volumeID(dir string, ps3Mode bool) string {
	if ps3Mode {
		return PS3VolumeID
	}
	name := filepath.Base(filepath.Clean(dir))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return DefaultVolumeID
	}
	return strings.ToUpper(name)
}

// Name returns the directory name with an .iso extension.
func (v *VirtualISO) Name() string { return filepath.Base(v.dir) + Extension }

func (v *VirtualISO) Exists() bool { return true }

func (v *VirtualISO) IsDir() bool { return false }

// Size returns the image size: VolumeSectors * SectorSize.
func (v *VirtualISO) Size() int64 { return v.totalSize }

// ModTime returns the source directory's modification time.
func (v *VirtualISO) ModTime() time.Time { return v.modTime }

// VolumeSectors returns the image size in sectors, a multiple of 32.
func (v *VirtualISO) VolumeSectors() uint32 { return v.volumeSectors }

// MetadataSize returns the size of the in-memory region in bytes.
func (v *VirtualISO) MetadataSize() int64 { return v.bufSize }

// TitleID returns the PS3 title id, or "" outside PS3 mode.
func (v *VirtualISO) TitleID() string { return v.titleID }

// PS3Mode reports whether the image carries a PS3 disc header.
func (v *VirtualISO) PS3Mode() bool { return v.titleID != "" }

// Files returns the number of file entries in the image.
func (v *VirtualISO) Files() int { return len(v.files) }

func (v *VirtualISO) Write([]byte) (int, error) { return 0, vfs.ErrNotWritable }

func (v *VirtualISO) List() ([]vfs.Entry, error) { return nil, vfs.ErrNotExist }

func (v *VirtualISO) Find(string) (vfs.Entry, bool) { return nil, false }

// Close drops the metadata buffer and closes every source file. Calling it
// again is a no-op.
func (v *VirtualISO) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.buf == nil {
		return nil
	}
	v.buf = nil
	return closeFiles(v.files)
}

func closeFiles(files []*fileEntry) error {
	var err error
	for _, f := range files {
		err = multierr.Append(err, f.src.Close())
	}
	return err
}
