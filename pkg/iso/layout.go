package iso

import (
	"fmt"
	"io"
	"sort"
)

const (
	pvdSector        = 16
	terminatorSector = 17
	pathTableLBA     = 20
	firstDirLBA      = 32

	// volumeAlign is the sector multiple the final image is padded to.
	volumeAlign = 32
)

// builder lays out one image. It is discarded once build returns.
type builder struct {
	tree     *tree
	titleID  string
	volumeID string
	date     [7]byte
	rand     io.Reader

	dirs          []*dirNode // breadth-first, dirs[i].idx == i+1
	files         []*fileEntry
	pathTableSize uint32
	ptL, ptM      uint32
	filesStart    uint32
	volumeSectors uint32
	buf           []byte
}

func (b *builder) build() error {
	b.indexDirs()
	fileSectors := b.assignFileLBAs()

	ptSize := len(pathTable(b.dirs, false))
	ptSectors := uint32(sectorsFor(int64(ptSize)))
	b.pathTableSize = uint32(ptSize)

	lba := uint32(pathTableLBA)
	b.ptL = lba
	lba += ptSectors
	b.ptM = lba
	lba += ptSectors
	if lba < firstDirLBA {
		lba = firstDirLBA
	}

	// Pass one sizes every directory extent. Record lengths do not depend
	// on LBAs, so pass two only rewrites field values.
	for _, d := range b.dirs {
		d.lba = lba
		d.content = b.dirContent(d, 0)
		d.sizeBytes = uint32(len(d.content))
		lba += d.sizeBytes / SectorSize
	}
	b.filesStart = lba

	for _, d := range b.dirs {
		content := b.dirContent(d, b.filesStart)
		if len(content) != len(d.content) {
			return fmt.Errorf("directory %q changed size between layout passes", d.name)
		}
		d.content = content
	}

	if uint64(b.filesStart)+uint64(fileSectors) >= 1<<32-volumeAlign {
		return fmt.Errorf("image too large: %d file sectors", fileSectors)
	}
	volume := b.filesStart + uint32(fileSectors)
	b.volumeSectors = (volume/volumeAlign + 1) * volumeAlign

	if err := b.placeFiles(); err != nil {
		return err
	}
	return b.writeMetadata()
}

// indexDirs numbers directories breadth-first, siblings in sortKey order.
func (b *builder) indexDirs() {
	root := b.tree.root
	root.idx = 1
	b.dirs = []*dirNode{root}
	for i := 0; i < len(b.dirs); i++ {
		for _, c := range b.dirs[i].children {
			c.idx = len(b.dirs) + 1
			b.dirs = append(b.dirs, c)
		}
	}
}

// assignFileLBAs walks depth-first: a directory's own files come before
// the files of its subdirectories. It returns the total file sectors.
func (b *builder) assignFileLBAs() int64 {
	var next int64
	b.files = b.tree.files()
	for _, f := range b.files {
		f.rlba = uint32(next)
		next += f.sectors()
		if f.size > MultiExtentPartSize {
			f.extentParts = int((f.size + MultiExtentPartSize - 1) / MultiExtentPartSize)
		} else {
			f.extentParts = 1
		}
	}
	return next
}

// placeFiles fixes absolute offsets and orders entries for lookup.
func (b *builder) placeFiles() error {
	base := int64(b.filesStart) * SectorSize
	for _, f := range b.files {
		f.start = base + int64(f.rlba)*SectorSize
		f.end = f.start + f.size
	}

	sort.SliceStable(b.files, func(i, j int) bool { return b.files[i].start < b.files[j].start })

	for i := 1; i < len(b.files); i++ {
		if prev, cur := b.files[i-1], b.files[i]; prev.areaEnd() > cur.start {
			return fmt.Errorf("%w: %q ends at %d, %q starts at %d", ErrOverlap, prev.name, prev.areaEnd(), cur.name, cur.start)
		}
	}
	return nil
}

// dirContent encodes the records of one directory extent: ".", "..", then
// subdirectories and files merged in sortKey order.
func (b *builder) dirContent(d *dirNode, filesStart uint32) []byte {
	buf := make([]byte, 0, SectorSize)

	parent := d.parentNode()
	buf = appendRecord(buf, record{lba: d.lba, size: d.sizeBytes, flags: flagDirectory, ident: []byte{0}}, b.date)
	buf = appendRecord(buf, record{lba: parent.lba, size: parent.sizeBytes, flags: flagDirectory, ident: []byte{1}}, b.date)

	di, fi := 0, 0
	for di < len(d.children) || fi < len(d.files) {
		takeDir := fi >= len(d.files) ||
			(di < len(d.children) && sortKey(d.children[di].name) < sortKey(d.files[fi].name))

		if takeDir {
			c := d.children[di]
			di++
			buf = appendRecord(buf, record{lba: c.lba, size: c.sizeBytes, flags: flagDirectory, ident: dirIdent(c.name)}, b.date)
			continue
		}

		f := d.files[fi]
		fi++
		buf = b.appendFileRecords(buf, f, filesStart)
	}

	return padSector(buf)
}

// appendFileRecords writes one record per extent. All but the last extent
// carry the multi-extent flag.
func (b *builder) appendFileRecords(buf []byte, f *fileEntry, filesStart uint32) []byte {
	ident := fileIdent(f.name)
	lba := filesStart + f.rlba
	remaining := f.size

	for part := 0; part < f.extentParts; part++ {
		size := min(remaining, MultiExtentPartSize)
		flags := byte(flagFile)
		if part < f.extentParts-1 {
			flags |= flagMultiExtent
		}
		buf = appendRecord(buf, record{lba: lba, size: uint32(size), flags: flags, ident: ident}, b.date)

		lba += uint32(sectorsFor(size))
		remaining -= size
	}
	return buf
}

func sectorsFor(n int64) int64 {
	return (n + SectorSize - 1) / SectorSize
}

func padSector(buf []byte) []byte {
	if rem := len(buf) % SectorSize; rem != 0 {
		buf = append(buf, make([]byte, SectorSize-rem)...)
	}
	return buf
}
