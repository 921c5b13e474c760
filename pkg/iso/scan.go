package iso

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/marmos91/ps3netsrv/pkg/vfs"
	"github.com/spf13/afero"
)

const (
	// multipartFirst marks the first part of a split file.
	multipartFirst = ".66600"
	multipartMax   = 99
)

// dirNode is one directory of the image. The root has isRoot set and a nil
// parent.
type dirNode struct {
	name     string
	parent   *dirNode
	isRoot   bool
	children []*dirNode  // sorted by sortKey
	files    []*fileEntry // sorted by sortKey

	idx       int    // 1-based breadth-first index, root = 1
	lba       uint32 // extent location
	sizeBytes uint32 // extent length, a multiple of SectorSize
	content   []byte
}

// parentNode returns the directory ".." refers to.
func (d *dirNode) parentNode() *dirNode {
	if d.isRoot {
		return d
	}
	return d.parent
}

// fileEntry is one logical file of the image, possibly spread over several
// multipart source files.
type fileEntry struct {
	name string
	size int64
	src  vfs.Source

	rlba        uint32 // sector offset from the files region start
	extentParts int
	start       int64 // absolute image offset of the first byte
	end         int64 // start + size
}

// sectors returns the number of sectors the file occupies.
func (f *fileEntry) sectors() int64 {
	return (f.size + SectorSize - 1) / SectorSize
}

// areaEnd is the end of the file's sector-padded area.
func (f *fileEntry) areaEnd() int64 {
	return f.start + f.sectors()*SectorSize
}

type tree struct {
	root *dirNode
}

// files lists every file entry in depth-first order.
func (t *tree) files() []*fileEntry {
	var out []*fileEntry
	var walk func(d *dirNode)
	walk = func(d *dirNode) {
		out = append(out, d.files...)
		for _, c := range d.children {
			walk(c)
		}
	}
	walk(t.root)
	return out
}

func sortKey(name string) string { return strings.ToUpper(name) }

func sortByKey[T any](items []T, name func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		return sortKey(name(items[i])) < sortKey(name(items[j]))
	})
}

// scan walks dir depth-first into a tree. Multipart series collapse into a
// single entry named after the base name.
func scan(fs afero.Fs, dir string) (*tree, error) {
	root := &dirNode{isRoot: true}
	if err := scanDir(fs, dir, root); err != nil {
		_ = closeFiles((&tree{root: root}).files())
		return nil, err
	}
	return &tree{root: root}, nil
}

func scanDir(fs afero.Fs, dir string, node *dirNode) error {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}
	sortByKey(infos, os.FileInfo.Name)

	seen := make(map[string]bool)
	for _, info := range infos {
		name := info.Name()
		full := filepath.Join(dir, name)

		if info.IsDir() {
			child := &dirNode{name: name, parent: node}
			node.children = append(node.children, child)
			if err := scanDir(fs, full, child); err != nil {
				return err
			}
			continue
		}

		if isMultipartName(name) {
			if !strings.HasSuffix(name, multipartFirst) {
				continue
			}
			base := name[:len(name)-len(multipartFirst)]
			if seen[base] {
				continue
			}
			seen[base] = true

			entry, err := multipartEntry(fs, dir, base, info)
			if err != nil {
				return err
			}
			node.files = append(node.files, entry)
			continue
		}

		node.files = append(node.files, &fileEntry{
			name: name,
			size: info.Size(),
			src:  sourceFor(fs, full, info),
		})
	}

	sortByKey(node.files, func(f *fileEntry) string { return f.name })
	return nil
}

// isMultipartName matches names ending in .666NN.
func isMultipartName(name string) bool {
	if len(name) < 7 {
		return false
	}
	suffix := name[len(name)-6:]
	return strings.HasPrefix(suffix, ".666") && isDigit(suffix[4]) && isDigit(suffix[5])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// multipartEntry probes base.66601, base.66602, ... until one is missing.
func multipartEntry(fs afero.Fs, dir, base string, first os.FileInfo) (*fileEntry, error) {
	parts := []vfs.Source{sourceFor(fs, filepath.Join(dir, first.Name()), first)}

	for i := 1; i <= multipartMax; i++ {
		name := filepath.Join(dir, fmt.Sprintf("%s.666%02d", base, i))
		info, err := fs.Stat(name)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			closeSources(parts)
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		if !info.Mode().IsRegular() {
			break
		}
		parts = append(parts, sourceFor(fs, name, info))
	}

	mp := vfs.NewMultiPart(parts...)
	return &fileEntry{name: base, size: mp.Size(), src: mp}, nil
}

func sourceFor(fs afero.Fs, path string, info os.FileInfo) vfs.Source {
	return vfs.OpenWithInfo(fs, path, vfs.PlatformOther, info)
}

func closeSources(parts []vfs.Source) {
	for _, p := range parts {
		_ = p.Close()
	}
}
