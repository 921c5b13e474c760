package handlers

import (
	"context"
	"unicode/utf8"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
	"github.com/marmos91/ps3netsrv/pkg/vfs"
)

// ReadDir handles READ_DIR.
//
// Every root matching the last OPEN_DIR path is listed and the children are
// merged by name, the first root to provide a name winning. At most
// MaxDirEntries entries are returned as
//
//	count i64, then per entry: size i64, mtime i64, is_dir u8, name [512]
//
// The same entries are queued for READ_DIR_ENTRY and the read handle is
// closed. Without a prior OPEN_DIR the count is 0 and the queue is left
// alone.
func ReadDir(ctx context.Context, s *Session, req *Request) (*Response, error) {
	path, ok := s.ClientPath()
	if !ok {
		return emptyListing(), nil
	}

	roots, err := s.resolver.ResolveAllForDir(path)
	if err != nil {
		s.log.Debug("READ_DIR resolve failed", logger.KeyPath, path, logger.KeyError, err)
	}

	entries, err := listUnion(ctx, s, roots)
	s.SetFile(nil)
	if err != nil {
		s.dir.Fill(nil)
		return emptyListing(), err
	}
	s.dir.Fill(entries)

	w := wire.NewWriter(8 + len(entries)*wire.DirEntrySize)
	w.Int64(int64(len(entries)))
	for _, e := range entries {
		w.Int64(e.Size).Int64(e.ModTime).Bool(e.IsDir).Fixed([]byte(truncateName(e.Name, wire.DirEntryNameSize)), wire.DirEntryNameSize)
	}
	return writerResponse(w), nil
}

func emptyListing() *Response {
	b := make([]byte, 8)
	wire.PutInt64(b, 0)
	return bytesResponse(b)
}

// listUnion lists each root in order, keeping the first entry seen for a
// name. Roots that are not directories or fail to list are skipped.
func listUnion(ctx context.Context, s *Session, roots []vfs.Entry) ([]DirEntry, error) {
	seen := make(map[string]struct{})
	var entries []DirEntry

	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !root.IsDir() {
			continue
		}

		children, err := root.List()
		if err != nil {
			s.log.Warn("READ_DIR list failed", logger.KeyPath, root.Name(), logger.KeyError, err)
			continue
		}

		for _, child := range children {
			name := child.Name()
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			entries = append(entries, toDirEntry(child))
			if len(entries) == wire.MaxDirEntries {
				return entries, nil
			}
		}
	}
	return entries, nil
}

func toDirEntry(e vfs.Entry) DirEntry {
	d := DirEntry{
		ModTime: unixSeconds(e.ModTime()),
		IsDir:   e.IsDir(),
		Name:    e.Name(),
	}
	if !d.IsDir {
		d.Size = e.Size()
	}
	return d
}

// truncateName cuts name to at most n bytes without splitting a rune.
func truncateName(name string, n int) string {
	if len(name) <= n {
		return name
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
