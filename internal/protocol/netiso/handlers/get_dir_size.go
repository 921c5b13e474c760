package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/ps3netsrv/internal/protocol/netiso/wire"
	"github.com/spf13/afero"
)

// GetDirSize handles GET_DIR_SIZE: the total size of the regular files
// below the first match of the path, as an i64. A miss answers -1.
func GetDirSize(ctx context.Context, s *Session, req *Request) (*Response, error) {
	path, err := readPath(req.Body, req.Header.PathLen())
	if err != nil {
		return resultResponse(false), err
	}

	entry, found, err := s.resolver.ResolveFirst(path)
	if err != nil || !found {
		return dirSizeResponse(-1), fmt.Errorf("%w: %s", wire.ErrNotFound, path)
	}
	defer func() { _ = entry.Close() }()

	pe, ok := entry.(pathEntry)
	if !ok || !entry.IsDir() {
		return dirSizeResponse(entry.Size()), nil
	}

	var total int64
	err = afero.Walk(s.resolver.FS(), pe.Path(), func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return dirSizeResponse(-1), fmt.Errorf("%w: walk %s: %v", wire.ErrFileSystem, path, err)
	}

	return dirSizeResponse(total), nil
}

func dirSizeResponse(size int64) *Response {
	w := wire.NewWriter(8)
	w.Int64(size)
	return writerResponse(w)
}
