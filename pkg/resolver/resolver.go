// Package resolver maps client paths onto the served filesystem.
//
// The primary root always wins. A top-level name may also be spread over
// extra physical roots by placing a descriptor file NAME.INI next to it in
// the primary root, one alternate root per line:
//
//	# PS3ISO.INI
//	/mnt/disk2/PS3ISO
//	/mnt/disk3/PS3ISO
//
// A client path /PS3ISO/game.iso then matches <root>/PS3ISO/game.iso,
// /mnt/disk2/PS3ISO/game.iso and /mnt/disk3/PS3ISO/game.iso, in that order.
// Existing files are rewritten where they resolve, overlays included, but
// new paths are only ever created in the primary root.
package resolver

import (
	"bufio"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/marmos91/ps3netsrv/internal/logger"
	"github.com/marmos91/ps3netsrv/pkg/vfs"
	"github.com/spf13/afero"
)

// DescriptorExt is the extension of overlay descriptor files.
const DescriptorExt = ".INI"

// Resolver resolves client paths against a primary root and its overlays.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	fs       afero.Fs
	root     string
	platform vfs.Platform
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPlatform sets the platform passed to the file handles it returns.
func WithPlatform(p vfs.Platform) Option {
	return func(r *Resolver) { r.platform = p }
}

// New returns a Resolver serving root from fs.
//
// Parameters:
//   - fs: the filesystem holding the primary root and every overlay root
//   - root: the primary root; it is cleaned but not checked for existence
//   - opts: optional settings such as WithPlatform
func New(fs afero.Fs, root string, opts ...Option) *Resolver {
	r := &Resolver{fs: fs, root: filepath.Clean(root), platform: vfs.PlatformOther}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the primary root.
func (r *Resolver) Root() string { return r.root }

// FS returns the filesystem the resolver reads.
func (r *Resolver) FS() afero.Fs { return r.fs }

// Platform returns the platform attached to returned handles.
func (r *Resolver) Platform() vfs.Platform { return r.platform }

// Normalize turns a client path into a slash-separated path relative to the
// root. Backslashes are separators and ".." never climbs above the root.
func Normalize(clientPath string) string {
	p := strings.ReplaceAll(clientPath, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// Resolve returns every existing match for clientPath: the primary root
// first, then each overlay root in descriptor order.
//
// Only the first path component selects overlays, so /PS3ISO/a/b.iso is
// looked up as a/b.iso under every root listed in PS3ISO.INI. An overlay
// root that cannot be read is logged and skipped.
//
// Parameters:
//   - clientPath: the path as sent by the client; "/" and "" name the root
//
// Returns:
//   - []vfs.Entry: the existing matches, possibly none
//   - error: only when the primary root lookup itself fails
func (r *Resolver) Resolve(clientPath string) ([]vfs.Entry, error) {
	rel := Normalize(clientPath)

	var results []vfs.Entry

	primary, err := vfs.Open(r.fs, r.join(r.root, rel), r.platform)
	if err != nil {
		return nil, err
	}
	if primary.Exists() {
		results = append(results, primary)
	}

	first, rest, _ := strings.Cut(rel, "/")
	if first == "" {
		return results, nil
	}

	for _, alt := range r.overlayRoots(first) {
		f, err := vfs.Open(r.fs, r.join(alt, rest), r.platform)
		if err != nil {
			logger.Debug("Overlay lookup failed", logger.KeyRoot, alt, logger.KeyPath, rest, logger.KeyError, err)
			continue
		}
		if f.Exists() {
			results = append(results, f)
		}
	}

	return results, nil
}

// ResolveFirst returns the first match for clientPath. The bool is false
// when nothing matches, in which case the entry is nil.
func (r *Resolver) ResolveFirst(clientPath string) (vfs.Entry, bool, error) {
	results, err := r.Resolve(clientPath)
	if err != nil || len(results) == 0 {
		return nil, false, err
	}
	return results[0], true, nil
}

// ResolveAllForDir returns every match so directory listings can be merged.
func (r *Resolver) ResolveAllForDir(clientPath string) ([]vfs.Entry, error) {
	return r.Resolve(clientPath)
}

// ResolveForWrite returns the primary-root location for clientPath whether
// or not it exists. Paths a client creates or removes live there; a file
// that may sit in an overlay is rewritten through ResolveFirst instead.
func (r *Resolver) ResolveForWrite(clientPath string) string {
	return r.join(r.root, Normalize(clientPath))
}

// overlayRoots reads <root>/<name>.INI. A missing descriptor yields nothing;
// an unreadable one is logged and also yields nothing.
func (r *Resolver) overlayRoots(name string) []string {
	descriptor := filepath.Join(r.root, name+DescriptorExt)

	info, err := r.fs.Stat(descriptor)
	if err != nil || info.IsDir() {
		return nil
	}

	roots, err := readDescriptor(r.fs, descriptor)
	if err != nil {
		logger.Warn("Cannot read overlay descriptor", logger.KeyPath, descriptor, logger.KeyError, err)
		return nil
	}
	return roots
}

func readDescriptor(fs afero.Fs, name string) ([]string, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var roots []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		roots = append(roots, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", name, err)
	}
	return roots, nil
}

func (r *Resolver) join(base, rel string) string {
	if rel == "" {
		return base
	}
	return filepath.Join(base, filepath.FromSlash(rel))
}
