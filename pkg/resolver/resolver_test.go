package resolver

import (
	"path/filepath"
	"testing"

	"github.com/marmos91/ps3netsrv/pkg/vfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const descriptor = "# overlay roots\n\n  /disk2/games  \n; disabled\n/disk3/games\n/missing/games\n"

func fixture(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/srv/games/a.iso":        "primary-a",
		"/srv/games/shared.iso":   "primary-shared",
		"/disk2/games/b.iso":      "disk2-b",
		"/disk2/games/shared.iso": "disk2-shared",
		"/disk3/games/c.iso":      "disk3-c",
		"/srv/music/track.mp3":    "track",
		"/outside/secret.txt":     "secret",
		"/srv/games.INI":          descriptor,
	}
	for name, content := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(name), 0755))
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0644))
	}
	return fs
}

func names(entries []vfs.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.(*vfs.RealFile).Path()
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/games/a.iso", "games/a.iso"},
		{`\games\a.iso`, "games/a.iso"},
		{"games//a.iso", "games/a.iso"},
		{"/", ""},
		{"", ""},
		{"/../../outside/secret.txt", "outside/secret.txt"},
		{"/games/../music", "music"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestResolve(t *testing.T) {
	r := New(fixture(t), "/srv")

	t.Run("PrimaryFirstThenOverlaysInOrder", func(t *testing.T) {
		entries, err := r.Resolve("/games")
		require.NoError(t, err)
		assert.Equal(t, []string{"/srv/games", "/disk2/games", "/disk3/games"}, names(entries))
	})

	t.Run("OverlayOnlyFile", func(t *testing.T) {
		e, ok, err := r.ResolveFirst("/games/b.iso")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "/disk2/games/b.iso", e.(*vfs.RealFile).Path())
	})

	t.Run("PrimaryWinsForDuplicates", func(t *testing.T) {
		entries, err := r.Resolve(`\games\shared.iso`)
		require.NoError(t, err)
		assert.Equal(t, []string{"/srv/games/shared.iso", "/disk2/games/shared.iso"}, names(entries))

		e, ok, err := r.ResolveFirst("/games/shared.iso")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(len("primary-shared")), e.Size())
	})

	t.Run("NoDescriptor", func(t *testing.T) {
		entries, err := r.ResolveAllForDir("/music")
		require.NoError(t, err)
		assert.Equal(t, []string{"/srv/music"}, names(entries))
	})

	t.Run("Missing", func(t *testing.T) {
		e, ok, err := r.ResolveFirst("/games/nope.iso")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, e)
	})

	t.Run("CannotEscapeRoot", func(t *testing.T) {
		_, ok, err := r.ResolveFirst("/../outside/secret.txt")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Root", func(t *testing.T) {
		entries, err := r.Resolve("/")
		require.NoError(t, err)
		assert.Equal(t, []string{"/srv"}, names(entries))
	})
}

func TestResolveForWrite(t *testing.T) {
	r := New(fixture(t), "/srv")

	assert.Equal(t, "/srv/games/new.iso", r.ResolveForWrite("/games/new.iso"))
	assert.Equal(t, "/srv/games/b.iso", r.ResolveForWrite("/games/b.iso"), "overlay matches never receive writes")
	assert.Equal(t, "/srv/x", r.ResolveForWrite("/../x"))
	assert.Equal(t, "/srv", r.ResolveForWrite(""))
}

func TestDescriptorDirectoryIsIgnored(t *testing.T) {
	fs := fixture(t)
	require.NoError(t, fs.MkdirAll("/srv/music.INI", 0755))

	r := New(fs, "/srv")
	entries, err := r.Resolve("/music/track.mp3")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWithPlatform(t *testing.T) {
	r := New(afero.NewMemMapFs(), "/srv/", WithPlatform(vfs.PlatformLinux))
	assert.Equal(t, vfs.PlatformLinux, r.Platform())
	assert.Equal(t, "/srv", r.Root())
}
