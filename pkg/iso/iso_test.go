package iso

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/ps3netsrv/pkg/ps3"
	"github.com/marmos91/ps3netsrv/pkg/vfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var buildTime = time.Date(2024, time.May, 6, 7, 8, 9, 0, time.UTC)

// ============================================================================
// Test Helper Functions
// ============================================================================

func writeTree(t *testing.T, fs afero.Fs, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		require.NoError(t, fs.MkdirAll(filepath.Dir(name), 0755))
		require.NoError(t, afero.WriteFile(fs, name, data, 0644))
	}
}

func build(t *testing.T, fs afero.Fs, dir string, opts ...Option) *VirtualISO {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return buildTime })}, opts...)
	v, err := NewVirtualISO(fs, dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func readImage(t *testing.T, v *VirtualISO) []byte {
	t.Helper()
	buf := make([]byte, v.Size())
	n, err := v.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	return buf
}

func pattern(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i) ^ seed
	}
	return b
}

// records walks the image and returns every record keyed by path.
func records(t *testing.T, r io.ReaderAt) (*Image, map[string][]Record) {
	t.Helper()
	img, err := Inspect(r)
	require.NoError(t, err)

	out := make(map[string][]Record)
	require.NoError(t, Walk(r, img.Root, func(p string, rec Record) error {
		out[p] = append(out[p], rec)
		return nil
	}))
	return img, out
}

func childNames(t *testing.T, r io.ReaderAt, dir Record) []string {
	t.Helper()
	recs, err := ReadDirRecords(r, dir)
	require.NoError(t, err)
	names := make([]string, len(recs))
	for i, rec := range recs {
		names[i] = rec.Name
	}
	return names
}

// sparseFs reports configured sizes for some files and serves a computed
// byte pattern for them, so multi-gigabyte files cost no memory.
type sparseFs struct {
	afero.Fs
	sizes map[string]int64
}

type sizedInfo struct {
	os.FileInfo
	size int64
}

func (i sizedInfo) Size() int64 { return i.size }

func (s *sparseFs) wrap(name string, info os.FileInfo) os.FileInfo {
	if size, ok := s.sizes[filepath.Clean(name)]; ok {
		return sizedInfo{FileInfo: info, size: size}
	}
	return info
}

func (s *sparseFs) Stat(name string) (os.FileInfo, error) {
	info, err := s.Fs.Stat(name)
	if err != nil {
		return nil, err
	}
	return s.wrap(name, info), nil
}

func (s *sparseFs) Open(name string) (afero.File, error) {
	f, err := s.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &sparseFile{File: f, fs: s, name: filepath.Clean(name)}, nil
}

type sparseFile struct {
	afero.File
	fs   *sparseFs
	name string
}

func (f *sparseFile) Readdir(n int) ([]os.FileInfo, error) {
	infos, err := f.File.Readdir(n)
	for i, info := range infos {
		infos[i] = f.fs.wrap(filepath.Join(f.name, info.Name()), info)
	}
	return infos, err
}

func sparseByte(off int64) byte { return byte(off % 251) }

func (f *sparseFile) ReadAt(p []byte, off int64) (int, error) {
	size, ok := f.fs.sizes[f.name]
	if !ok {
		return f.File.ReadAt(p, off)
	}
	if off >= size {
		return 0, io.EOF
	}
	n := min(int64(len(p)), size-off)
	for i := int64(0); i < n; i++ {
		p[i] = sparseByte(off + i)
	}
	if n < int64(len(p)) {
		return int(n), io.EOF
	}
	return int(n), nil
}

// ============================================================================
// Layout Tests
// ============================================================================

func TestVirtualISOLayout(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, map[string][]byte{
		"/games/mygame/a.txt": []byte("hello"),
		"/games/mygame/b.bin": pattern(3000, 0x5A),
	})

	v := build(t, fs, "/games/mygame")
	img := readImage(t, v)

	t.Run("Identity", func(t *testing.T) {
		assert.Equal(t, "mygame.iso", v.Name())
		assert.False(t, v.IsDir())
		assert.True(t, v.Exists())
		assert.False(t, v.PS3Mode())
		assert.Equal(t, int64(v.VolumeSectors())*SectorSize, v.Size())
	})

	t.Run("ExactSectorLayout", func(t *testing.T) {
		// root extent at 32, files at 33 (1 sector) and 34 (2 sectors):
		// volume 36 pads up to 64
		assert.Equal(t, uint32(64), v.VolumeSectors())
		assert.Equal(t, int64(33*SectorSize), v.MetadataSize())
	})

	t.Run("Descriptors", func(t *testing.T) {
		pvd := img[16*SectorSize:]
		assert.Equal(t, byte(1), pvd[0])
		assert.Equal(t, "CD001", string(pvd[1:6]))
		assert.Equal(t, byte(1), pvd[6])
		assert.Equal(t, byte(1), pvd[881])

		term := img[17*SectorSize:]
		assert.Equal(t, byte(255), term[0])
		assert.Equal(t, "CD001", string(term[1:6]))
		assert.Equal(t, byte(1), term[6])

		// volume id is zero padded, not space padded
		assert.Equal(t, "MYGAME", string(pvd[40:46]))
		assert.Equal(t, make([]byte, 26), pvd[46:72])

		// both-endian volume size
		assert.Equal(t, uint32(64), binary.LittleEndian.Uint32(pvd[80:]))
		assert.Equal(t, uint32(64), binary.BigEndian.Uint32(pvd[84:]))
		assert.Equal(t, uint16(2048), binary.LittleEndian.Uint16(pvd[128:]))
		assert.Equal(t, uint16(2048), binary.BigEndian.Uint16(pvd[130:]))

		// root record padded like its "." entry: 33 + 1 + 6 bytes
		assert.Equal(t, byte(40), pvd[156])
		assert.Equal(t, uint32(32), binary.LittleEndian.Uint32(pvd[158:]))
		assert.Equal(t, uint32(32), binary.BigEndian.Uint32(pvd[162:]))
		assert.Equal(t, byte(flagDirectory), pvd[156+25])
		assert.Equal(t, byte(1), pvd[156+32])
		assert.Equal(t, make([]byte, 7), pvd[156+33:196], "identifier and padding are zero")
		assert.Equal(t, make([]byte, 881-196), pvd[196:881])

		// the root record matches the "." record of the root extent
		dot := img[32*SectorSize:]
		assert.Equal(t, dot[:40], pvd[156:196])
	})

	t.Run("SystemAreaIsZero", func(t *testing.T) {
		assert.Equal(t, make([]byte, 16*SectorSize), img[:16*SectorSize])
	})

	t.Run("Inspect", func(t *testing.T) {
		parsed, recs := records(t, v)
		assert.Equal(t, "MYGAME", parsed.VolumeID)
		assert.Equal(t, uint32(64), parsed.VolumeSectors)
		assert.Equal(t, uint32(20), parsed.PathTableL)
		assert.Equal(t, uint32(21), parsed.PathTableM)
		require.Len(t, parsed.PathTable, 1)
		assert.Equal(t, PathTableEntry{Name: "", LBA: 32, Parent: 1}, parsed.PathTable[0])

		require.Len(t, recs["/A.TXT"], 1)
		assert.Equal(t, uint32(33), recs["/A.TXT"][0].LBA)
		assert.Equal(t, uint32(5), recs["/A.TXT"][0].Size)
		assert.Equal(t, uint32(34), recs["/B.BIN"][0].LBA)
		assert.Equal(t, recordDate(buildTime), recs["/B.BIN"][0].Date)
	})

	t.Run("FileDataAndPadding", func(t *testing.T) {
		a := img[33*SectorSize : 34*SectorSize]
		assert.Equal(t, "hello", string(a[:5]))
		assert.Equal(t, make([]byte, SectorSize-5), a[5:])

		b := img[34*SectorSize : 36*SectorSize]
		assert.Equal(t, pattern(3000, 0x5A), b[:3000])
		assert.Equal(t, make([]byte, 2*SectorSize-3000), b[3000:])

		assert.Equal(t, make([]byte, (64-36)*SectorSize), img[36*SectorSize:])
	})
}

func TestVolumePaddingIsNeverZero(t *testing.T) {
	fs := afero.NewMemMapFs()
	// files start at 33; 31 sectors of data end the volume exactly at 64
	writeTree(t, fs, map[string][]byte{"/d/x/f.bin": make([]byte, 31*SectorSize)})

	v := build(t, fs, "/d/x")
	assert.Equal(t, uint32(96), v.VolumeSectors())
}

func TestVolumeSizeIsMultipleOf32(t *testing.T) {
	for files := 0; files < 40; files += 7 {
		fs := afero.NewMemMapFs()
		tree := map[string][]byte{}
		for i := 0; i < files; i++ {
			tree[filepath.Join("/src", strings.Repeat("n", i+1))] = make([]byte, i*1000)
		}
		tree["/src/sub/keep"] = []byte("k")
		writeTree(t, fs, tree)

		v := build(t, fs, "/src")
		assert.Zero(t, v.VolumeSectors()%32, "files=%d", files)
		assert.Zero(t, v.MetadataSize()%SectorSize, "files=%d", files)
	}
}

func TestOrderingIsCaseInsensitive(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, map[string][]byte{
		"/src/beta.txt":      []byte("b"),
		"/src/Alpha.txt":     []byte("a"),
		"/src/delta.txt":     []byte("d"),
		"/src/Charlie/x":     []byte("x"),
		"/src/echo/y":        []byte("y"),
		"/src/echo/Zulu/z":   []byte("z"),
		"/src/echo/bravo/bb": []byte("bb"),
	})

	v := build(t, fs, "/src")
	img, _ := records(t, v)

	assert.Equal(t,
		[]string{".", "..", "ALPHA.TXT;1", "BETA.TXT;1", "CHARLIE", "DELTA.TXT;1", "ECHO"},
		childNames(t, v, img.Root))

	names := make([]string, len(img.PathTable))
	parents := make([]uint16, len(img.PathTable))
	for i, e := range img.PathTable {
		names[i] = e.Name
		parents[i] = e.Parent
	}
	assert.Equal(t, []string{"", "CHARLIE", "ECHO", "BRAVO", "ZULU"}, names)
	assert.Equal(t, []uint16{1, 1, 1, 3, 3}, parents)
}

func TestFilesAreAllocatedDepthFirst(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, map[string][]byte{
		"/src/a":     []byte("a"),
		"/src/x/b":   []byte("b"),
		"/src/x/y/c": []byte("c"),
		"/src/z/d":   []byte("d"),
	})

	v := build(t, fs, "/src")
	_, recs := records(t, v)

	base := recs["/A"][0].LBA
	assert.Equal(t, base+1, recs["/X/B"][0].LBA)
	assert.Equal(t, base+2, recs["/X/Y/C"][0].LBA)
	assert.Equal(t, base+3, recs["/Z/D"][0].LBA)

	// directories referenced by records match the path table
	img, err := Inspect(v)
	require.NoError(t, err)
	byName := map[string]PathTableEntry{}
	for _, e := range img.PathTable {
		byName[e.Name] = e
	}
	assert.Equal(t, byName["X"].LBA, recs["/X"][0].LBA)
	assert.Equal(t, byName["Y"].LBA, recs["/X/Y"][0].LBA)
	assert.Equal(t, uint16(2), byName["Y"].Parent)
}

func TestDotDotPointsAtParent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, map[string][]byte{"/src/sub/f": []byte("f")})

	v := build(t, fs, "/src")
	img, recs := records(t, v)

	rootRecs, err := ReadDirRecords(v, img.Root)
	require.NoError(t, err)
	assert.Equal(t, img.Root.LBA, rootRecs[0].LBA)
	assert.Equal(t, img.Root.LBA, rootRecs[1].LBA, "root .. refers to itself")

	subRecs, err := ReadDirRecords(v, recs["/SUB"][0])
	require.NoError(t, err)
	assert.Equal(t, recs["/SUB"][0].LBA, subRecs[0].LBA)
	assert.Equal(t, img.Root.LBA, subRecs[1].LBA)
	assert.Equal(t, img.Root.Size, subRecs[1].Size)
}

func TestRecordsNeverStraddleSectors(t *testing.T) {
	fs := afero.NewMemMapFs()
	tree := map[string][]byte{}
	for i := 0; i < 60; i++ {
		name := strings.Repeat(string(rune('a'+i%26)), 90) + strings.Repeat("0", i%7) + string(rune('A'+i/26))
		tree["/src/"+name] = []byte{byte(i)}
	}
	writeTree(t, fs, tree)

	v := build(t, fs, "/src")
	img, err := Inspect(v)
	require.NoError(t, err)

	assert.Greater(t, img.Root.Size, uint32(SectorSize))
	assert.Zero(t, img.Root.Size%SectorSize)

	recs, err := ReadDirRecords(v, img.Root)
	require.NoError(t, err)
	assert.Len(t, recs, 62)
	for _, r := range recs[2:] {
		assert.Zero(t, r.Length%2)
	}
}

func TestISONames(t *testing.T) {
	fs := afero.NewMemMapFs()
	long := strings.Repeat("l", 300)
	writeTree(t, fs, map[string][]byte{"/src/café.txt": []byte("c")})
	writeTree(t, fs, map[string][]byte{"/src/" + long: []byte("l")})

	v := build(t, fs, "/src")
	img, err := Inspect(v)
	require.NoError(t, err)

	names := childNames(t, v, img.Root)
	require.Len(t, names, 4)
	assert.Equal(t, "CAF_.TXT;1", names[2])
	assert.Equal(t, strings.Repeat("L", maxIdentLen-2)+";1", names[3])

	recs, err := ReadDirRecords(v, img.Root)
	require.NoError(t, err)
	assert.Equal(t, byte(254), recs[3].Length)
}

// ============================================================================
// Multipart and Multi-extent Tests
// ============================================================================

func TestMultipartFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, map[string][]byte{
		"/src/big.bin.66600":  []byte("0123"),
		"/src/big.bin.66601":  []byte("4567"),
		"/src/big.bin.66602":  []byte("89"),
		"/src/big.bin.66604":  []byte("ignored: gap at 66603"),
		"/src/lonely.66601":   []byte("orphan part"),
		"/src/notpart.6660x":  []byte("regular"),
		"/src/sub/disc.66600": pattern(5000, 1),
		"/src/sub/disc.66601": pattern(100, 2),
	})

	v := build(t, fs, "/src")
	img, recs := records(t, v)

	assert.Equal(t,
		[]string{".", "..", "BIG.BIN;1", "NOTPART.6660X;1", "SUB"},
		childNames(t, v, img.Root))

	big := recs["/BIG.BIN"][0]
	assert.Equal(t, uint32(10), big.Size)

	data := make([]byte, big.Size)
	_, err := v.ReadAt(data, int64(big.LBA)*SectorSize)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	disc := recs["/SUB/DISC"][0]
	want := append(pattern(5000, 1), pattern(100, 2)...)
	require.Equal(t, uint32(len(want)), disc.Size)

	// every window across the part boundary equals the concatenation
	start := int64(disc.LBA) * SectorSize
	for off := 4990; off < 5010; off++ {
		buf := make([]byte, 17)
		_, err := v.ReadAt(buf, start+int64(off))
		require.NoError(t, err)
		assert.Equal(t, want[off:off+17], buf, "off=%d", off)
	}
}

func TestMultiExtentFiles(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeTree(t, mem, map[string][]byte{
		"/src/huge.pkg":  nil,
		"/src/exact.pkg": nil,
		"/src/small.txt": []byte("s"),
	})

	hugeSize := int64(2*MultiExtentPartSize + 5000)
	fs := &sparseFs{Fs: mem, sizes: map[string]int64{
		"/src/huge.pkg":  hugeSize,
		"/src/exact.pkg": MultiExtentPartSize,
	}}

	v := build(t, fs, "/src")
	_, recs := records(t, v)

	exact := recs["/EXACT.PKG"]
	require.Len(t, exact, 1)
	assert.False(t, exact[0].MultiExtent())
	assert.Equal(t, uint32(MultiExtentPartSize), exact[0].Size)

	huge := recs["/HUGE.PKG"]
	require.Len(t, huge, 3)

	var total int64
	for i, r := range huge {
		assert.Equal(t, i < 2, r.MultiExtent(), "extent %d", i)
		total += int64(r.Size)
	}
	assert.Equal(t, hugeSize, total)

	partSectors := uint32(MultiExtentPartSize / SectorSize)
	assert.Equal(t, huge[0].LBA+partSectors, huge[1].LBA)
	assert.Equal(t, huge[1].LBA+partSectors, huge[2].LBA)
	assert.Equal(t, uint32(5000), huge[2].Size)

	t.Run("ReadsDeepInsideHugeFile", func(t *testing.T) {
		fileOff := int64(MultiExtentPartSize) + 7
		buf := make([]byte, 4)
		_, err := v.ReadAt(buf, int64(huge[0].LBA)*SectorSize+fileOff)
		require.NoError(t, err)
		for i := range buf {
			assert.Equal(t, sparseByte(fileOff+int64(i)), buf[i])
		}
	})

	t.Run("VolumeCoversEverything", func(t *testing.T) {
		assert.Zero(t, v.VolumeSectors()%32)
		end := int64(huge[2].LBA)*SectorSize + int64(huge[2].Size)
		assert.Greater(t, v.Size(), end)
	})
}

// ============================================================================
// Read Path Tests
// ============================================================================

func TestReadsAreIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, map[string][]byte{
		"/src/one":          pattern(1, 1),
		"/src/two":          pattern(2049, 2),
		"/src/empty":        nil,
		"/src/d/three":      pattern(7000, 3),
		"/src/d/part.66600": pattern(3000, 4),
		"/src/d/part.66601": pattern(3001, 5),
		"/src/d/e/f/g/four": pattern(4096, 6),
	})

	v := build(t, fs, "/src")
	whole := readImage(t, v)

	rng := rand.New(rand.NewSource(42))

	t.Run("SequentialChunks", func(t *testing.T) {
		var got []byte
		for off := int64(0); off < v.Size(); {
			size := 1 + rng.Intn(9000)
			buf := make([]byte, size)
			n, err := v.ReadAt(buf, off)
			if err != nil {
				require.ErrorIs(t, err, io.EOF)
			}
			got = append(got, buf[:n]...)
			off += int64(n)
		}
		assert.True(t, bytes.Equal(whole, got))
	})

	t.Run("RandomWindows", func(t *testing.T) {
		for i := 0; i < 500; i++ {
			off := rng.Int63n(v.Size())
			size := 1 + rng.Intn(5000)
			if off+int64(size) > v.Size() {
				size = int(v.Size() - off)
			}
			buf := make([]byte, size)
			n, err := v.ReadAt(buf, off)
			require.NoError(t, err)
			require.Equal(t, size, n)
			require.True(t, bytes.Equal(whole[off:off+int64(size)], buf), "off=%d size=%d", off, size)
		}
	})

	t.Run("AtAndPastEnd", func(t *testing.T) {
		n, err := v.ReadAt(make([]byte, 10), v.Size())
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, io.EOF)

		buf := bytes.Repeat([]byte{0xFF}, 10)
		n, err = v.ReadAt(buf, v.Size()-4)
		assert.Equal(t, 4, n)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, make([]byte, 4), buf[:4])
	})

	t.Run("NegativeOffset", func(t *testing.T) {
		_, err := v.ReadAt(make([]byte, 1), -1)
		assert.Error(t, err)
	})
}

func TestClose(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, map[string][]byte{"/src/f": []byte("data")})

	v, err := NewVirtualISO(fs, "/src")
	require.NoError(t, err)

	_, err = v.ReadAt(make([]byte, 16), int64(v.MetadataSize()))
	require.NoError(t, err)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	_, err = v.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, vfs.ErrClosed)
}

func TestBuildErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, map[string][]byte{"/src/file": []byte("x")})

	_, err := NewVirtualISO(fs, "/src/file")
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = NewVirtualISO(fs, "/missing")
	assert.Error(t, err)
}

func TestEntryInterface(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, map[string][]byte{"/src/f": []byte("x")})
	v := build(t, fs, "/src")

	_, err := v.Write([]byte("x"))
	assert.ErrorIs(t, err, vfs.ErrNotWritable)

	_, ok := v.Find("f")
	assert.False(t, ok)

	_, isTimes := any(v).(vfs.ExtendedTimes)
	assert.False(t, isTimes)
}

// ============================================================================
// PS3 Mode Tests
// ============================================================================

func TestPS3Mode(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, map[string][]byte{
		"/games/GAME/PS3_GAME/PARAM.SFO": ps3.MarshalSFO(map[string]ps3.SFOValue{
			"TITLE_ID": {Format: ps3.SFOFormatUTF8, Data: []byte("BLES01234\x00")},
		}),
		"/games/GAME/PS3_GAME/USRDIR/EBOOT.BIN": pattern(10000, 9),
		"/games/GAME/PS3_DISC.SFB":              []byte(".SFB"),
	})

	filler := bytes.Repeat([]byte{0xAA}, 0x1C0)
	v := build(t, fs, "/games/GAME", WithRand(bytes.NewReader(filler)))

	assert.True(t, v.PS3Mode())
	assert.Equal(t, "BLES01234", v.TitleID())

	head := make([]byte, 2*SectorSize)
	_, err := v.ReadAt(head, 0)
	require.NoError(t, err)

	t.Run("RegionTable", func(t *testing.T) {
		assert.Equal(t, uint32(1), binary.BigEndian.Uint32(head[0:]))
		assert.Equal(t, uint32(0), binary.BigEndian.Uint32(head[4:]))
		assert.Equal(t, uint32(0), binary.BigEndian.Uint32(head[8:]))
		assert.Equal(t, v.VolumeSectors()-1, binary.BigEndian.Uint32(head[12:]))

		regions, err := ps3.ParseRegions(head)
		require.NoError(t, err)
		require.Len(t, regions, 1)
		assert.Equal(t, uint64(v.Size()-1), regions[0].Last)
	})

	t.Run("DiscIdentity", func(t *testing.T) {
		s1 := head[SectorSize:]
		assert.Equal(t, "PlayStation3", string(s1[:12]))
		assert.Equal(t, make([]byte, 4), s1[12:16])
		assert.Equal(t, "BLES-01234"+strings.Repeat(" ", 22), string(s1[0x10:0x30]))
		assert.Equal(t, make([]byte, 0x10), s1[0x30:0x40])
		assert.Equal(t, filler, s1[0x40:0x200])
	})

	t.Run("VolumeID", func(t *testing.T) {
		img, err := Inspect(v)
		require.NoError(t, err)
		assert.Equal(t, PS3VolumeID, img.VolumeID)
	})
}

func TestProductID(t *testing.T) {
	assert.Equal(t, "BCUS-98174"+strings.Repeat(" ", 22), string(ProductID("BCUS98174")))
	assert.Equal(t, "NPEB-00001"+strings.Repeat(" ", 22), string(ProductID("NPEB00001XX")))
	assert.Equal(t, strings.Repeat(" ", 32), string(ProductID("SHORT")))
}

func TestInspectRejectsNonISO(t *testing.T) {
	_, err := Inspect(bytes.NewReader(make([]byte, 20*SectorSize)))
	assert.ErrorIs(t, err, ErrNotISO)
}
