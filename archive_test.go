package bsa

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestOpenArchiveFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Open(t.TempDir() + "/nope.bsa")
		assert.Error(t, err)
	})

	t.Run("successful open and close", func(t *testing.T) {
		path := writeArchiveFile(t, oneFolderFixture(t, flagFolderNames|flagFileNames))

		a, err := Open(path)
		require.NoError(t, err)
		assert.Equal(t, 1, a.FileCount())

		require.NoError(t, a.Close())
		require.NoError(t, a.Close()) // idempotent
	})

	t.Run("decode failure leaves no archive", func(t *testing.T) {
		data := oneFolderFixture(t, flagFolderNames)
		copy(data, "ZIP\x00")
		path := writeArchiveFile(t, data)

		a, err := Open(path)
		assert.Nil(t, a)
		assert.ErrorIs(t, err, ErrBadMagic)
	})
}

func TestCloseNilSafe(t *testing.T) {
	var a *Archive
	assert.NoError(t, a.Close())
}

func TestExtractUncompressed(t *testing.T) {
	data := buildArchive(t, flagFolderNames|flagFileNames, []fixtureFolder{
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: []byte("NIFdata")},
		}},
	})
	a, err := NewArchive(bytes.NewReader(data))
	require.NoError(t, err)

	got, err := a.Extract(PathHash("x", ".nif"))
	require.NoError(t, err)
	assert.Equal(t, []byte("NIFdata"), got)
}

func TestExtractCompressedByDefault(t *testing.T) {
	content := bytes.Repeat([]byte("compressible payload "), 64)
	data := buildArchive(t, flagFolderNames|flagFileNames|flagCompressed, []fixtureFolder{
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: content},
		}},
	})
	a, err := NewArchive(bytes.NewReader(data))
	require.NoError(t, err)

	f, ok := a.File(PathHash("x", ".nif"))
	require.True(t, ok)
	assert.True(t, f.Compressed)
	assert.Less(t, int(f.Size), len(content), "stored block should be smaller than the payload")

	got, err := a.Extract(PathHash("x", ".nif"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestExtractCompressionToggle(t *testing.T) {
	// Archive-wide default on, one file opts out; and the reverse.
	content := bytes.Repeat([]byte("abcd"), 32)
	data := buildArchive(t, flagFolderNames|flagFileNames|flagCompressed, []fixtureFolder{
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: content, compress: boolPtr(false)},
			{name: "idle.kf", content: content},
		}},
	})
	a, err := NewArchive(bytes.NewReader(data))
	require.NoError(t, err)

	plain, ok := a.File(PathHash("x", ".nif"))
	require.True(t, ok)
	assert.False(t, plain.Compressed)
	assert.Equal(t, uint32(len(content)), plain.Size)

	packed, ok := a.File(PathHash("idle", ".kf"))
	require.True(t, ok)
	assert.True(t, packed.Compressed)

	for _, h := range []Hash{PathHash("x", ".nif"), PathHash("idle", ".kf")} {
		got, err := a.Extract(h)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	}
}

func TestExtractEmbeddedNames(t *testing.T) {
	data := buildArchive(t, flagFolderNames|flagFileNames|flagEmbeddedNames, []fixtureFolder{
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: []byte("NIFdata")},
		}},
	})
	a, err := NewArchive(bytes.NewReader(data))
	require.NoError(t, err)

	got, err := a.Extract(PathHash("x", ".nif"))
	require.NoError(t, err)
	assert.Equal(t, []byte("NIFdata"), got)
}

func TestExtractUnknownHash(t *testing.T) {
	a, err := NewArchive(bytes.NewReader(oneFolderFixture(t, flagFolderNames)))
	require.NoError(t, err)

	_, err = a.Extract(PathHash("missing", ".nif"))
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestExtractCachedCopyIsFresh(t *testing.T) {
	a, err := NewArchive(bytes.NewReader(oneFolderFixture(t, flagFolderNames|flagFileNames)))
	require.NoError(t, err)

	h := PathHash("x", ".nif")
	first, err := a.Extract(h)
	require.NoError(t, err)

	// Mutating a returned slice must not poison later extractions.
	first[0] = '!'

	second, err := a.Extract(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("NIFdata"), second)
}

func TestExtractPath(t *testing.T) {
	data := buildArchive(t, flagFolderNames|flagFileNames, []fixtureFolder{
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: []byte("NIFdata")},
		}},
	})
	a, err := NewArchive(bytes.NewReader(data))
	require.NoError(t, err)

	t.Run("backslash path", func(t *testing.T) {
		got, err := a.ExtractPath(`meshes\x.nif`)
		require.NoError(t, err)
		assert.Equal(t, []byte("NIFdata"), got)
	})

	t.Run("forward slashes and case folded", func(t *testing.T) {
		got, err := a.ExtractPath("Meshes/X.NIF")
		require.NoError(t, err)
		assert.Equal(t, []byte("NIFdata"), got)
	})

	t.Run("wrong folder", func(t *testing.T) {
		_, err := a.ExtractPath(`textures\x.nif`)
		assert.ErrorIs(t, err, ErrFolderNotFound)
	})

	t.Run("unknown file", func(t *testing.T) {
		_, err := a.ExtractPath(`meshes\y.nif`)
		assert.ErrorIs(t, err, ErrFileNotFound)
	})
}

func TestLookupFile(t *testing.T) {
	data := buildArchive(t, flagFolderNames|flagFileNames, []fixtureFolder{
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: []byte("NIFdata")},
		}},
	})
	a, err := NewArchive(bytes.NewReader(data))
	require.NoError(t, err)

	f, ok := a.LookupFile(`meshes\x.nif`)
	assert.True(t, ok)
	assert.Equal(t, uint32(len("NIFdata")), f.Size)

	_, ok = a.LookupFile(`textures\x.nif`)
	assert.False(t, ok, "folder part must be verified")

	// Bare name skips folder verification.
	_, ok = a.LookupFile("x.nif")
	assert.True(t, ok)
}

func TestLookupDoesNotCrossFolders(t *testing.T) {
	// x.nif lives only in meshes; textures is a real folder with its
	// own contents. Addressing the file through the wrong folder must
	// miss even though both the folder hash and the file hash resolve.
	data := buildArchive(t, flagFolderNames|flagFileNames, []fixtureFolder{
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: []byte("NIFdata")},
		}},
		{name: "textures", files: []fixtureFile{
			{name: "glow.dds", content: []byte("DDSdata")},
		}},
	})
	a, err := NewArchive(bytes.NewReader(data))
	require.NoError(t, err)

	_, ok := a.LookupFile(`textures\x.nif`)
	assert.False(t, ok)
	_, ok = a.LookupFile(`meshes\glow.dds`)
	assert.False(t, ok)

	_, err = a.ExtractPath(`textures\x.nif`)
	assert.ErrorIs(t, err, ErrFileNotFound)

	// The correct folder still resolves both entries.
	got, err := a.ExtractPath(`meshes\x.nif`)
	require.NoError(t, err)
	assert.Equal(t, []byte("NIFdata"), got)
	got, err = a.ExtractPath(`textures\glow.dds`)
	require.NoError(t, err)
	assert.Equal(t, []byte("DDSdata"), got)
}

func TestFolderFiles(t *testing.T) {
	data := buildArchive(t, flagFolderNames|flagFileNames, []fixtureFolder{
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: []byte("a")},
			{name: "idle.kf", content: []byte("b")},
		}},
		{name: "textures", files: []fixtureFile{
			{name: "glow.dds", content: []byte("c")},
		}},
	})
	a, err := NewArchive(bytes.NewReader(data))
	require.NoError(t, err)

	files := a.FolderFiles(PathHash("meshes", ""))
	assert.Len(t, files, 2)
	assert.Contains(t, files, PathHash("x", ".nif"))
	assert.Contains(t, files, PathHash("idle", ".kf"))

	assert.Empty(t, a.FolderFiles(PathHash("sound", "")))
}

func TestBlobWindow(t *testing.T) {
	w, err := newBlobWindow()
	require.NoError(t, err)

	h := PathHash("x", ".nif")
	_, ok := w.lookup(h)
	assert.False(t, ok)

	w.add(h, []byte("data"))
	got, ok := w.lookup(h)
	assert.True(t, ok)
	assert.Equal(t, []byte("data"), got)

	// Oversized blobs are skipped, not cached.
	big := make([]byte, windowMaxBlob+1)
	w.add(PathHash("big", ".dds"), big)
	_, ok = w.lookup(PathHash("big", ".dds"))
	assert.False(t, ok)
}
