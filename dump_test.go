package bsa

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpListing(t *testing.T) {
	data := buildArchive(t, flagFolderNames|flagFileNames, []fixtureFolder{
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: []byte("NIFdata")},
		}},
		{name: "textures", files: []fixtureFile{
			{name: "glow.dds", content: []byte("DDS")},
		}},
	})
	a, err := NewArchive(bytes.NewReader(data))
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, a.Dump(&sb))
	out := sb.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5) // header + 2 folders + 2 files

	assert.Equal(t, "bsa version=104 flags=0x00000003 folders=2 files=2", lines[0])
	assert.Contains(t, out, fmt.Sprintf("folder %v count=1", PathHash("meshes", "")))
	assert.Contains(t, out, "name=meshes")
	assert.Contains(t, out, fmt.Sprintf("  file %v size=7", PathHash("x", ".nif")))
	assert.Contains(t, out, "name=x.nif")
}

func TestDumpDeterministic(t *testing.T) {
	data := buildArchive(t, flagFolderNames|flagFileNames, []fixtureFolder{
		{name: "sound", files: []fixtureFile{
			{name: "song.wav", content: []byte("w")},
			{name: "hum.wav", content: []byte("h")},
		}},
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: []byte("n")},
		}},
	})
	a, err := NewArchive(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, a.listing(), a.listing())
}

func TestDumpMarksCompressedFiles(t *testing.T) {
	data := buildArchive(t, flagFolderNames|flagFileNames|flagCompressed, []fixtureFolder{
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: bytes.Repeat([]byte("n"), 64)},
		}},
	})
	a, err := NewArchive(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Contains(t, a.listing(), " z name=x.nif")
}
