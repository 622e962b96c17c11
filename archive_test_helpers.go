package bsa

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

// fixtureFile describes one file inside a synthetic archive. compress
// overrides the archive-wide default when non-nil, which sets the
// per-record toggle bit.
type fixtureFile struct {
	name     string
	content  []byte
	compress *bool
}

// fixtureFolder groups fixture files under one folder path.
type fixtureFolder struct {
	name  string
	files []fixtureFile
}

// buildArchive serializes a complete, self-consistent version-104
// archive: header, folder record table in ascending hash order, the
// interleaved name/file-record region, the flat name list when flag
// 0x2 is set, and finally the data blocks (embedded names and zlib
// compression honored according to the flags).
func buildArchive(t testing.TB, flags uint32, folders []fixtureFolder) []byte {
	t.Helper()

	type builtFile struct {
		fixtureFile
		hash       Hash
		block      []byte
		compressed bool
	}
	type builtFolder struct {
		fixtureFolder
		hash  Hash
		files []builtFile
	}

	defaultCompress := flags&flagCompressed != 0
	embedNames := flags&flagEmbeddedNames != 0

	// Hash everything up front and emit in ascending hash order, the
	// conventional layout of real archives.
	built := make([]builtFolder, 0, len(folders))
	for _, fld := range folders {
		bf := builtFolder{fixtureFolder: fld, hash: HashFolder(fld.name)}
		for _, f := range fld.files {
			compressed := defaultCompress
			if f.compress != nil {
				compressed = *f.compress
			}
			bf.files = append(bf.files, builtFile{
				fixtureFile: f,
				hash:        HashFile(f.name),
				block:       buildDataBlock(t, fld.name, f, compressed, embedNames),
				compressed:  compressed,
			})
		}
		sort.Slice(bf.files, func(i, j int) bool { return bf.files[i].hash < bf.files[j].hash })
		built = append(built, bf)
	}
	sort.Slice(built, func(i, j int) bool { return built[i].hash < built[j].hash })

	var totalFolderNameLen, totalFileNameLen uint32
	var fileCount uint32
	for _, fld := range built {
		totalFolderNameLen += uint32(len(fld.name)) + 1 // prefix counts the terminator, not itself
		for _, f := range fld.files {
			fileCount++
			totalFileNameLen += uint32(len(f.name)) + 1
		}
	}

	recordsEnd := uint32(headerSize) + 16*uint32(len(built))
	// Per-folder region: bzstring (1 + len + 1) followed by 16-byte
	// file records.
	contentsSize := uint32(0)
	for _, fld := range built {
		contentsSize += 2 + uint32(len(fld.name)) + 16*uint32(len(fld.files))
	}
	nameListSize := uint32(0)
	if flags&flagFileNames != 0 {
		nameListSize = totalFileNameLen
	}
	dataStart := recordsEnd + contentsSize + nameListSize

	var buf bytes.Buffer
	le := binary.LittleEndian

	// Header.
	buf.Write(magic[:])
	for _, v := range []uint32{
		formatVersion, headerSize, flags,
		uint32(len(built)), fileCount,
		totalFolderNameLen, totalFileNameLen,
		0, // file flags: unused by the decoder
	} {
		require.NoError(t, binary.Write(&buf, le, v))
	}

	// Folder record table. The stored offset points at the folder's
	// file record block and, per the format, includes the total file
	// name length.
	folderOff := recordsEnd
	for _, fld := range built {
		require.NoError(t, binary.Write(&buf, le, uint64(fld.hash)))
		require.NoError(t, binary.Write(&buf, le, uint32(len(fld.files))))
		require.NoError(t, binary.Write(&buf, le, folderOff+totalFileNameLen+2+uint32(len(fld.name))))
		folderOff += 2 + uint32(len(fld.name)) + 16*uint32(len(fld.files))
	}

	// Interleaved folder names and file record blocks.
	dataOff := dataStart
	for _, fld := range built {
		buf.WriteByte(byte(len(fld.name) + 1))
		buf.WriteString(fld.name)
		buf.WriteByte(0)
		for _, f := range fld.files {
			size := uint32(len(f.block))
			if f.compressed != defaultCompress {
				size |= sizeCompressionToggle
			}
			require.NoError(t, binary.Write(&buf, le, uint64(f.hash)))
			require.NoError(t, binary.Write(&buf, le, size))
			require.NoError(t, binary.Write(&buf, le, dataOff))
			dataOff += uint32(len(f.block))
		}
	}

	// Optional flat file name list.
	if flags&flagFileNames != 0 {
		for _, fld := range built {
			for _, f := range fld.files {
				buf.WriteString(f.name)
				buf.WriteByte(0)
			}
		}
	}

	// Data blocks.
	require.Equal(t, int(dataStart), buf.Len())
	for _, fld := range built {
		for _, f := range fld.files {
			buf.Write(f.block)
		}
	}

	return buf.Bytes()
}

// buildDataBlock serializes one file's on-disk data block.
func buildDataBlock(t testing.TB, folder string, f fixtureFile, compressed, embedName bool) []byte {
	t.Helper()

	var buf bytes.Buffer
	if embedName {
		full := NormalizePath(folder) + `\` + NormalizePath(f.name)
		buf.WriteByte(byte(len(full)))
		buf.WriteString(full)
	}

	if !compressed {
		buf.Write(f.content)
		return buf.Bytes()
	}

	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(f.content))))
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(f.content)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// writeArchiveFile drops fixture bytes into a temp dir and returns the
// path.
func writeArchiveFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.bsa")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// oneFolderFixture is the minimal synthetic archive used across the
// decode tests: a single "meshes" folder holding "x.nif".
func oneFolderFixture(t testing.TB, flags uint32) []byte {
	t.Helper()
	return buildArchive(t, flags, []fixtureFolder{
		{name: "meshes", files: []fixtureFile{
			{name: "x.nif", content: []byte("NIFdata")},
		}},
	})
}
