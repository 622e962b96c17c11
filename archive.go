// Package bsa decodes Bethesda Softworks Archive (BSA) containers,
// wire version 104, into an in-memory index addressed by the format's
// proprietary 64-bit path hashes.
//
// The package is intended for read-only scenarios, such as asset
// inspection and modding tooling, where fast hash-keyed lookups are
// required but no archive mutation ever happens.
//
// IMPLEMENTATION:
// Open memory-maps the archive, walks its tables once, strictly front
// to back (header, folder record table, interleaved folder names and
// per-folder file record blocks, optional flat file name list), and
// builds two maps keyed by the on-disk 64-bit path hash: one for
// folders, one for files. Decoding is all-or-nothing; a malformed or
// truncated archive yields a single error and no model.
//
// File contents are extracted lazily from the same memory-mapped
// handle. Compressed data blocks are inflated with zlib, and recently
// extracted blobs are held in a small LRU window backed by a larger
// adaptive replacement cache (ARC) so repeated reads of hot assets
// skip the decompression entirely.
//
// A decoded Archive is immutable and safe for concurrent readers.
package bsa

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hashicorp/golang-lru/arc/v2"
	"golang.org/x/exp/mmap"
)

var (
	ErrFolderNotFound = errors.New("bsa: folder not found")
	ErrFileNotFound   = errors.New("bsa: file not found")

	// ErrSizeMismatch reports a compressed data block whose inflated
	// length disagrees with the original-size word that prefixes it.
	ErrSizeMismatch = errors.New("bsa corrupt: decompressed size mismatch")
)

// defaultCacheSize bounds the second-level extraction cache.
const defaultCacheSize = 1 << 10 // 1K blobs

// Archive is the fully decoded model of a version-104 archive.
//
// An Archive is created only by a complete, successful decode and is
// immutable afterwards; all methods are safe for concurrent use. The
// underlying byte source stays open for random-access extraction until
// Close is called.
type Archive struct {
	hdr Header

	// folders and files index the retained per-entry summaries by the
	// 64-bit path hash stored on the wire.
	folders hashMap[Folder]
	files   hashMap[File]

	// order lists every file hash in wire order. names and folderNames
	// carry the decoded strings when the archive included them; both
	// maps may be nil.
	order       []Hash
	names       map[Hash]string
	folderNames map[Hash]string

	// contents groups file hashes under their folder's hash, in wire
	// order.
	contents map[Hash][]Hash

	// src serves both the structured decode and later extraction;
	// ReadAt carries no position, so one handle is enough. closer is
	// non-nil only when Open mapped the file itself.
	src    io.ReaderAt
	closer io.Closer

	// window and cache are the two extraction tiers: a tiny LRU of the
	// most recently decoded blobs in front of a larger ARC that
	// balances recency and frequency.
	window *blobWindow
	cache  *arc.ARCCache[Hash, []byte]
}

// Open memory-maps the archive at path and decodes it.
//
// Error semantics:
//   - mapping failures surface immediately;
//   - any structural or I/O error during the decode closes the mapping
//     and returns that error; no partial model escapes.
//
// The returned Archive keeps the mapping open for extraction; callers
// must Close it when done.
func Open(path string) (*Archive, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap archive: %w", err)
	}
	a, err := NewArchive(r)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	a.closer = r
	return a, nil
}

// NewArchive decodes an archive from any random-access byte source,
// such as an in-memory bytes.Reader or an already-mapped file. The
// caller retains ownership of r; Close on the returned Archive will
// not close it.
func NewArchive(r io.ReaderAt) (*Archive, error) {
	a, err := decodeArchive(r)
	if err != nil {
		return nil, err
	}

	if a.window, err = newBlobWindow(); err != nil {
		return nil, fmt.Errorf("create blob window: %w", err)
	}
	if a.cache, err = arc.NewARC[Hash, []byte](defaultCacheSize); err != nil {
		return nil, fmt.Errorf("create blob cache: %w", err)
	}
	return a, nil
}

// Close releases the memory mapping if Open created one. Calling Close
// on an Archive built over a caller-owned reader is a no-op. Close is
// nil-safe and idempotent.
func (a *Archive) Close() error {
	if a == nil || a.closer == nil {
		return nil
	}
	c := a.closer
	a.closer = nil
	return c.Close()
}

// Header returns the decoded archive header.
func (a *Archive) Header() Header { return a.hdr }

// Folder returns the summary record stored under the raw folder hash.
func (a *Archive) Folder(h Hash) (Folder, bool) { return a.folders.get(h) }

// File returns the summary record stored under the raw file hash.
func (a *Archive) File(h Hash) (File, bool) { return a.files.get(h) }

// LookupFolder hashes a folder path on the fly and returns its record.
// The path is normalized first, so "Meshes/Armor" and "meshes\armor"
// find the same folder.
func (a *Archive) LookupFolder(path string) (Folder, bool) {
	return a.folders.lookupName(path)
}

// LookupFile resolves a full path to its file record. Only the final
// path component participates in a file hash; the folder part is
// verified separately, against the folder's own record block, so that
// a name present in a different folder does not satisfy a lookup in
// this one.
func (a *Archive) LookupFile(path string) (File, bool) {
	folder, name := splitArchivePath(path)
	h := HashFile(name)
	if folder != "" && !a.folderContains(HashFolder(folder), h) {
		return File{}, false
	}
	return a.files.get(h)
}

// folderContains reports whether the file hash was read inside the
// folder's record block. Folders hold at most a few thousand entries,
// so a linear scan of the wire-order slice is cheap enough.
func (a *Archive) folderContains(folder, file Hash) bool {
	for _, h := range a.contents[folder] {
		if h == file {
			return true
		}
	}
	return false
}

// FileName returns the decoded name recorded for h when the archive
// carried its flat file name list.
func (a *Archive) FileName(h Hash) (string, bool) {
	n, ok := a.names[h]
	return n, ok
}

// FolderName returns the decoded folder name for h.
func (a *Archive) FolderName(h Hash) (string, bool) {
	n, ok := a.folderNames[h]
	return n, ok
}

// FolderHashes returns every folder hash in ascending hash order, the
// order the record table itself is conventionally emitted in.
func (a *Archive) FolderHashes() []Hash {
	out := make([]Hash, 0, len(a.folders))
	for h := range a.folders {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FolderFiles returns the hashes of the files read inside the folder's
// record block, in wire order. The slice is shared; treat it as
// read-only.
func (a *Archive) FolderFiles(h Hash) []Hash { return a.contents[h] }

// FileCount returns the number of files indexed by the archive.
func (a *Archive) FileCount() int { return len(a.files) }

// FolderCount returns the number of folders indexed by the archive.
func (a *Archive) FolderCount() int { return len(a.folders) }

// Extract materializes the contents of the file indexed by h.
//
// The method consults the two in-memory tiers first: the recently-
// extracted blob window, then the larger ARC cache. A hit in either
// skips the read and, for compressed blocks, the zlib inflation.
//
// On a miss the data block is read at the record's offset; an embedded
// full-path prefix (archive flag 0x100) is skipped, and compressed
// blocks are inflated and validated against their original-size word.
//
// The returned slice is a fresh allocation; callers may mutate it.
// Extract is safe for concurrent use.
func (a *Archive) Extract(h Hash) ([]byte, error) {
	f, ok := a.files.get(h)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrFileNotFound, h)
	}

	if b, ok := a.window.lookup(h); ok {
		return append([]byte(nil), b...), nil
	}
	if b, ok := a.cache.Get(h); ok {
		return append([]byte(nil), b...), nil
	}

	data, err := a.readBlock(h, f)
	if err != nil {
		return nil, err
	}

	a.window.add(h, data)
	a.cache.Add(h, data)
	return append([]byte(nil), data...), nil
}

// ExtractPath resolves a full path and extracts its contents.
func (a *Archive) ExtractPath(path string) ([]byte, error) {
	folder, name := splitArchivePath(path)
	h := HashFile(name)
	if folder != "" {
		fh := HashFolder(folder)
		if _, ok := a.folders.get(fh); !ok {
			return nil, fmt.Errorf("%w: %q", ErrFolderNotFound, folder)
		}
		if !a.folderContains(fh, h) {
			return nil, fmt.Errorf("%w: %q", ErrFileNotFound, path)
		}
	}
	if _, ok := a.files.get(h); !ok {
		return nil, fmt.Errorf("%w: %q", ErrFileNotFound, path)
	}
	return a.Extract(h)
}

// readBlock reads and decodes the raw data block of a single file
// record. The record's size covers the whole block: the optional
// embedded name, the original-size word of compressed entries, and the
// (possibly compressed) content itself.
func (a *Archive) readBlock(h Hash, f File) ([]byte, error) {
	block := make([]byte, f.Size)
	if n, err := a.src.ReadAt(block, int64(f.Offset)); n < len(block) {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read data block %v: %w", h, err)
	}

	if a.hdr.EmbeddedNames() {
		if len(block) == 0 {
			return nil, fmt.Errorf("data block %v: %w", h, io.ErrUnexpectedEOF)
		}
		// One length byte, then that many name bytes, no terminator.
		skip := 1 + int(block[0])
		if skip > len(block) {
			return nil, fmt.Errorf("data block %v: embedded name: %w", h, io.ErrUnexpectedEOF)
		}
		block = block[skip:]
	}

	if !f.Compressed {
		return block, nil
	}

	if len(block) < 4 {
		return nil, fmt.Errorf("data block %v: original size: %w", h, io.ErrUnexpectedEOF)
	}
	origSize := binary.LittleEndian.Uint32(block)

	zr, err := getZlibReader(bytes.NewReader(block[4:]))
	if err != nil {
		return nil, fmt.Errorf("inflate data block %v: %w", h, err)
	}
	defer putZlibReader(zr)

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate data block %v: %w", h, err)
	}

	if uint32(len(out)) != origSize {
		return nil, fmt.Errorf("data block %v: %w: recorded %d, inflated %d",
			h, ErrSizeMismatch, origSize, len(out))
	}
	return out, nil
}

// splitArchivePath normalizes a full archive path and splits it into
// its folder part and final component.
func splitArchivePath(path string) (folder, name string) {
	p := NormalizePath(path)
	if i := strings.LastIndexByte(p, '\\'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return "", p
}
