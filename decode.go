package bsa

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Magic bytes and the single wire version this decoder understands.
// Version 104 is the revision shipped with Fallout 3; other revisions
// reuse the magic but lay tables out differently and are rejected up
// front rather than misread.
const (
	formatVersion = 104
	headerSize    = 36
)

// maxPrealloc caps how far header counts are trusted as allocation
// size hints. Maps and slices grow as records are actually read, so a
// hostile count in a tiny file fails at the first truncated record
// instead of triggering a multi-gigabyte allocation up front.
const maxPrealloc = 1 << 16

// capHint clamps an untrusted wire count to maxPrealloc.
func capHint(n uint32) int {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return int(n)
}

var magic = [4]byte{'B', 'S', 'A', 0}

var (
	ErrBadMagic           = errors.New("bsa: not a BSA archive")
	ErrUnsupportedVersion = errors.New("bsa: unsupported archive version")

	// ErrHashMismatch reports a folder name whose hash does not equal
	// the hash stored in the folder record at the same table position.
	// The two tables are emitted in the same order, so a mismatch means
	// the archive is corrupt or the decoder has lost alignment.
	ErrHashMismatch = errors.New("bsa corrupt: folder name hash does not match its record")

	// ErrBadEncoding reports decoded name bytes that are not valid
	// text and therefore cannot be re-hashed for verification.
	ErrBadEncoding = errors.New("bsa corrupt: name is not valid text")

	// ErrCountMismatch reports a header file count that disagrees with
	// the sum of the per-folder counts. The flat name list is sized by
	// the header count but paired positionally with the records, so
	// the two must agree before the list can be read.
	ErrCountMismatch = errors.New("bsa corrupt: file count does not match folder records")
)

// Archive flag bits consumed by the decoder. The header carries more,
// but only these change the shape or interpretation of the tables.
const (
	// flagFolderNames marks the per-folder name table as present.
	flagFolderNames = 0x1

	// flagFileNames marks the flat, NUL-terminated file name list that
	// trails the per-folder tables.
	flagFileNames = 0x2

	// flagCompressed compresses file data blocks by default; each file
	// record can invert the default for itself.
	flagCompressed = 0x4

	// flagEmbeddedNames prefixes every file data block with the file's
	// full path. Extraction must skip it.
	flagEmbeddedNames = 0x100
)

// File record size-word bits. The upper bits of the 32-bit size are
// flags, not length.
const (
	sizeCompressionToggle = 0x40000000
	sizeMask              = 0x3FFFFFFF
)

// Header is the fixed 36-byte record that opens every archive. The
// field layout follows the public format description; all integers are
// little-endian. Immutable once read.
type Header struct {
	// Version must equal 104.
	Version uint32

	// RecordsOffset is the byte offset of the folder record table,
	// always 36 in practice. It is recorded but not trusted: the
	// decoder reads strictly sequentially.
	RecordsOffset uint32

	// ArchiveFlags is the behavior bitfield; see the flag constants.
	ArchiveFlags uint32

	// FolderCount and FileCount size the tables that follow.
	FolderCount uint32
	FileCount   uint32

	// TotalFolderNameLength and TotalFileNameLength are aggregate
	// bookkeeping totals over the two name tables, including length
	// prefixes and terminators.
	TotalFolderNameLength uint32
	TotalFileNameLength   uint32

	// FileFlags is a content-kind bitfield (meshes, textures, …) that
	// the decoder carries but does not interpret.
	FileFlags uint32
}

// HasFileNames reports whether the flat file name list is present.
func (h *Header) HasFileNames() bool { return h.ArchiveFlags&flagFileNames != 0 }

// CompressedByDefault reports whether file data blocks are compressed
// unless their record's toggle bit says otherwise.
func (h *Header) CompressedByDefault() bool { return h.ArchiveFlags&flagCompressed != 0 }

// EmbeddedNames reports whether file data blocks begin with the file's
// full path.
func (h *Header) EmbeddedNames() bool { return h.ArchiveFlags&flagEmbeddedNames != 0 }

// Folder is the retained per-folder summary: how many files the folder
// holds and the record offset the archive stored for it.
type Folder struct {
	Count  uint32
	Offset uint32
}

// File is the retained per-file summary. Size is the stored byte count
// of the data block with the flag bits already stripped; Compressed is
// the effective compression state after applying the record's toggle
// to the archive default.
type File struct {
	Size       uint32
	Offset     uint32
	Compressed bool
}

// decoder walks the archive tables strictly front to back, building
// the hash-indexed maps as records arrive. Any error discards all
// intermediate state; only a complete walk produces an Archive.
type decoder struct {
	c   *cursor
	hdr Header

	folders hashMap[Folder]
	files   hashMap[File]

	// order records every file hash in the order its record was read.
	// The flat name list is emitted in the same order, which is the
	// only way the format associates names with file records.
	order []Hash
	names map[Hash]string

	// folderNames and contents retain what the wire tables already
	// spelled out: each folder's decoded name and the hashes of the
	// files read inside its block, in record order.
	folderNames map[Hash]string
	contents    map[Hash][]Hash
}

func (d *decoder) header() error {
	var m [4]byte
	if err := d.c.read(m[:]); err != nil {
		return err
	}
	if m != magic {
		return ErrBadMagic
	}

	fields := []*uint32{
		&d.hdr.Version,
		&d.hdr.RecordsOffset,
		&d.hdr.ArchiveFlags,
		&d.hdr.FolderCount,
		&d.hdr.FileCount,
		&d.hdr.TotalFolderNameLength,
		&d.hdr.TotalFileNameLength,
		&d.hdr.FileFlags,
	}
	for _, f := range fields {
		v, err := d.c.u32()
		if err != nil {
			return err
		}
		*f = v
	}

	if d.hdr.Version != formatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, d.hdr.Version)
	}
	return nil
}

// folderRecords reads the fixed folder record table and indexes each
// entry by its stored hash. Record order is not validated here; the
// name pass re-derives every hash and catches misalignment.
func (d *decoder) folderRecords() error {
	d.folders = make(hashMap[Folder], capHint(d.hdr.FolderCount))
	for i := uint32(0); i < d.hdr.FolderCount; i++ {
		h, err := d.c.u64()
		if err != nil {
			return fmt.Errorf("folder record %d: %w", i, err)
		}
		count, err := d.c.u32()
		if err != nil {
			return fmt.Errorf("folder record %d: %w", i, err)
		}
		offset, err := d.c.u32()
		if err != nil {
			return fmt.Errorf("folder record %d: %w", i, err)
		}
		d.folders.insert(Hash(h), Folder{Count: count, Offset: offset})
	}
	return nil
}

// folderContents reads the interleaved region that follows the record
// table: for each folder, its length-prefixed name and then its block
// of file records, inline and in declared order.
//
// The i-th name corresponds positionally to the i-th folder record,
// and the hash of the decoded name must equal that record's stored
// hash. This is the format's built-in self-check and the decoder
// enforces it for every folder.
func (d *decoder) folderContents() error {
	compressed := d.hdr.CompressedByDefault()
	d.files = make(hashMap[File], capHint(d.hdr.FileCount))
	d.order = make([]Hash, 0, capHint(d.hdr.FileCount))
	d.folderNames = make(map[Hash]string, capHint(d.hdr.FolderCount))
	d.contents = make(map[Hash][]Hash, capHint(d.hdr.FolderCount))

	for i := uint32(0); i < d.hdr.FolderCount; i++ {
		name, err := d.c.bzString()
		if err != nil {
			return fmt.Errorf("folder name %d: %w", i, err)
		}
		if !utf8.ValidString(name) {
			return fmt.Errorf("folder name %d: %w", i, ErrBadEncoding)
		}

		fh := PathHash(name, "")
		folder, ok := d.folders.get(fh)
		if !ok {
			return fmt.Errorf("folder %q: %w", name, ErrHashMismatch)
		}
		d.folderNames[fh] = name

		for j := uint32(0); j < folder.Count; j++ {
			h, err := d.c.u64()
			if err != nil {
				return fmt.Errorf("folder %q file %d: %w", name, j, err)
			}
			size, err := d.c.u32()
			if err != nil {
				return fmt.Errorf("folder %q file %d: %w", name, j, err)
			}
			offset, err := d.c.u32()
			if err != nil {
				return fmt.Errorf("folder %q file %d: %w", name, j, err)
			}

			d.files.insert(Hash(h), File{
				Size:       size & sizeMask,
				Offset:     offset,
				Compressed: compressed != (size&sizeCompressionToggle != 0),
			})
			d.order = append(d.order, Hash(h))
			d.contents[fh] = append(d.contents[fh], Hash(h))
		}
	}
	return nil
}

// fileNames reads the optional flat name list: FileCount
// NUL-terminated strings, back to back, in the same order the file
// records were read. Skipped entirely when the header flag is clear.
func (d *decoder) fileNames() error {
	if !d.hdr.HasFileNames() {
		return nil
	}
	if uint32(len(d.order)) != d.hdr.FileCount {
		return fmt.Errorf("%w: header %d, records %d",
			ErrCountMismatch, d.hdr.FileCount, len(d.order))
	}
	d.names = make(map[Hash]string, len(d.order))
	for i := uint32(0); i < d.hdr.FileCount; i++ {
		name, err := d.c.zString()
		if err != nil {
			return fmt.Errorf("file name %d: %w", i, err)
		}
		if !utf8.ValidString(name) {
			return fmt.Errorf("file name %d: %w", i, ErrBadEncoding)
		}
		d.names[d.order[i]] = name
	}
	return nil
}

// decodeArchive runs the full version-104 sequence over r and returns
// the populated model. The caller owns r for the duration of the call;
// the same handle serves later random-access extraction, ReadAt being
// positionless.
func decodeArchive(r io.ReaderAt) (*Archive, error) {
	d := &decoder{c: newCursor(r)}

	if err := d.header(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := d.folderRecords(); err != nil {
		return nil, fmt.Errorf("read folder records: %w", err)
	}
	if err := d.folderContents(); err != nil {
		return nil, fmt.Errorf("read folder contents: %w", err)
	}
	if err := d.fileNames(); err != nil {
		return nil, fmt.Errorf("read file names: %w", err)
	}

	return &Archive{
		hdr:         d.hdr,
		folders:     d.folders,
		files:       d.files,
		order:       d.order,
		names:       d.names,
		folderNames: d.folderNames,
		contents:    d.contents,
		src:         r,
	}, nil
}
