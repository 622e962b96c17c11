package bsa

import (
	"fmt"
	"strings"
)

// Hash is the 64-bit path hash the archive format uses in place of a
// string name when indexing folders and files.
//
// The value is stored verbatim on disk in little-endian order and is
// reproduced in memory by PathHash. The zero value only corresponds to
// the empty path, which never appears in a valid archive, and is
// therefore safe to use as a sentinel in maps.
type Hash uint64

// String renders the hash the way archive tooling conventionally
// prints it: a zero-padded, 0x-prefixed 16-digit hex literal.
func (h Hash) String() string { return fmt.Sprintf("%#018x", uint64(h)) }

// hashMul is the multiplier of the rolling hash. The constant comes
// from the engine itself and must not change.
const hashMul = 0x1003F

// RollingHash computes the 32-bit multiplicative hash the path hash is
// built from: acc = acc*0x1003F + b for every byte, with 32-bit
// wraparound. The empty input hashes to 0. The function is
// deterministic and order-sensitive; it is not a general-purpose or
// cryptographic hash.
func RollingHash(b []byte) uint32 {
	var acc uint32
	for _, c := range b {
		acc = acc*hashMul + uint32(c)
	}
	return acc
}

// Extensions that trigger the second transform of PathHash. The value
// is the engine's fixed 1-based index feeding the byte scrambles.
var scrambledExts = map[string]uint8{
	".nif": 1,
	".kf":  2,
	".dds": 3,
	".wav": 4,
}

// PathHash reproduces the archive's proprietary 64-bit path hash for a
// bare name and an optional extension (leading dot included).
//
// The construction, which must stay bit-exact because decoded lookups
// are matched against hashes embedded on disk:
//
//  1. The low 32 bits are a little-endian word built from four bytes
//     of the name: last char, second-to-last char, length, first char
//     (missing chars read as 0).
//  2. Names longer than three chars add RollingHash of the interior
//     substring (first char and last two chars excluded) into the
//     high 32 bits.
//  3. A non-empty extension adds RollingHash(ext) into the high bits.
//     For the four recognized extensions (.nif, .kf, .dds, .wav) a
//     second transform then rewrites bytes 0, 1 and 3 of the low word
//     from the extension index; byte 2 (the length byte) is kept.
//
// Callers hashing an on-disk path should normalize it first; see
// HashPath. PathHash itself performs no case folding.
func PathHash(name, ext string) Hash {
	var h uint64

	if name != "" {
		n := len(name)
		var second byte
		if n >= 2 {
			second = name[n-2]
		}
		h = uint64(name[n-1]) |
			uint64(second)<<8 |
			uint64(uint8(n))<<16 |
			uint64(name[0])<<24

		if n > 3 {
			h += uint64(RollingHash([]byte(name[1:n-2]))) << 32
		}
	}

	if ext != "" {
		h += uint64(RollingHash([]byte(ext))) << 32

		if i, ok := scrambledExts[ext]; ok {
			a := (i&0xfc)<<5 + uint8(h>>24)
			b := (i&0xfe)<<6 + uint8(h)
			c := i<<7 + uint8(h>>8)

			// Bytes 0, 1 and 3 of the low word are replaced; byte 2
			// (the length byte) survives the transform.
			h &^= 0xFF00FFFF
			h += uint64(a)<<24 | uint64(b) | uint64(c)<<8
		}
	}

	return Hash(h)
}

// NormalizePath lowercases a path and converts forward slashes to the
// backslashes the engine hashes with. Archives store hashes of
// normalized paths only, so every string-based lookup goes through
// this first.
func NormalizePath(path string) string {
	return strings.ToLower(strings.ReplaceAll(path, "/", "\\"))
}

// SplitExt splits a file name into its stem and extension (dot
// included). A name without a dot, or with nothing before the final
// dot, has an empty extension.
func SplitExt(name string) (stem, ext string) {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i], name[i:]
	}
	return name, ""
}

// HashFolder normalizes a folder path and returns its hash. Folder
// paths hash whole, with an empty extension.
func HashFolder(path string) Hash {
	return PathHash(NormalizePath(path), "")
}

// HashFile normalizes a bare file name (no directory part), splits it
// around the final dot and returns its hash.
func HashFile(name string) Hash {
	stem, ext := SplitExt(NormalizePath(name))
	return PathHash(stem, ext)
}
