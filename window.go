// window.go
//
// Recently-extracted blob window.
// Extraction workloads are bursty and local: tooling that walks an
// archive tends to re-read the same handful of files (a mesh and its
// textures, a voice line replayed) within a short span. The window
// maps *recently extracted file hashes* → *decoded file contents* so
// those repeats skip the read and, for compressed blocks, the zlib
// inflation.
//
// The implementation is a small, bounded LRU. Blobs larger than
// windowMaxBlob are deliberately skipped so one oversized asset cannot
// evict the entire working set.

package bsa

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// windowEntries bounds the number of blobs held at once.
	windowEntries = 128

	// windowMaxBlob is the largest blob the window will retain.
	windowMaxBlob = 4 << 20 // 4 MiB
)

// blobWindow caches recently extracted, fully-decoded file contents.
//
// The type wraps an lru.Cache that synchronizes internally, so a
// blobWindow may be shared freely among goroutines. Cached slices are
// returned as-is and must be treated as immutable by callers inside
// the package; the public Extract path copies before returning.
type blobWindow struct {
	entries *lru.Cache[Hash, []byte]
}

// newBlobWindow allocates a window capped at windowEntries blobs. The
// lru constructor only fails for a non-positive size, which is a
// non-recoverable initialization error.
func newBlobWindow() (*blobWindow, error) {
	cache, err := lru.New[Hash, []byte](windowEntries)
	return &blobWindow{entries: cache}, err
}

// lookup returns the decoded contents cached for h, if any.
func (w *blobWindow) lookup(h Hash) ([]byte, bool) { return w.entries.Get(h) }

// add inserts decoded contents into the window. Blobs above
// windowMaxBlob are skipped rather than cached.
func (w *blobWindow) add(h Hash, buf []byte) {
	if len(buf) > windowMaxBlob {
		return // Too big – skip caching.
	}
	w.entries.Add(h, buf)
}
