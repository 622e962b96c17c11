package bsa

// hashMap indexes values by their 64-bit path hash.
//
// Archive structures index files and folders directly by the hash of
// the original path, so the key arriving from the wire is already a
// fully-formed 64-bit value; an ordinary Go map over it suffices. The
// format provides no collision disambiguation of its own, and neither
// does hashMap: inserting a duplicate hash silently overwrites the
// previous entry.
type hashMap[V any] map[Hash]V

// insert stores v under the raw hash read from the wire.
func (m hashMap[V]) insert(h Hash, v V) { m[h] = v }

// get looks up a raw hash.
func (m hashMap[V]) get(h Hash) (V, bool) {
	v, ok := m[h]
	return v, ok
}

// lookupName hashes a string key on the fly and looks it up. The key
// is hashed with an empty extension, which makes this the right
// convenience for folder paths only; file lookups split the name and
// extension first (see Archive.LookupFile).
func (m hashMap[V]) lookupName(name string) (V, bool) {
	return m.get(HashFolder(name))
}
