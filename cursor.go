package bsa

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrZeroLengthName reports a length-prefixed string whose length byte
// is zero. The encoding always includes a terminator byte inside the
// counted length, so zero leaves no room for it and can only appear in
// a corrupt or misaligned archive.
var ErrZeroLengthName = errors.New("bsa corrupt: zero-length name prefix")

// cursor is a sequential little-endian reader over a random-access
// byte source.
//
// The archive is decoded strictly front to back, so the cursor keeps a
// single advancing offset over an io.ReaderAt and never seeks
// backwards. Short reads of fixed-width values surface as
// io.ErrUnexpectedEOF so that truncation is distinguishable from a
// clean end of input.
type cursor struct {
	r   io.ReaderAt
	off int64
}

func newCursor(r io.ReaderAt) *cursor { return &cursor{r: r} }

// bytes reads exactly n bytes and advances the cursor.
func (c *cursor) bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := c.read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// read fills buf completely or fails.
func (c *cursor) read(buf []byte) error {
	n, err := c.r.ReadAt(buf, c.off)
	if n < len(buf) {
		if err == nil || errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	c.off += int64(n)
	return nil
}

func (c *cursor) u8() (byte, error) {
	var b [1]byte
	if err := c.read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u32() (uint32, error) {
	var b [4]byte
	if err := c.read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (c *cursor) u64() (uint64, error) {
	var b [8]byte
	if err := c.read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// bzString decodes a length-prefixed, terminated string: one length
// byte L, then L bytes of which the first L-1 are content and the last
// is a terminator. A zero length byte fails with ErrZeroLengthName.
//
// The terminator is conventionally NUL but the reference reader never
// checks it, and real-world tooling has produced archives with stray
// bytes there; a non-zero terminator is accepted for compatibility.
func (c *cursor) bzString() (string, error) {
	l, err := c.u8()
	if err != nil {
		return "", err
	}
	if l == 0 {
		return "", ErrZeroLengthName
	}
	raw, err := c.bytes(int(l))
	if err != nil {
		return "", err
	}
	return string(raw[:l-1]), nil
}

// zString decodes a NUL-terminated string with no length prefix. The
// terminator is consumed and excluded from the result. No maximum
// length is enforced; an unterminated stream exhausts the input and
// fails with the underlying read error.
func (c *cursor) zString() (string, error) {
	var out []byte
	for {
		b, err := c.u8()
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, b)
	}
}
