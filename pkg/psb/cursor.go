package psb

import (
	"bytes"
	"fmt"
)

// cursor is the single read position over a decoded byte stream.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) seek(pos int) error {
	if pos < 0 || pos > len(c.data) {
		return fmt.Errorf("%w: seek to %d outside %d bytes", ErrFormat, pos, len(c.data))
	}
	c.pos = pos
	return nil
}

// seekFrom moves to off bytes past anchor.
func (c *cursor) seekFrom(anchor int, off uint64) error {
	if anchor < 0 || anchor > len(c.data) || off > uint64(len(c.data)-anchor) {
		return fmt.Errorf("%w: offset %d from %d outside %d bytes", ErrFormat, off, anchor, len(c.data))
	}
	c.pos = anchor + int(off)
	return nil
}

func (c *cursor) readByte() (byte, error) {
	if c.pos >= len(c.data) {
		return 0, fmt.Errorf("%w: unexpected end of data at %d", ErrFormat, c.pos)
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) next(n int) ([]byte, error) {
	if n < 0 || n > len(c.data)-c.pos {
		return nil, fmt.Errorf("%w: need %d bytes at %d, have %d", ErrFormat, n, c.pos, len(c.data)-c.pos)
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) uint(n int) (uint64, error) {
	b, err := c.next(n)
	if err != nil {
		return 0, err
	}
	return unzipUint(b), nil
}

func (c *cursor) int(n int) (int64, error) {
	b, err := c.next(n)
	if err != nil {
		return 0, err
	}
	return unzipInt(b), nil
}

// cstring reads a zero-terminated string starting at pos without moving
// the cursor.
func (c *cursor) cstring(pos int) (string, error) {
	if pos < 0 || pos > len(c.data) {
		return "", fmt.Errorf("%w: string at %d outside %d bytes", ErrFormat, pos, len(c.data))
	}
	end := bytes.IndexByte(c.data[pos:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at %d", ErrFormat, pos)
	}
	return string(c.data[pos : pos+end]), nil
}

// array reads a tagged unsigned array. The tag is structural, so anything
// but an array tag is a format error.
func (c *cursor) array() (Array, error) {
	tag, err := c.readByte()
	if err != nil {
		return nil, err
	}
	n, ok := Type(tag).isArray()
	if !ok {
		return nil, fmt.Errorf("%w: expected array tag at %d, got 0x%02x", ErrFormat, c.pos-1, tag)
	}
	return c.arrayBody(n)
}

func (c *cursor) arrayBody(countWidth int) (Array, error) {
	count, err := c.uint(countWidth)
	if err != nil {
		return nil, err
	}
	tag, err := c.readByte()
	if err != nil {
		return nil, err
	}
	width, ok := Type(tag).isArray()
	if !ok {
		return nil, fmt.Errorf("%w: expected array element tag at %d, got 0x%02x", ErrFormat, c.pos-1, tag)
	}
	if count > uint64(len(c.data)-c.pos)/uint64(width) {
		return nil, fmt.Errorf("%w: array of %d x %d bytes exceeds data", ErrFormat, count, width)
	}
	out := make(Array, count)
	for i := range out {
		b := c.data[c.pos : c.pos+width]
		c.pos += width
		out[i] = unzipUint(b)
	}
	return out, nil
}

// appendArray encodes a as a tagged array with minimal count and element
// widths.
func appendArray(dst []byte, a Array) []byte {
	countWidth := uintWidth(uint64(len(a)))
	var maxv uint64
	for _, v := range a {
		maxv = max(maxv, v)
	}
	width := uintWidth(maxv)

	dst = append(dst, byte(arrayType(countWidth)))
	dst = appendUint(dst, uint64(len(a)), countWidth)
	dst = append(dst, byte(arrayType(width)))
	for _, v := range a {
		dst = appendUint(dst, v, width)
	}
	return dst
}

// at returns a[i] or an error naming the table.
func (a Array) at(i uint64, table string) (uint64, error) {
	if i >= uint64(len(a)) {
		return 0, fmt.Errorf("%w: %s index %d of %d", ErrIndex, table, i, len(a))
	}
	return a[i], nil
}
