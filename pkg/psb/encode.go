package psb

import (
	"bytes"
	"fmt"
)

// encoder holds the state of one encode pass.
type encoder struct {
	names     []string
	strings   []*Str
	resources []*Resource
}

// Build serializes the document. The tables must describe the tree, which
// Merge guarantees; a key missing from the name table or a string or
// resource missing from its table fails with ErrIndex. On error no bytes
// are returned.
//
// Layout: header, names, entries, strings, resource chunks.
func (d *Document) Build() ([]byte, error) {
	if d.Objects == nil {
		return nil, fmt.Errorf("%w: no root dictionary", ErrData)
	}
	h := d.Header
	hdrLen, ok := HeaderLength(h.Version)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, h.Version)
	}
	h.Encrypt = 0
	h.HeaderLength = hdrLen

	names, err := buildNames(d.Names)
	if err != nil {
		return nil, err
	}
	e := &encoder{names: d.Names, strings: d.Strings, resources: d.Resources}

	// Entries are packed first so that an encoding error surfaces before
	// any section is laid out.
	entries, err := e.pack(nil, d.Objects)
	if err != nil {
		return nil, err
	}

	out := make([]byte, hdrLen, int(hdrLen)+len(entries)+1024)

	h.OffsetNames = uint32(len(out))
	out = appendArray(out, names.delta)
	out = appendArray(out, names.link)
	out = appendArray(out, names.root)

	h.OffsetEntries = uint32(len(out))
	out = append(out, entries...)

	var strData bytes.Buffer
	strOffsets := make(Array, len(d.Strings))
	for i, s := range d.Strings {
		strOffsets[i] = uint64(strData.Len())
		strData.WriteString(s.Value)
		strData.WriteByte(0)
	}
	h.OffsetStrings = uint32(len(out))
	out = appendArray(out, strOffsets)
	h.OffsetStringsData = uint32(len(out))
	out = append(out, strData.Bytes()...)

	chunkOffsets := make(Array, len(d.Resources))
	chunkLengths := make(Array, len(d.Resources))
	var pos uint64
	for i, r := range d.Resources {
		chunkOffsets[i] = pos
		chunkLengths[i] = uint64(len(r.Data))
		pos += uint64(len(r.Data))
	}
	h.OffsetChunkOffsets = uint32(len(out))
	out = appendArray(out, chunkOffsets)
	h.OffsetChunkLengths = uint32(len(out))
	out = appendArray(out, chunkLengths)
	h.OffsetChunkData = uint32(len(out))
	for _, r := range d.Resources {
		out = append(out, r.Data...)
	}

	if h.Version >= 4 {
		h.OffsetExtraChunkOffsets = uint32(len(out))
		out = appendArray(out, nil)
		h.OffsetExtraChunkLengths = uint32(len(out))
		out = appendArray(out, nil)
		h.OffsetExtraChunkData = uint32(len(out))
	}

	if uint64(len(out)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: document of %d bytes exceeds 32-bit offsets", ErrFormat, len(out))
	}
	if !encodeHeader(out[:hdrLen], h) {
		return nil, fmt.Errorf("%w: encode header failed", ErrFormat)
	}
	if h.Version >= 3 {
		h.Checksum = headerChecksum(out)
	}
	d.Header = h
	return out, nil
}

// pack appends the encoding of v to dst.
func (e *encoder) pack(dst []byte, v Value) ([]byte, error) {
	switch x := orNull(v).(type) {
	case Null:
		return append(dst, byte(TypeNull)), nil
	case Bool:
		if x {
			return append(dst, byte(TypeTrue)), nil
		}
		return append(dst, byte(TypeFalse)), nil
	case Number:
		return appendNumber(dst, x), nil
	case Array:
		return appendArray(dst, x), nil
	case *Str:
		if !x.indexed || int(x.index) >= len(e.strings) || e.strings[x.index].Value != x.Value {
			return nil, fmt.Errorf("%w: string %q not in string table", ErrIndex, x.Value)
		}
		w := min(uintWidth(uint64(x.index)), 4)
		dst = append(dst, byte(stringType(w)))
		return appendUint(dst, uint64(x.index), w), nil
	case *Resource:
		if !x.indexed || int(x.index) >= len(e.resources) || !bytes.Equal(e.resources[x.index].Data, x.Data) {
			return nil, fmt.Errorf("%w: resource not in resource table", ErrIndex)
		}
		w := min(uintWidth(uint64(x.index)), 4)
		dst = append(dst, byte(resourceType(w)))
		return appendUint(dst, uint64(x.index), w), nil
	case *Collection:
		return e.packCollection(dst, x)
	case *Dictionary:
		return e.packObjects(dst, x)
	default:
		return nil, fmt.Errorf("%w: unexpected value %T", ErrData, v)
	}
}

// packCollection packs the elements into a scratch buffer first, since the
// offset table that precedes them is only known afterwards.
func (e *encoder) packCollection(dst []byte, c *Collection) ([]byte, error) {
	offsets := make(Array, len(c.values))
	var scratch []byte
	var err error
	for i, v := range c.values {
		offsets[i] = uint64(len(scratch))
		if scratch, err = e.pack(scratch, v); err != nil {
			return nil, err
		}
	}
	dst = append(dst, byte(TypeList))
	dst = appendArray(dst, offsets)
	return append(dst, scratch...), nil
}

func (e *encoder) packObjects(dst []byte, d *Dictionary) ([]byte, error) {
	keys := make(Array, len(d.keys))
	offsets := make(Array, len(d.keys))
	var scratch []byte
	for i, k := range d.keys {
		idx, err := nameIndex(e.names, k)
		if err != nil {
			return nil, err
		}
		keys[i] = uint64(idx)
		offsets[i] = uint64(len(scratch))
		if scratch, err = e.pack(scratch, d.values[k]); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
	}
	dst = append(dst, byte(TypeObjects))
	dst = appendArray(dst, keys)
	dst = appendArray(dst, offsets)
	return append(dst, scratch...), nil
}
