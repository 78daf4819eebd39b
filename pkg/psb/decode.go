package psb

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"slices"
)

// LoadOptions controls decoding.
type LoadOptions struct {
	// VerifyChecksum rejects version 3+ headers whose checksum does not
	// match their offsets.
	VerifyChecksum bool

	// Logger receives debug records for skipped tags. Nil discards them.
	Logger *slog.Logger

	// MaxDecompressedSize rejects MDF input that would inflate past this
	// many bytes. Zero accepts any size.
	MaxDecompressedSize int64
}

// decoder holds the state of one decode pass.
type decoder struct {
	c      cursor
	header Header
	names  []string

	stringOffsets Array
	chunkOffsets  Array
	chunkLengths  Array

	strByIndex map[uint64]*Str
	strByText  map[string]*Str
	strings    []*Str

	resByIndex map[uint64]*Resource
	resources  []*Resource

	expire *Collection
	log    *slog.Logger
	depth  int
}

// maxDepth bounds composite nesting.
const maxDepth = 1024

// Load decodes a PSB document from data. MDF-wrapped input is decompressed
// first. Resource bytes are copied, so data may be reused afterwards.
func Load(data []byte) (*Document, error) {
	return LoadWithOptions(data, LoadOptions{})
}

// LoadWithOptions is Load with explicit options.
func LoadWithOptions(data []byte, opts LoadOptions) (*Document, error) {
	if IsMDF(data) {
		raw, err := DecompressMDFLimit(data, opts.MaxDecompressedSize)
		if err != nil {
			return nil, err
		}
		data = raw
	}

	h, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if err := h.validate(len(data)); err != nil {
		return nil, err
	}
	if opts.VerifyChecksum && h.Version >= 3 {
		if sum := headerChecksum(data); sum != h.Checksum {
			return nil, fmt.Errorf("%w: header checksum 0x%08x, want 0x%08x", ErrFormat, h.Checksum, sum)
		}
	}

	d := &decoder{
		c:          cursor{data: data},
		header:     h,
		strByIndex: make(map[uint64]*Str),
		strByText:  make(map[string]*Str),
		resByIndex: make(map[uint64]*Resource),
		log:        opts.Logger,
	}
	if d.log == nil {
		d.log = slog.New(slog.DiscardHandler)
	}
	return d.load()
}

func (d *decoder) load() (*Document, error) {
	h := &d.header
	var err error

	if err = d.c.seek(int(h.OffsetStrings)); err != nil {
		return nil, err
	}
	if d.stringOffsets, err = d.c.array(); err != nil {
		return nil, fmt.Errorf("string offsets: %w", err)
	}

	if err = d.c.seek(int(h.OffsetNames)); err != nil {
		return nil, err
	}
	var t nameTable
	if t.delta, err = d.c.array(); err != nil {
		return nil, fmt.Errorf("name delta table: %w", err)
	}
	if t.link, err = d.c.array(); err != nil {
		return nil, fmt.Errorf("name link table: %w", err)
	}
	if t.root, err = d.c.array(); err != nil {
		return nil, fmt.Errorf("name root table: %w", err)
	}
	if d.names, err = t.decodeNames(); err != nil {
		return nil, err
	}

	if err = d.c.seek(int(h.OffsetChunkOffsets)); err != nil {
		return nil, err
	}
	if d.chunkOffsets, err = d.c.array(); err != nil {
		return nil, fmt.Errorf("chunk offsets: %w", err)
	}
	if err = d.c.seek(int(h.OffsetChunkLengths)); err != nil {
		return nil, err
	}
	if d.chunkLengths, err = d.c.array(); err != nil {
		return nil, fmt.Errorf("chunk lengths: %w", err)
	}

	if err = d.c.seek(int(h.OffsetEntries)); err != nil {
		return nil, err
	}
	v, err := d.unpack()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: no root entry", ErrData)
	}
	root, ok := v.(*Dictionary)
	if !ok {
		return nil, fmt.Errorf("%w: root entry is %s, not a dictionary", ErrData, v.Kind())
	}

	slices.SortStableFunc(d.strings, func(a, b *Str) int { return compareIndex(a.index, b.index) })
	slices.SortStableFunc(d.resources, func(a, b *Resource) int { return compareIndex(a.index, b.index) })

	return &Document{
		Header:           *h,
		Names:            d.names,
		Strings:          d.strings,
		Resources:        d.resources,
		Objects:          root,
		expireSuffixList: d.expire,
	}, nil
}

// unpack decodes the value at the cursor. A nil Value with a nil error
// means the slot holds no value.
func (d *decoder) unpack() (Value, error) {
	at := d.c.pos
	b, err := d.c.readByte()
	if err != nil {
		return nil, err
	}
	t := Type(b)

	switch {
	case t == TypeNone:
		return nil, nil
	case t == TypeNull:
		return Null{}, nil
	case t == TypeFalse, t == TypeTrue:
		return Bool(t == TypeTrue), nil
	case t >= TypeNumberN0 && t <= TypeNumberN8:
		v, err := d.c.int(int(t - TypeNumberN0))
		if err != nil {
			return nil, err
		}
		return Int(v), nil
	case t == TypeFloat0:
		return Float32(0), nil
	case t == TypeFloat:
		raw, err := d.c.next(4)
		if err != nil {
			return nil, err
		}
		return Float32(math.Float32frombits(binary.LittleEndian.Uint32(raw))), nil
	case t == TypeDouble:
		raw, err := d.c.next(8)
		if err != nil {
			return nil, err
		}
		return Float64(math.Float64frombits(binary.LittleEndian.Uint64(raw))), nil
	case t >= TypeArrayN1 && t <= TypeArrayN8:
		return d.c.arrayBody(int(t-TypeArrayN1) + 1)
	case t >= TypeStringN1 && t <= TypeStringN4:
		idx, err := d.c.uint(int(t-TypeStringN1) + 1)
		if err != nil {
			return nil, err
		}
		return d.loadString(idx)
	case t >= TypeResourceN1 && t <= TypeResourceN4:
		idx, err := d.c.uint(int(t-TypeResourceN1) + 1)
		if err != nil {
			return nil, err
		}
		return d.loadResource(idx)
	case t == TypeList, t == TypeObjects:
		if d.depth >= maxDepth {
			return nil, fmt.Errorf("%w: nesting deeper than %d at %d", ErrFormat, maxDepth, at)
		}
		d.depth++
		defer func() { d.depth-- }()
		if t == TypeList {
			return d.loadCollection()
		}
		return d.loadObjects()
	default:
		d.log.Debug("skipping value", "tag", fmt.Sprintf("0x%02x", b), "offset", at, "compiler_only", t.isCompilerOnly())
		return nil, nil
	}
}

// loadCollection decodes a list. Each element offset is relative to the
// anchor that follows the offset table.
func (d *decoder) loadCollection() (*Collection, error) {
	offsets, err := d.c.array()
	if err != nil {
		return nil, fmt.Errorf("list offsets: %w", err)
	}
	anchor := d.c.pos
	c := &Collection{values: make([]Value, 0, len(offsets))}
	for _, off := range offsets {
		if err := d.c.seekFrom(anchor, off); err != nil {
			return nil, err
		}
		v, err := d.unpack()
		if err != nil {
			return nil, err
		}
		if v != nil {
			c.Append(v)
		}
		if err := d.c.seek(anchor); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// loadObjects decodes a dictionary: a name index table, an offset table and
// the anchored payload.
func (d *decoder) loadObjects() (*Dictionary, error) {
	keys, err := d.c.array()
	if err != nil {
		return nil, fmt.Errorf("objects names: %w", err)
	}
	offsets, err := d.c.array()
	if err != nil {
		return nil, fmt.Errorf("objects offsets: %w", err)
	}
	if len(keys) != len(offsets) {
		return nil, fmt.Errorf("%w: objects with %d names and %d offsets", ErrFormat, len(keys), len(offsets))
	}
	anchor := d.c.pos
	dict := &Dictionary{values: make(map[string]Value, len(keys))}
	for i, k := range keys {
		if k >= uint64(len(d.names)) {
			return nil, fmt.Errorf("%w: name index %d of %d", ErrFormat, k, len(d.names))
		}
		if err := d.c.seekFrom(anchor, offsets[i]); err != nil {
			return nil, err
		}
		v, err := d.unpack()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.names[k], err)
		}
		if v != nil {
			dict.Set(d.names[k], v)
		}
		if err := d.c.seek(anchor); err != nil {
			return nil, err
		}
	}
	if c, ok := dict.Collection(KeyExpireSuffixList); ok {
		d.expire = c
	}
	return dict, nil
}

// loadString returns the table entry for idx, materializing it on first
// reference. Entries with equal text collapse into one.
func (d *decoder) loadString(idx uint64) (*Str, error) {
	if s, ok := d.strByIndex[idx]; ok {
		return s, nil
	}
	off, err := d.stringOffsets.at(idx, "string")
	if err != nil {
		return nil, err
	}
	start := uint64(d.header.OffsetStringsData) + off
	if off > math.MaxUint32 || start > uint64(len(d.c.data)) {
		return nil, fmt.Errorf("%w: string %d at %d outside data", ErrFormat, idx, start)
	}
	text, err := d.c.cstring(int(start))
	if err != nil {
		return nil, err
	}
	if s, ok := d.strByText[text]; ok {
		d.strByIndex[idx] = s
		return s, nil
	}
	s := &Str{Value: text}
	s.setIndex(uint32(idx))
	d.strByIndex[idx] = s
	d.strByText[text] = s
	d.strings = append(d.strings, s)
	return s, nil
}

// loadResource returns the table entry for idx, reading its chunk on first
// reference.
func (d *decoder) loadResource(idx uint64) (*Resource, error) {
	if r, ok := d.resByIndex[idx]; ok {
		return r, nil
	}
	off, err := d.chunkOffsets.at(idx, "resource")
	if err != nil {
		return nil, err
	}
	n, err := d.chunkLengths.at(idx, "resource")
	if err != nil {
		return nil, err
	}
	start := uint64(d.header.OffsetChunkData) + off
	if start > uint64(len(d.c.data)) || n > uint64(len(d.c.data))-start {
		return nil, fmt.Errorf("%w: resource %d chunk [%d,+%d) outside data", ErrFormat, idx, start, n)
	}
	data := make([]byte, n)
	copy(data, d.c.data[start:start+n])

	r := &Resource{Data: data}
	r.setIndex(uint32(idx))
	d.resByIndex[idx] = r
	d.resources = append(d.resources, r)
	return r, nil
}

// compareIndex orders table entries by index.
func compareIndex(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

