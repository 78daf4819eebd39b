package psb

import (
	"bytes"
	"fmt"
	"iter"
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindArray
	KindString
	KindResource
	KindCollection
	KindDictionary
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindResource:
		return "resource"
	case KindCollection:
		return "collection"
	case KindDictionary:
		return "dictionary"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one node of a document tree. The set of implementations is
// closed: Null, Bool, Number, Array, *Str, *Resource, *Collection and
// *Dictionary.
type Value interface {
	Kind() Kind
	sealed()
}

// Null is the null value.
type Null struct{}

func (Null) Kind() Kind { return KindNull }
func (Null) sealed()    {}

// Bool is a boolean value.
type Bool bool

func (Bool) Kind() Kind { return KindBool }
func (Bool) sealed()    {}

// NumberKind is the storage kind of a Number.
type NumberKind uint8

const (
	NumberInt NumberKind = iota
	NumberFloat32
	NumberFloat64
)

// Number is a signed integer or a floating point value tagged with the
// width it is stored with.
type Number struct {
	kind NumberKind
	i    int64
	f    float64
}

// Int returns an integer Number.
func Int(v int64) Number { return Number{kind: NumberInt, i: v} }

// Float32 returns a single precision Number.
func Float32(v float32) Number { return Number{kind: NumberFloat32, f: float64(v)} }

// Float64 returns a double precision Number.
func Float64(v float64) Number { return Number{kind: NumberFloat64, f: v} }

func (Number) Kind() Kind { return KindNumber }
func (Number) sealed()    {}

// NumberKind returns the storage kind.
func (n Number) NumberKind() NumberKind { return n.kind }

// IsInt reports whether n holds an integer.
func (n Number) IsInt() bool { return n.kind == NumberInt }

// Int64 returns the value as an integer, truncating floats.
func (n Number) Int64() int64 {
	if n.kind == NumberInt {
		return n.i
	}
	return int64(n.f)
}

// Float64 returns the value as a float.
func (n Number) Float64() float64 {
	if n.kind == NumberInt {
		return float64(n.i)
	}
	return n.f
}

func (n Number) String() string {
	switch n.kind {
	case NumberFloat32:
		return strconv.FormatFloat(n.f, 'g', -1, 32)
	case NumberFloat64:
		return strconv.FormatFloat(n.f, 'g', -1, 64)
	default:
		return strconv.FormatInt(n.i, 10)
	}
}

// Array is an ordered sequence of raw unsigned integers.
type Array []uint64

func (Array) Kind() Kind { return KindArray }
func (Array) sealed()    {}

// Str is an entry of the string table. Tree positions that share a *Str
// share one table entry.
type Str struct {
	Value string

	index   uint32
	indexed bool
}

// NewStr returns an unindexed string. It receives an index on Merge.
func NewStr(s string) *Str { return &Str{Value: s} }

func (*Str) Kind() Kind { return KindString }
func (*Str) sealed()    {}

// Index returns the string table index, if one has been assigned.
func (s *Str) Index() (uint32, bool) { return s.index, s.indexed }

func (s *Str) setIndex(i uint32) { s.index, s.indexed = i, true }

func (s *Str) String() string { return s.Value }

// Resource is an entry of the resource table holding a binary chunk.
type Resource struct {
	Data []byte

	index   uint32
	indexed bool
}

// NewResource returns an unindexed resource. It receives an index on Merge.
func NewResource(data []byte) *Resource { return &Resource{Data: data} }

func (*Resource) Kind() Kind { return KindResource }
func (*Resource) sealed()    {}

// Index returns the resource table index, if one has been assigned.
func (r *Resource) Index() (uint32, bool) { return r.index, r.indexed }

func (r *Resource) setIndex(i uint32) { r.index, r.indexed = i, true }

// Collection is an ordered list of values.
type Collection struct {
	parent Value
	values []Value
}

// NewCollection returns a collection holding vs.
func NewCollection(vs ...Value) *Collection {
	c := &Collection{values: make([]Value, 0, len(vs))}
	for _, v := range vs {
		c.Append(v)
	}
	return c
}

func (*Collection) Kind() Kind { return KindCollection }
func (*Collection) sealed()    {}

// Parent returns the collection or dictionary containing c, or nil. The
// link is for lookup only.
func (c *Collection) Parent() Value { return c.parent }

// Len returns the number of elements.
func (c *Collection) Len() int { return len(c.values) }

// At returns the i-th element.
func (c *Collection) At(i int) Value { return c.values[i] }

// Append adds v to the end of the collection.
func (c *Collection) Append(v Value) {
	v = orNull(v)
	adopt(c, v)
	c.values = append(c.values, v)
}

// Values iterates over the elements in order.
func (c *Collection) Values() iter.Seq2[int, Value] {
	return func(yield func(int, Value) bool) {
		for i, v := range c.values {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Dictionary is an ordered mapping of distinct keys to values. Order is
// preserved for stable output.
type Dictionary struct {
	parent Value
	keys   []string
	values map[string]Value
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{values: make(map[string]Value)}
}

func (*Dictionary) Kind() Kind { return KindDictionary }
func (*Dictionary) sealed()    {}

// Parent returns the collection or dictionary containing d, or nil. The
// link is for lookup only.
func (d *Dictionary) Parent() Value { return d.parent }

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.keys) }

// Get returns the value stored under key.
func (d *Dictionary) Get(key string) (Value, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Set stores v under key. An existing key keeps its position.
func (d *Dictionary) Set(key string, v Value) {
	if d.values == nil {
		d.values = make(map[string]Value)
	}
	v = orNull(v)
	adopt(d, v)
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// Delete removes key and reports whether it was present.
func (d *Dictionary) Delete(key string) bool {
	if _, ok := d.values[key]; !ok {
		return false
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in order.
func (d *Dictionary) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Entries iterates over the entries in order.
func (d *Dictionary) Entries() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		for _, k := range d.keys {
			if !yield(k, d.values[k]) {
				return
			}
		}
	}
}

// Text returns the text of the string stored under key, if any.
func (d *Dictionary) Text(key string) (string, bool) {
	v, ok := d.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(*Str)
	if !ok {
		return "", false
	}
	return s.Value, true
}

// Dictionary returns the dictionary stored under key, if any.
func (d *Dictionary) Dictionary(key string) (*Dictionary, bool) {
	v, ok := d.values[key].(*Dictionary)
	return v, ok
}

// Collection returns the collection stored under key, if any.
func (d *Dictionary) Collection(key string) (*Collection, bool) {
	v, ok := d.values[key].(*Collection)
	return v, ok
}

func orNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

func adopt(parent, child Value) {
	switch c := child.(type) {
	case *Collection:
		c.parent = parent
	case *Dictionary:
		c.parent = parent
	}
}

// Equal reports whether a and b describe the same tree. Strings and
// resources compare by content, numbers by kind and value, dictionaries
// by keys, key order and values.
func Equal(a, b Value) bool {
	a, b = orNull(a), orNull(b)
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Null:
		return true
	case Bool:
		return x == b.(Bool)
	case Number:
		y := b.(Number)
		if x.kind != y.kind {
			return false
		}
		if x.kind == NumberInt {
			return x.i == y.i
		}
		return x.f == y.f || (math.IsNaN(x.f) && math.IsNaN(y.f))
	case Array:
		y := b.(Array)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] {
				return false
			}
		}
		return true
	case *Str:
		return x.Value == b.(*Str).Value
	case *Resource:
		return bytes.Equal(x.Data, b.(*Resource).Data)
	case *Collection:
		y := b.(*Collection)
		if len(x.values) != len(y.values) {
			return false
		}
		for i := range x.values {
			if !Equal(x.values[i], y.values[i]) {
				return false
			}
		}
		return true
	case *Dictionary:
		y := b.(*Dictionary)
		if len(x.keys) != len(y.keys) {
			return false
		}
		for i, k := range x.keys {
			if y.keys[i] != k || !Equal(x.values[k], y.values[k]) {
				return false
			}
		}
		return true
	default:
		panic(fmt.Sprintf("psb: unexpected value %T", a))
	}
}
