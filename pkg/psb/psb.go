// Package psb implements the PSB (packaged struct binary) container format.
//
// A PSB file stores a tree of tagged values rooted at a dictionary together
// with three shared side tables: a trie-compressed table of dictionary key
// names, an interned string table and a chunked resource table. Values refer
// to the side tables by index, so strings and resources that appear many
// times in the tree are stored once.
//
// Decoding builds a Document whose shared leaves keep their identity: two
// tree positions that reference the same string or resource index hold the
// same *Str or *Resource. Encoding requires Merge to be called after any
// edit to the tree so that the name and string tables describe it exactly.
package psb

// PSB global constants must never change.
const (
	// Signature is the file magic, encoded as "PSB\0".
	Signature = "PSB\x00"

	// DefaultVersion is the header version written by New.
	DefaultVersion uint16 = 3
)

// Type is the tag byte that precedes every encoded value.
type Type byte

const (
	TypeNone  Type = 0x00
	TypeNull  Type = 0x01
	TypeFalse Type = 0x02
	TypeTrue  Type = 0x03

	// Integers with a payload of 0..8 little-endian bytes.
	TypeNumberN0 Type = 0x04
	TypeNumberN8 Type = 0x0C

	// Unsigned arrays whose element count takes 1..8 bytes.
	TypeArrayN1 Type = 0x0D
	TypeArrayN8 Type = 0x14

	// String table references with a 1..4 byte index.
	TypeStringN1 Type = 0x15
	TypeStringN4 Type = 0x18

	// Resource table references with a 1..4 byte index.
	TypeResourceN1 Type = 0x19
	TypeResourceN4 Type = 0x1C

	TypeFloat0 Type = 0x1D
	TypeFloat  Type = 0x1E
	TypeDouble Type = 0x1F

	TypeList    Type = 0x20
	TypeObjects Type = 0x21

	// Compiler-only representations. They are never emitted by this package
	// and decode to no value.
	TypeCompilerInteger  Type = 0x80
	TypeCompilerString   Type = 0x81
	TypeCompilerResource Type = 0x82
	TypeCompilerDecimal  Type = 0x83
	TypeCompilerArray    Type = 0x84
	TypeCompilerBool     Type = 0x85
	TypeCompilerBTree    Type = 0x86
)

func numberType(width int) Type   { return TypeNumberN0 + Type(width) }
func arrayType(width int) Type    { return TypeArrayN1 + Type(width-1) }
func stringType(width int) Type   { return TypeStringN1 + Type(width-1) }
func resourceType(width int) Type { return TypeResourceN1 + Type(width-1) }

// isArray reports whether t is one of the array tags and returns the byte
// width it encodes.
func (t Type) isArray() (int, bool) {
	if t < TypeArrayN1 || t > TypeArrayN8 {
		return 0, false
	}
	return int(t-TypeArrayN1) + 1, true
}

func (t Type) isCompilerOnly() bool {
	return t >= TypeCompilerInteger && t <= TypeCompilerBTree
}

// Reserved dictionary keys.
const (
	KeySpec             = "spec"
	KeyExpireSuffixList = "expire_suffix_list"
)
