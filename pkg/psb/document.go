package psb

// Document is one PSB container: header, shared tables and the root
// dictionary. A Document is not safe for concurrent use; independent
// Documents share nothing.
type Document struct {
	Header Header

	// Names is the sorted key name table.
	Names []string
	// Strings is the string table, ordered by index.
	Strings []*Str
	// Resources is the resource table, ordered by index.
	Resources []*Resource

	// Objects is the root dictionary.
	Objects *Dictionary

	expireSuffixList *Collection
}

// New returns an empty document for the given header version.
func New(version uint16) *Document {
	return &Document{
		Header:  Header{Version: version},
		Objects: NewDictionary(),
	}
}

// Spec is the target platform variant a document is built for.
type Spec string

const (
	SpecOther  Spec = "other"
	SpecCommon Spec = "common"
	SpecKrkr   Spec = "krkr"
	SpecWin    Spec = "win"
)

// PixelFormat names the pixel layout image tools use for a platform.
type PixelFormat string

const (
	PixelNone         PixelFormat = "none"
	PixelCommonRGBA8  PixelFormat = "common_rgba8"
	PixelWindowsRGBA8 PixelFormat = "win_rgba8"
)

// ParseSpec maps a "spec" value to a Spec, defaulting to SpecOther.
func ParseSpec(s string) Spec {
	switch Spec(s) {
	case SpecCommon, SpecKrkr, SpecWin:
		return Spec(s)
	default:
		return SpecOther
	}
}

// PixelFormat returns the pixel layout used for the platform.
func (s Spec) PixelFormat() PixelFormat {
	switch s {
	case SpecCommon:
		return PixelCommonRGBA8
	case SpecKrkr, SpecWin:
		return PixelWindowsRGBA8
	default:
		return PixelNone
	}
}

// Platform returns the platform named by the root "spec" key.
func (d *Document) Platform() Spec {
	if d.Objects == nil {
		return SpecOther
	}
	s, _ := d.Objects.Text(KeySpec)
	return ParseSpec(s)
}

// SetPlatform stores spec under the root "spec" key. Merge must run before
// the next Build.
func (d *Document) SetPlatform(spec Spec) {
	if d.Objects == nil {
		d.Objects = NewDictionary()
	}
	d.Objects.Set(KeySpec, NewStr(string(spec)))
}

// ExpireSuffixList returns the "expire_suffix_list" collection seen while
// decoding, or the one currently held by the root dictionary.
func (d *Document) ExpireSuffixList() *Collection {
	if d.Objects != nil {
		if c, ok := d.Objects.Collection(KeyExpireSuffixList); ok {
			return c
		}
	}
	return d.expireSuffixList
}

// Extension returns the first expire suffix, which names the file
// extension of the document, or "".
func (d *Document) Extension() string {
	c := d.ExpireSuffixList()
	if c == nil || c.Len() == 0 {
		return ""
	}
	if s, ok := c.At(0).(*Str); ok {
		return s.Value
	}
	return ""
}

