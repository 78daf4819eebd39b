package psb

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// assemble lays out a version 3 file around hand-written entries.
func assemble(t *testing.T, names []string, entries []byte, strs []string, chunks [][]byte) []byte {
	t.Helper()

	tbl, err := buildNames(names)
	if err != nil {
		t.Fatalf("build names: %v", err)
	}
	h := Header{Version: 3, HeaderLength: headerLenV3}
	out := make([]byte, headerLenV3)

	h.OffsetNames = uint32(len(out))
	out = appendArray(out, tbl.delta)
	out = appendArray(out, tbl.link)
	out = appendArray(out, tbl.root)

	h.OffsetEntries = uint32(len(out))
	out = append(out, entries...)

	var data []byte
	offs := make(Array, len(strs))
	for i, s := range strs {
		offs[i] = uint64(len(data))
		data = append(append(data, s...), 0)
	}
	h.OffsetStrings = uint32(len(out))
	out = appendArray(out, offs)
	h.OffsetStringsData = uint32(len(out))
	out = append(out, data...)

	coffs := make(Array, len(chunks))
	clens := make(Array, len(chunks))
	var blob []byte
	for i, c := range chunks {
		coffs[i] = uint64(len(blob))
		clens[i] = uint64(len(c))
		blob = append(blob, c...)
	}
	h.OffsetChunkOffsets = uint32(len(out))
	out = appendArray(out, coffs)
	h.OffsetChunkLengths = uint32(len(out))
	out = appendArray(out, clens)
	h.OffsetChunkData = uint32(len(out))
	out = append(out, blob...)

	if !encodeHeader(out[:headerLenV3], h) {
		t.Fatalf("encode header failed")
	}
	return out
}

// objects encodes a dictionary from already-encoded values.
func objects(keyIdx []uint64, values ...[]byte) []byte {
	offs := make(Array, len(values))
	var payload []byte
	for i, v := range values {
		offs[i] = uint64(len(payload))
		payload = append(payload, v...)
	}
	out := []byte{byte(TypeObjects)}
	out = appendArray(out, keyIdx)
	out = appendArray(out, offs)
	return append(out, payload...)
}

func roundTrip(t *testing.T, doc *Document) *Document {
	t.Helper()
	doc.Merge()
	raw, err := doc.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got, err := Load(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return got
}

func TestScenarioSimpleDictionary(t *testing.T) {
	t.Parallel()

	doc := New(DefaultVersion)
	doc.Objects.Set("a", Int(1))
	doc.Objects.Set("b", NewStr("hi"))

	got := roundTrip(t, doc)
	want := NewDictionary()
	want.Set("a", Int(1))
	want.Set("b", NewStr("hi"))
	if !Equal(got.Objects, want) {
		t.Fatalf("root mismatch: keys %v", got.Objects.Keys())
	}
	if diff := cmp.Diff([]string{"a", "b"}, got.Names); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}

func TestScenarioSharedResourceIdentity(t *testing.T) {
	t.Parallel()

	doc := New(DefaultVersion)
	others := NewCollection()
	for i := range 3 {
		others.Append(NewResource([]byte{byte(i)}))
	}
	shared := NewResource([]byte("pixels"))
	doc.Objects.Set("others", others)
	doc.Objects.Set("x", shared)
	doc.Objects.Set("y", shared)

	got := roundTrip(t, doc)
	x, _ := got.Objects.Get("x")
	y, _ := got.Objects.Get("y")
	rx, ok := x.(*Resource)
	if !ok {
		t.Fatalf("x is %T", x)
	}
	if x != y {
		t.Fatalf("x and y decoded to different resources")
	}
	if idx, ok := rx.Index(); !ok || idx != 3 {
		t.Fatalf("resource index: %d %v", idx, ok)
	}
	if !bytes.Equal(rx.Data, []byte("pixels")) {
		t.Fatalf("resource data: %q", rx.Data)
	}
	if len(got.Resources) != 4 {
		t.Fatalf("resource table size: %d", len(got.Resources))
	}
}

func TestScenarioUnknownKeyFailsBuild(t *testing.T) {
	t.Parallel()

	doc := New(DefaultVersion)
	doc.Objects.Set("known", Int(1))
	doc.Merge()
	doc.Objects.Set("unseen", Int(2))

	raw, err := doc.Build()
	if !errors.Is(err, ErrIndex) {
		t.Fatalf("expected ErrIndex, got %v", err)
	}
	if raw != nil {
		t.Fatalf("expected no output, got %d bytes", len(raw))
	}

	path := filepath.Join(t.TempDir(), "out.psb")
	if err := doc.Save(path, SaveOptions{}); !errors.Is(err, ErrIndex) {
		t.Fatalf("save: expected ErrIndex, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("save left a file behind: %v", err)
	}
}

func TestScenarioCompilerTagIsSkipped(t *testing.T) {
	t.Parallel()

	list := []byte{byte(TypeList)}
	list = appendArray(list, Array{0, 1})
	list = append(list, byte(TypeCompilerArray))
	list = appendNumber(list, Int(7))

	entries := objects(Array{0, 1, 2},
		[]byte{byte(TypeCompilerInteger)},
		appendNumber(nil, Int(5)),
		list,
	)
	raw := assemble(t, []string{"a", "b", "c"}, entries, nil, nil)

	var logs bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	doc, err := LoadWithOptions(raw, LoadOptions{Logger: log})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := doc.Objects.Get("a"); ok {
		t.Fatalf("compiler-only value should be skipped")
	}
	if v, _ := doc.Objects.Get("b"); !Equal(v, Int(5)) {
		t.Fatalf("b: got %v", v)
	}
	c, ok := doc.Objects.Collection("c")
	if !ok || c.Len() != 1 || !Equal(c.At(0), Int(7)) {
		t.Fatalf("c: got %v", c)
	}
	if !strings.Contains(logs.String(), "skipping value") {
		t.Fatalf("expected debug record for skipped tag, got %s", logs.String())
	}
}

func TestStringsWithEqualTextCollapse(t *testing.T) {
	t.Parallel()

	entries := objects(Array{0, 1},
		[]byte{byte(stringType(1)), 0},
		[]byte{byte(stringType(1)), 1},
	)
	raw := assemble(t, []string{"a", "b"}, entries, []string{"hi", "hi"}, nil)

	doc, err := Load(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	a, _ := doc.Objects.Get("a")
	b, _ := doc.Objects.Get("b")
	if a != b {
		t.Fatalf("equal text should share one entry")
	}
	if len(doc.Strings) != 1 {
		t.Fatalf("string table size: %d", len(doc.Strings))
	}
}

func TestSameStringIndexSharesEntry(t *testing.T) {
	t.Parallel()

	doc := New(DefaultVersion)
	s := NewStr("shared")
	doc.Objects.Set("a", s)
	doc.Objects.Set("b", NewCollection(s, NewStr("other"), s))

	got := roundTrip(t, doc)
	a, _ := got.Objects.Get("a")
	c, _ := got.Objects.Collection("b")
	if a != c.At(0) || a != c.At(2) {
		t.Fatalf("same index should decode to the same *Str")
	}
	if len(got.Strings) != 2 {
		t.Fatalf("string table size: %d", len(got.Strings))
	}
}

func TestRoundTripAllValueKinds(t *testing.T) {
	t.Parallel()

	for _, version := range []uint16{2, 3, 4} {
		doc := New(version)
		res := NewResource(bytes.Repeat([]byte{0xAB}, 300))
		inner := NewDictionary()
		inner.Set("neg", Int(-300))
		inner.Set("big", Int(1<<40))
		inner.Set("f32", Float32(1.25))
		inner.Set("f64", Float64(-3.5e100))
		inner.Set("zero", Float32(0))
		inner.Set("empty", NewDictionary())

		doc.Objects.Set("null", Null{})
		doc.Objects.Set("yes", Bool(true))
		doc.Objects.Set("no", Bool(false))
		doc.Objects.Set("int", Int(0))
		doc.Objects.Set("arr", Array{0, 1, 70000})
		doc.Objects.Set("text", NewStr("héllo"))
		doc.Objects.Set("res", res)
		doc.Objects.Set("list", NewCollection(Int(1), NewStr("x"), res, NewCollection(), inner))
		doc.Objects.Set("", NewStr(""))
		doc.SetPlatform(SpecKrkr)

		got := roundTrip(t, doc)
		if !Equal(got.Objects, doc.Objects) {
			t.Fatalf("v%d: tree mismatch: keys %v", version, got.Objects.Keys())
		}
		if got.Header.Version != version {
			t.Fatalf("v%d: header version %d", version, got.Header.Version)
		}
		if got.Platform() != SpecKrkr {
			t.Fatalf("v%d: platform %q", version, got.Platform())
		}
		list, _ := got.Objects.Collection("list")
		if list.Parent() != Value(got.Objects) {
			t.Fatalf("v%d: list parent not set", version)
		}
		if d, ok := list.At(4).(*Dictionary); !ok || d.Parent() != Value(list) {
			t.Fatalf("v%d: nested dictionary parent not set", version)
		}
	}
}

func TestBuildPatchesHeader(t *testing.T) {
	t.Parallel()

	doc := New(3)
	doc.Objects.Set("k", NewStr("v"))
	doc.Merge()
	raw, err := doc.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	h, err := decodeHeader(raw)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if h.HeaderLength != headerLenV3 || h.OffsetNames != headerLenV3 {
		t.Fatalf("unexpected header %+v", h)
	}
	if !(h.OffsetNames < h.OffsetEntries && h.OffsetEntries < h.OffsetStrings &&
		h.OffsetStrings < h.OffsetStringsData && h.OffsetStringsData < h.OffsetChunkOffsets) {
		t.Fatalf("sections out of order: %+v", h)
	}
	if diff := cmp.Diff(h, doc.Header); diff != "" {
		t.Fatalf("document header not updated (-file +doc):\n%s", diff)
	}
	if _, err := LoadWithOptions(raw, LoadOptions{VerifyChecksum: true}); err != nil {
		t.Fatalf("checksum verification: %v", err)
	}
	raw[12]++
	if _, err := LoadWithOptions(raw, LoadOptions{VerifyChecksum: true}); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected checksum ErrFormat, got %v", err)
	}
}

func TestMergeReindexesByPriorIndex(t *testing.T) {
	t.Parallel()

	doc := New(DefaultVersion)
	late, early, fresh := NewStr("late"), NewStr("early"), NewStr("fresh")
	late.setIndex(9)
	early.setIndex(2)
	dup := NewStr("early")
	doc.Objects.Set("z", fresh)
	doc.Objects.Set("y", late)
	doc.Objects.Set("x", early)
	doc.Objects.Set("w", dup)
	doc.Merge()

	var got []string
	for _, s := range doc.Strings {
		got = append(got, s.Value)
	}
	if diff := cmp.Diff([]string{"early", "late", "fresh"}, got); diff != "" {
		t.Fatalf("string order (-want +got):\n%s", diff)
	}
	for i, s := range doc.Strings {
		if idx, _ := s.Index(); int(idx) != i {
			t.Fatalf("%q: index %d at position %d", s.Value, idx, i)
		}
	}
	if idx, _ := dup.Index(); idx != 0 {
		t.Fatalf("duplicate text should share index 0, got %d", idx)
	}
	if diff := cmp.Diff([]string{"w", "x", "y", "z"}, doc.Names); diff != "" {
		t.Fatalf("names (-want +got):\n%s", diff)
	}
}

func TestMergeDedupResources(t *testing.T) {
	t.Parallel()

	doc := New(DefaultVersion)
	doc.Objects.Set("a", NewResource([]byte("same")))
	doc.Objects.Set("b", NewResource([]byte("same")))
	doc.Objects.Set("c", NewResource([]byte("different")))

	doc.Merge()
	if len(doc.Resources) != 3 {
		t.Fatalf("without dedup: %d resources", len(doc.Resources))
	}

	doc.MergeWithOptions(MergeOptions{DedupResources: true})
	if len(doc.Resources) != 2 {
		t.Fatalf("with dedup: %d resources", len(doc.Resources))
	}
	raw, err := doc.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got, err := Load(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	a, _ := got.Objects.Get("a")
	b, _ := got.Objects.Get("b")
	if a != b {
		t.Fatalf("deduplicated resources should decode to one entry")
	}
	if len(got.Resources) != 2 {
		t.Fatalf("decoded resource table size: %d", len(got.Resources))
	}
}

func TestExpireSuffixList(t *testing.T) {
	t.Parallel()

	doc := New(DefaultVersion)
	doc.Objects.Set(KeyExpireSuffixList, NewCollection(NewStr(".pimg"), NewStr(".psb")))
	got := roundTrip(t, doc)
	if got.Extension() != ".pimg" {
		t.Fatalf("extension: %q", got.Extension())
	}
	if got.ExpireSuffixList() == nil || got.ExpireSuffixList().Len() != 2 {
		t.Fatalf("expire suffix list missing")
	}
	if New(3).Extension() != "" {
		t.Fatalf("empty document should have no extension")
	}
}

func TestPlatformDefaults(t *testing.T) {
	t.Parallel()

	doc := New(DefaultVersion)
	if doc.Platform() != SpecOther {
		t.Fatalf("default platform: %q", doc.Platform())
	}
	doc.Objects.Set(KeySpec, NewStr("ps4"))
	if doc.Platform() != SpecOther {
		t.Fatalf("unknown spec should map to other, got %q", doc.Platform())
	}
	doc.SetPlatform(SpecCommon)
	if doc.Platform().PixelFormat() != PixelCommonRGBA8 {
		t.Fatalf("pixel format: %q", doc.Platform().PixelFormat())
	}
	if SpecWin.PixelFormat() != PixelWindowsRGBA8 || SpecOther.PixelFormat() != PixelNone {
		t.Fatalf("unexpected pixel formats")
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	// Root is a number, not a dictionary.
	notDict := assemble(t, nil, appendNumber(nil, Int(1)), nil, nil)
	if _, err := Load(notDict); !errors.Is(err, ErrData) {
		t.Fatalf("expected ErrData, got %v", err)
	}

	noRoot := assemble(t, nil, []byte{byte(TypeNone)}, nil, nil)
	if _, err := Load(noRoot); !errors.Is(err, ErrData) {
		t.Fatalf("expected ErrData for missing root, got %v", err)
	}

	missingRes := assemble(t, []string{"r"}, objects(Array{0}, []byte{byte(resourceType(1)), 4}), nil, nil)
	if _, err := Load(missingRes); !errors.Is(err, ErrIndex) {
		t.Fatalf("expected ErrIndex, got %v", err)
	}

	good := assemble(t, []string{"a"}, objects(Array{0}, appendNumber(nil, Int(1))), nil, nil)
	if _, err := Load(good[:len(good)-12]); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for truncation, got %v", err)
	}
	if _, err := Load([]byte("not a psb file at all, really not")); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for garbage, got %v", err)
	}
}

func TestLoadRejectsBadOffsets(t *testing.T) {
	t.Parallel()

	list := appendArray([]byte{byte(TypeList)}, Array{math.MaxUint64 - 11})
	list = appendNumber(list, Int(1))

	dict := appendArray([]byte{byte(TypeObjects)}, Array{0})
	dict = appendArray(dict, Array{math.MaxUint64})
	dict = appendNumber(dict, Int(1))

	nested := []byte{byte(TypeNull)}
	for range maxDepth + 1 {
		nested = append(appendArray([]byte{byte(TypeList)}, Array{0}), nested...)
	}

	tests := []struct {
		name    string
		entries []byte
	}{
		{"list offset wraps", objects(Array{0}, list)},
		{"objects offset wraps", objects(Array{0}, dict)},
		{"list offset past end", objects(Array{0}, appendArray([]byte{byte(TypeList)}, Array{1 << 20}))},
		{"nesting too deep", objects(Array{0}, nested)},
	}
	for _, tc := range tests {
		raw := assemble(t, []string{"a"}, tc.entries, nil, nil)
		if _, err := Load(raw); !errors.Is(err, ErrFormat) {
			t.Errorf("%s: expected ErrFormat, got %v", tc.name, err)
		}
	}

	d := &decoder{
		c:             cursor{data: make([]byte, 16)},
		header:        Header{OffsetStringsData: 8},
		stringOffsets: Array{math.MaxUint64 - 7},
		strByIndex:    make(map[uint64]*Str),
		strByText:     make(map[string]*Str),
	}
	if _, err := d.loadString(0); !errors.Is(err, ErrFormat) {
		t.Fatalf("string offset wraps: expected ErrFormat, got %v", err)
	}
}

func TestDictionaryEditing(t *testing.T) {
	t.Parallel()

	d := NewDictionary()
	d.Set("a", Int(1))
	d.Set("b", nil)
	d.Set("a", Int(2))
	if diff := cmp.Diff([]string{"a", "b"}, d.Keys()); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
	if v, _ := d.Get("b"); v.Kind() != KindNull {
		t.Fatalf("nil should be stored as null, got %v", v.Kind())
	}
	if !d.Delete("a") || d.Delete("a") {
		t.Fatalf("delete reported wrong presence")
	}
	if d.Len() != 1 {
		t.Fatalf("len: %d", d.Len())
	}
}

func TestSaveAndOpen(t *testing.T) {
	t.Parallel()

	doc := New(DefaultVersion)
	doc.Objects.Set("id", Int(42))
	doc.Objects.Set("blob", NewResource([]byte("chunk")))
	doc.Merge()

	dir := t.TempDir()
	for _, opts := range []SaveOptions{{}, {MDF: true, MDFLevel: 9}} {
		path := filepath.Join(dir, "doc.psb")
		if err := doc.Save(path, opts); err != nil {
			t.Fatalf("save %+v: %v", opts, err)
		}
		got, err := Open(path, LoadOptions{})
		if err != nil {
			t.Fatalf("open %+v: %v", opts, err)
		}
		if !Equal(got.Objects, doc.Objects) {
			t.Fatalf("open %+v: tree mismatch", opts)
		}

		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("open file: %v", err)
		}
		st, err := f.Stat()
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		viaReaderAt, err := OpenReaderAt(f, st.Size(), LoadOptions{})
		_ = f.Close()
		if err != nil {
			t.Fatalf("open readerat: %v", err)
		}
		if !Equal(viaReaderAt.Objects, doc.Objects) {
			t.Fatalf("readerat %+v: tree mismatch", opts)
		}
	}
}

func TestMDFSizeLimit(t *testing.T) {
	t.Parallel()

	doc := New(DefaultVersion)
	doc.Objects.Set("blob", NewResource(make([]byte, 4096)))
	doc.Merge()
	raw, err := doc.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	packed, err := CompressMDF(raw, 9)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	if _, err := LoadWithOptions(packed, LoadOptions{MaxDecompressedSize: 1024}); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat over the limit, got %v", err)
	}
	if _, err := LoadWithOptions(packed, LoadOptions{MaxDecompressedSize: int64(len(raw))}); err != nil {
		t.Fatalf("load at the limit: %v", err)
	}

	// A header claiming 4 GiB is refused before inflating.
	huge := append([]byte(MagicMDF), 0xFF, 0xFF, 0xFF, 0xFF)
	huge = append(huge, packed[mdfHeaderSize:]...)
	if _, err := DecompressMDFLimit(huge, 1<<20); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for oversized header, got %v", err)
	}
}
