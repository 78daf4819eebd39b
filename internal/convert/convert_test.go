package convert

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/psbkit/pkg/psb"
)

// sample returns a loaded document exercising every value kind.
func sample(t *testing.T) *psb.Document {
	t.Helper()
	doc := psb.New(psb.DefaultVersion)
	shared := psb.NewResource([]byte{0, 1, 2, 0xFF})
	meta := psb.NewDictionary()
	meta.Set("width", psb.Int(640))
	meta.Set("scale", psb.Float32(1.25))
	meta.Set("half", psb.Float64(0.5))
	meta.Set("tiny", psb.Float64(1e-300))
	meta.Set("zero", psb.Float32(0))
	meta.Set("empty", psb.NewDictionary())

	doc.Objects.Set("spec", psb.NewStr("krkr"))
	doc.Objects.Set("id", psb.Int(-300))
	doc.Objects.Set("big", psb.Int(math.MinInt64))
	doc.Objects.Set("ok", psb.Bool(true))
	doc.Objects.Set("nothing", psb.Null{})
	doc.Objects.Set("looks_like_bool", psb.NewStr("true"))
	doc.Objects.Set("raw", psb.Array{0, 7, math.MaxUint64})
	doc.Objects.Set("meta", meta)
	doc.Objects.Set("layers", psb.NewCollection(shared, psb.NewStr("name: with colon"), shared, psb.NewCollection()))
	doc.Objects.Set("", psb.NewStr(""))
	doc.Merge()

	raw, err := doc.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	loaded, err := psb.Load(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return loaded
}

type codec struct {
	name   string
	export func(*bytes.Buffer, *psb.Document, ExportOptions) error
	parse  func(*bytes.Buffer, ImportOptions) (*psb.Document, error)
}

var textCodecs = []codec{
	{
		name:   "json",
		export: func(b *bytes.Buffer, d *psb.Document, o ExportOptions) error { return ExportJSON(b, d, o) },
		parse:  func(b *bytes.Buffer, o ImportOptions) (*psb.Document, error) { return ImportJSON(b, o) },
	},
	{
		name:   "yaml",
		export: func(b *bytes.Buffer, d *psb.Document, o ExportOptions) error { return ExportYAML(b, d, o) },
		parse:  func(b *bytes.Buffer, o ImportOptions) (*psb.Document, error) { return ImportYAML(b, o) },
	},
}

func TestTextRoundTrip(t *testing.T) {
	t.Parallel()

	for _, c := range textCodecs {
		for _, mode := range []ResourceMode{ResourceExternal, ResourceInline} {
			t.Run(c.name+"/"+string(mode), func(t *testing.T) {
				t.Parallel()
				doc := sample(t)
				store := MemStore{}

				var buf bytes.Buffer
				if err := c.export(&buf, doc, ExportOptions{Resources: mode, Store: store, Indent: "  "}); err != nil {
					t.Fatalf("export: %v", err)
				}
				text := buf.String()

				got, err := c.parse(&buf, ImportOptions{Version: 4, Store: store, DedupResources: true})
				if err != nil {
					t.Fatalf("import: %v\n%s", err, text)
				}
				if !psb.Equal(got.Objects, doc.Objects) {
					t.Fatalf("tree mismatch after %s round trip:\n%s", c.name, text)
				}
				if got.Header.Version != 4 {
					t.Fatalf("version: %d", got.Header.Version)
				}
				if len(got.Resources) != 1 {
					t.Fatalf("resource table size: %d", len(got.Resources))
				}
				if _, err := got.Build(); err != nil {
					t.Fatalf("imported document does not build: %v", err)
				}
			})
		}
	}
}

func TestExternalResourcesShareOneReference(t *testing.T) {
	t.Parallel()
	doc := sample(t)
	store := MemStore{}

	var buf bytes.Buffer
	if err := ExportJSON(&buf, doc, ExportOptions{Store: store}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if n := strings.Count(buf.String(), `"#resource#0"`); n != 2 {
		t.Fatalf("expected two references to resource 0, got %d in %s", n, buf.String())
	}
	if diff := cmp.Diff(MemStore{0: {0, 1, 2, 0xFF}}, store); diff != "" {
		t.Fatalf("store (-want +got):\n%s", diff)
	}

	got, err := ImportJSON(&buf, ImportOptions{Store: store})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	layers, _ := got.Objects.Collection("layers")
	if layers.At(0) != layers.At(2) {
		t.Fatalf("references to one resource should import as one value")
	}
}

func TestJSONKeepsKeyOrderAndNumberKinds(t *testing.T) {
	t.Parallel()
	doc := psb.New(3)
	doc.Objects.Set("z", psb.Int(1))
	doc.Objects.Set("a", psb.Float32(2))
	doc.Objects.Set("m", psb.Float64(3))
	doc.Objects.Set("arr", psb.Array{1, 2})

	var buf bytes.Buffer
	if err := ExportJSON(&buf, doc, ExportOptions{Resources: ResourceInline}); err != nil {
		t.Fatalf("export: %v", err)
	}
	want := `{"z":1,"a":2.0,"m":{"#double":3.0},"arr":{"#array":[1,2]}}` + "\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Fatalf("json (-want +got):\n%s", diff)
	}
}

func TestTextKeepsFloatWidth(t *testing.T) {
	t.Parallel()
	doc := psb.New(3)
	for i, f := range []float64{0.1, 0.3, 1.1, 3.14159, 1e-7, 16777217} {
		doc.Objects.Set(fmt.Sprintf("f%d", i), psb.Float32(float32(f)))
		doc.Objects.Set(fmt.Sprintf("d%d", i), psb.Float64(f))
	}
	doc.Objects.Set("narrowed", psb.Float64(float64(float32(0.1))))

	for _, c := range textCodecs {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := c.export(&buf, doc, ExportOptions{Resources: ResourceInline}); err != nil {
				t.Fatalf("export: %v", err)
			}
			text := buf.String()
			got, err := c.parse(&buf, ImportOptions{})
			if err != nil {
				t.Fatalf("import: %v\n%s", err, text)
			}
			for k, want := range doc.Objects.Entries() {
				v, _ := got.Objects.Get(k)
				n, ok := v.(psb.Number)
				w := want.(psb.Number)
				if !ok || n.NumberKind() != w.NumberKind() || n.Float64() != w.Float64() {
					t.Errorf("%s: got %v, want %v\n%s", k, v, want, text)
				}
			}
		})
	}
}

func TestTextEscapesMarkerLikeStrings(t *testing.T) {
	t.Parallel()
	doc := psb.New(3)
	doc.Objects.Set("ref", psb.NewStr("#resource#1"))
	doc.Objects.Set("inline", psb.NewStr("#resource@aGk="))
	doc.Objects.Set("hash", psb.NewStr("#"))
	doc.Objects.Set("doubled", psb.NewStr("##x"))
	arrayLike := psb.NewDictionary()
	arrayLike.Set("#array", psb.NewCollection(psb.Int(1)))
	doc.Objects.Set("a", arrayLike)
	doubleLike := psb.NewDictionary()
	doubleLike.Set("#double", psb.Int(2))
	doubleLike.Set("other", psb.Null{})
	doc.Objects.Set("d", doubleLike)
	doc.Objects.Set("#resource#0", psb.Bool(true))

	for _, c := range textCodecs {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			if err := c.export(&buf, doc, ExportOptions{Resources: ResourceInline}); err != nil {
				t.Fatalf("export: %v", err)
			}
			text := buf.String()
			got, err := c.parse(&buf, ImportOptions{})
			if err != nil {
				t.Fatalf("import: %v\n%s", err, text)
			}
			if !psb.Equal(got.Objects, doc.Objects) {
				t.Fatalf("tree mismatch after %s round trip:\n%s", c.name, text)
			}
			if len(got.Resources) != 0 {
				t.Fatalf("strings imported as %d resources:\n%s", len(got.Resources), text)
			}
		})
	}
}

func TestYAMLUsesTags(t *testing.T) {
	t.Parallel()
	doc := psb.New(3)
	doc.Objects.Set("arr", psb.Array{1, 2})
	doc.Objects.Set("d", psb.Float64(3))
	doc.Objects.Set("r", psb.NewResource([]byte("hi")))
	doc.Objects.Set("s", psb.NewStr("123"))

	var buf bytes.Buffer
	if err := ExportYAML(&buf, doc, ExportOptions{Resources: ResourceInline}); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"arr: !array [1, 2]", "d: !double 3.0", "r: !!binary aGk=", `s: "123"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}
}

func TestImportErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"root not object", `[1,2]`},
		{"marker with extra keys", `{"a":{"#array":[1],"b":2}}`},
		{"negative array element", `{"a":{"#array":[-1]}}`},
		{"integer overflow", `{"a":99999999999999999999}`},
		{"bad inline resource", `{"a":"#resource@***"}`},
		{"reference without store", `{"a":"#resource#3"}`},
		{"truncated", `{"a":[1,2`},
		{"trailing data", `{"a":1} {"b":2}`},
	}
	for _, tc := range tests {
		_, err := ImportJSON(strings.NewReader(tc.input), ImportOptions{})
		if !errors.Is(err, ErrSyntax) {
			t.Errorf("%s: expected ErrSyntax, got %v", tc.name, err)
		}
	}

	if _, err := ImportYAML(strings.NewReader("a: !weird 1\n"), ImportOptions{}); !errors.Is(err, ErrSyntax) {
		t.Errorf("yaml unknown tag: expected ErrSyntax, got %v", err)
	}
	if _, err := ImportYAML(strings.NewReader(""), ImportOptions{}); !errors.Is(err, ErrSyntax) {
		t.Errorf("yaml empty: expected ErrSyntax, got %v", err)
	}
}

func TestExportRejectsNonFiniteFloats(t *testing.T) {
	t.Parallel()
	doc := psb.New(3)
	doc.Objects.Set("nan", psb.Float64(math.NaN()))
	var buf bytes.Buffer
	if err := ExportJSON(&buf, doc, ExportOptions{Resources: ResourceInline}); !errors.Is(err, ErrSyntax) {
		t.Fatalf("expected ErrSyntax, got %v", err)
	}
}

func TestExternalModeNeedsStore(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := ExportJSON(&buf, psb.New(3), ExportOptions{}); err == nil {
		t.Fatal("expected error without a store")
	}
}

func TestDirStore(t *testing.T) {
	t.Parallel()
	store := DirStore(filepath.Join(t.TempDir(), "res"))
	if err := store.Put(3, []byte("chunk")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "chunk" {
		t.Fatalf("got %q", got)
	}
	if _, err := store.Get(4); err == nil {
		t.Fatal("expected error for missing resource")
	}
}

func TestManifestRoundTrip(t *testing.T) {
	t.Parallel()
	doc := sample(t)
	m := NewManifest(doc, "json", ResourceExternal, "res")
	path := filepath.Join(t.TempDir(), "doc.resx.json")
	if err := WriteManifest(path, m); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Fatalf("manifest (-want +got):\n%s", diff)
	}
	if got.Platform != psb.SpecKrkr || got.PixelFormat != psb.PixelWindowsRGBA8 {
		t.Fatalf("platform: %q %q", got.Platform, got.PixelFormat)
	}
}

func TestExportCBOR(t *testing.T) {
	t.Parallel()
	doc := psb.New(3)
	doc.Objects.Set("z", psb.Int(1))
	doc.Objects.Set("a", psb.NewResource([]byte("hi")))
	doc.Objects.Set("f", psb.Float32(1.5))
	doc.Objects.Set("arr", psb.Array{4})

	var buf bytes.Buffer
	if err := ExportCBOR(&buf, doc, ExportOptions{}); err != nil {
		t.Fatalf("export: %v", err)
	}

	diag, err := cbor.Diagnose(buf.Bytes())
	if err != nil {
		t.Fatalf("diagnose: %v", err)
	}
	if strings.Index(diag, `"z"`) > strings.Index(diag, `"a"`) {
		t.Fatalf("key order lost: %s", diag)
	}

	dm, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		t.Fatalf("dec mode: %v", err)
	}
	var got map[string]any
	if err := dm.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tag, ok := got["a"].(cbor.Tag)
	if !ok || tag.Number != cborTagResource {
		t.Fatalf("resource: %#v", got["a"])
	}
	if b, _ := tag.Content.([]byte); string(b) != "hi" {
		t.Fatalf("resource content: %#v", tag.Content)
	}
	if got["z"] != uint64(1) {
		t.Fatalf("z: %#v", got["z"])
	}
}

func TestParseResourceMode(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]ResourceMode{"": ResourceExternal, "INLINE": ResourceInline, "external": ResourceExternal} {
		got, err := ParseResourceMode(in)
		if err != nil || got != want {
			t.Errorf("ParseResourceMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseResourceMode("zip"); err == nil {
		t.Fatal("expected error")
	}
}
