// Package convert turns PSB documents into editable text trees (JSON and
// YAML) and back, and exports them to CBOR.
//
// Text forms use these markers:
//
//	"#resource#N"       resource N, stored outside the tree by a ResourceStore
//	"#resource@BASE64"  resource bytes inlined
//	{"#array": [...]}   raw unsigned array
//	{"#double": 1.5}    double that would otherwise read back as a float
//
// Strings and keys that start with '#' are written with the '#' doubled.
//
// Integers are written without a decimal point and floats always with one,
// so the number kind survives a round trip.
package convert

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samcharles93/psbkit/pkg/psb"
)

const (
	resourceRefPrefix    = "#resource#"
	resourceInlinePrefix = "#resource@"
	arrayKey             = "#array"
	doubleKey            = "#double"
)

// ErrSyntax reports a text tree that does not describe a PSB document.
var ErrSyntax = errors.New("convert: invalid document tree")

// ResourceMode selects how resources appear in text output.
type ResourceMode string

const (
	// ResourceExternal writes "#resource#N" references and hands the bytes
	// to a ResourceStore.
	ResourceExternal ResourceMode = "external"
	// ResourceInline embeds base64 bytes.
	ResourceInline ResourceMode = "inline"
)

// ParseResourceMode maps a config or flag value to a ResourceMode.
func ParseResourceMode(s string) (ResourceMode, error) {
	switch m := ResourceMode(strings.ToLower(s)); m {
	case "", ResourceExternal:
		return ResourceExternal, nil
	case ResourceInline:
		return ResourceInline, nil
	default:
		return "", fmt.Errorf("unknown resource mode %q (want external or inline)", s)
	}
}

// ResourceStore keeps resource bytes addressed by table index.
type ResourceStore interface {
	Put(index int, data []byte) error
	Get(index int) ([]byte, error)
}

// DirStore stores each resource as <dir>/<index>.bin.
type DirStore string

func (d DirStore) path(index int) string {
	return filepath.Join(string(d), strconv.Itoa(index)+".bin")
}

func (d DirStore) Put(index int, data []byte) error {
	if err := os.MkdirAll(string(d), 0o755); err != nil {
		return err
	}
	return os.WriteFile(d.path(index), data, 0o644)
}

func (d DirStore) Get(index int) ([]byte, error) {
	return os.ReadFile(d.path(index))
}

// MemStore keeps resources in memory.
type MemStore map[int][]byte

func (m MemStore) Put(index int, data []byte) error {
	m[index] = data
	return nil
}

func (m MemStore) Get(index int) ([]byte, error) {
	b, ok := m[index]
	if !ok {
		return nil, fmt.Errorf("%w: resource %d missing from store", ErrSyntax, index)
	}
	return b, nil
}

// ExportOptions controls text and CBOR export.
type ExportOptions struct {
	Resources ResourceMode
	// Store receives resource bytes in ResourceExternal mode.
	Store ResourceStore
	// Indent pretty-prints JSON output.
	Indent string
}

// ImportOptions controls text import.
type ImportOptions struct {
	// Version is the header version of the built document. Zero selects
	// psb.DefaultVersion.
	Version uint16
	// Store resolves "#resource#N" references.
	Store ResourceStore
	// DedupResources shares one table entry between equal resources.
	DedupResources bool
}

// resourceIDs numbers resources for export: table entries keep their
// index, resources not yet in the table follow in traversal order.
type resourceIDs struct {
	ids  map[*psb.Resource]int
	next int
}

func newResourceIDs(doc *psb.Document) *resourceIDs {
	r := &resourceIDs{ids: make(map[*psb.Resource]int, len(doc.Resources))}
	for i, res := range doc.Resources {
		r.ids[res] = i
	}
	r.next = len(doc.Resources)
	return r
}

func (r *resourceIDs) id(res *psb.Resource) int {
	if id, ok := r.ids[res]; ok {
		return id
	}
	id := r.next
	r.next++
	r.ids[res] = id
	return id
}

// exporter carries the state shared by the text encoders.
type exporter struct {
	opts    ExportOptions
	ids     *resourceIDs
	written map[int]bool
}

func newExporter(doc *psb.Document, opts ExportOptions) (*exporter, error) {
	if opts.Resources == "" {
		opts.Resources = ResourceExternal
	}
	if opts.Resources == ResourceExternal && opts.Store == nil {
		return nil, errors.New("convert: external resources need a store")
	}
	return &exporter{opts: opts, ids: newResourceIDs(doc), written: make(map[int]bool)}, nil
}

// resource returns the text form of r, storing its bytes once.
func (e *exporter) resource(r *psb.Resource) (string, error) {
	if e.opts.Resources == ResourceInline {
		return resourceInlinePrefix + base64.StdEncoding.EncodeToString(r.Data), nil
	}
	id := e.ids.id(r)
	if !e.written[id] {
		if err := e.opts.Store.Put(id, r.Data); err != nil {
			return "", fmt.Errorf("store resource %d: %w", id, err)
		}
		e.written[id] = true
	}
	return resourceRefPrefix + strconv.Itoa(id), nil
}

// importer resolves resource markers while building a tree.
type importer struct {
	opts ImportOptions
	refs map[int]*psb.Resource
}

func newImporter(opts ImportOptions) *importer {
	return &importer{opts: opts, refs: make(map[int]*psb.Resource)}
}

// text turns a string scalar into a string or resource value.
func (im *importer) text(s string) (psb.Value, error) {
	switch {
	case strings.HasPrefix(s, resourceRefPrefix):
		id, err := strconv.Atoi(s[len(resourceRefPrefix):])
		if err != nil || id < 0 {
			return nil, fmt.Errorf("%w: bad resource reference %q", ErrSyntax, s)
		}
		if r, ok := im.refs[id]; ok {
			return r, nil
		}
		if im.opts.Store == nil {
			return nil, fmt.Errorf("%w: resource reference %q without a store", ErrSyntax, s)
		}
		data, err := im.opts.Store.Get(id)
		if err != nil {
			return nil, fmt.Errorf("load resource %d: %w", id, err)
		}
		r := psb.NewResource(data)
		im.refs[id] = r
		return r, nil
	case strings.HasPrefix(s, resourceInlinePrefix):
		data, err := base64.StdEncoding.DecodeString(s[len(resourceInlinePrefix):])
		if err != nil {
			return nil, fmt.Errorf("%w: inline resource: %v", ErrSyntax, err)
		}
		return psb.NewResource(data), nil
	default:
		return psb.NewStr(unescapeText(s)), nil
	}
}

// document wraps root into a merged Document.
func (im *importer) document(root psb.Value) (*psb.Document, error) {
	dict, ok := root.(*psb.Dictionary)
	if !ok {
		return nil, fmt.Errorf("%w: root must be an object, got %s", ErrSyntax, root.Kind())
	}
	version := im.opts.Version
	if version == 0 {
		version = psb.DefaultVersion
	}
	doc := psb.New(version)
	doc.Objects = dict
	doc.MergeWithOptions(psb.MergeOptions{DedupResources: im.opts.DedupResources})
	return doc, nil
}

// number parses a numeric literal. Literals without a fraction or
// exponent are integers; others go through floatLiteral.
func number(lit string) (psb.Number, error) {
	if !strings.ContainsAny(lit, ".eE") {
		i, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return psb.Number{}, fmt.Errorf("%w: integer %s: %v", ErrSyntax, lit, err)
		}
		return psb.Int(i), nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return psb.Number{}, fmt.Errorf("%w: float %s: %v", ErrSyntax, lit, err)
	}
	return floatLiteral(lit, f), nil
}

// floatLiteral picks the kind of a float literal whose double value is f.
// It is single precision when the shortest single precision rendering of
// lit denotes the same double, which is what formatFloat writes for floats.
func floatLiteral(lit string, f float64) psb.Number {
	if f32, ok := singleLiteral(lit, f); ok {
		return psb.Float32(f32)
	}
	return psb.Float64(f)
}

func singleLiteral(lit string, f float64) (float32, bool) {
	f32, err := strconv.ParseFloat(lit, 32)
	if err != nil {
		return 0, false
	}
	back, err := strconv.ParseFloat(strconv.FormatFloat(f32, 'g', -1, 32), 64)
	if err != nil || back != f {
		return 0, false
	}
	return float32(f32), true
}

// formatFloat renders f with a decimal point or exponent.
func formatFloat(f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: non-finite float %v", ErrSyntax, f)
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, nil
}

// needsDoubleMarker reports whether a double would read back as a float.
func needsDoubleMarker(f float64) bool {
	_, ok := singleLiteral(strconv.FormatFloat(f, 'g', -1, 64), f)
	return ok
}

// escapeText doubles a leading '#' so a string or key never reads back as
// a marker.
func escapeText(s string) string {
	if strings.HasPrefix(s, "#") {
		return "#" + s
	}
	return s
}

// unescapeText undoes escapeText.
func unescapeText(s string) string {
	if strings.HasPrefix(s, "##") {
		return s[1:]
	}
	return s
}

// arrayElem parses one element of a #array list.
func arrayElem(lit string) (uint64, error) {
	u, err := strconv.ParseUint(lit, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s elements must be unsigned integers, got %s", ErrSyntax, arrayKey, lit)
	}
	return u, nil
}

// double parses the value of a #double marker.
func double(lit string) (psb.Number, error) {
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return psb.Number{}, fmt.Errorf("%w: %s must hold a number, got %s", ErrSyntax, doubleKey, lit)
	}
	return psb.Float64(f), nil
}
