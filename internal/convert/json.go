package convert

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	gojson "github.com/goccy/go-json"

	"github.com/samcharles93/psbkit/pkg/psb"
)

// ExportJSON writes the root dictionary of doc as JSON, keeping key order.
func ExportJSON(w io.Writer, doc *psb.Document, opts ExportOptions) error {
	e, err := newExporter(doc, opts)
	if err != nil {
		return err
	}
	buf, err := e.appendJSON(nil, doc.Objects)
	if err != nil {
		return err
	}
	if opts.Indent != "" {
		var out bytes.Buffer
		if err := gojson.Indent(&out, buf, "", opts.Indent); err != nil {
			return err
		}
		buf = out.Bytes()
	}
	buf = append(buf, '\n')
	_, err = w.Write(buf)
	return err
}

func (e *exporter) appendJSON(dst []byte, v psb.Value) ([]byte, error) {
	switch x := v.(type) {
	case nil, psb.Null:
		return append(dst, "null"...), nil
	case psb.Bool:
		return strconv.AppendBool(dst, bool(x)), nil
	case psb.Number:
		return appendJSONNumber(dst, x)
	case psb.Array:
		dst = append(dst, `{"`+arrayKey+`":[`...)
		for i, u := range x {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = strconv.AppendUint(dst, u, 10)
		}
		return append(dst, "]}"...), nil
	case *psb.Str:
		return appendJSONString(dst, escapeText(x.Value))
	case *psb.Resource:
		s, err := e.resource(x)
		if err != nil {
			return nil, err
		}
		return appendJSONString(dst, s)
	case *psb.Collection:
		dst = append(dst, '[')
		for i, elem := range x.Values() {
			if i > 0 {
				dst = append(dst, ',')
			}
			var err error
			if dst, err = e.appendJSON(dst, elem); err != nil {
				return nil, err
			}
		}
		return append(dst, ']'), nil
	case *psb.Dictionary:
		dst = append(dst, '{')
		first := true
		for k, elem := range x.Entries() {
			if !first {
				dst = append(dst, ',')
			}
			first = false
			var err error
			if dst, err = appendJSONString(dst, escapeText(k)); err != nil {
				return nil, err
			}
			dst = append(dst, ':')
			if dst, err = e.appendJSON(dst, elem); err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
		}
		return append(dst, '}'), nil
	default:
		return nil, fmt.Errorf("convert: unexpected value %T", v)
	}
}

func appendJSONNumber(dst []byte, n psb.Number) ([]byte, error) {
	switch n.NumberKind() {
	case psb.NumberFloat32:
		s, err := formatFloat(n.Float64(), 32)
		if err != nil {
			return nil, err
		}
		return append(dst, s...), nil
	case psb.NumberFloat64:
		s, err := formatFloat(n.Float64(), 64)
		if err != nil {
			return nil, err
		}
		if needsDoubleMarker(n.Float64()) {
			return append(append(append(dst, `{"`+doubleKey+`":`...), s...), '}'), nil
		}
		return append(dst, s...), nil
	default:
		return strconv.AppendInt(dst, n.Int64(), 10), nil
	}
}

func appendJSONString(dst []byte, s string) ([]byte, error) {
	b, err := gojson.Marshal(s)
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}

// ImportJSON reads a tree written by ExportJSON and returns a merged
// document ready to Build.
func ImportJSON(r io.Reader, opts ImportOptions) (*psb.Document, error) {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	im := newImporter(opts)
	root, err := im.readJSON(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after root object", ErrSyntax)
	}
	return im.document(root)
}

func (im *importer) readJSON(dec *gojson.Decoder) (psb.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, jsonErr(err)
	}
	switch t := tok.(type) {
	case nil:
		return psb.Null{}, nil
	case bool:
		return psb.Bool(t), nil
	case gojson.Number:
		return number(t.String())
	case string:
		return im.text(t)
	case gojson.Delim:
		switch t {
		case '[':
			c := psb.NewCollection()
			for dec.More() {
				v, err := im.readJSON(dec)
				if err != nil {
					return nil, err
				}
				c.Append(v)
			}
			return c, closeDelim(dec)
		case '{':
			return im.readJSONObject(dec)
		}
	}
	return nil, fmt.Errorf("%w: unexpected token %v", ErrSyntax, tok)
}

// readJSONObject reads the body of an object after its opening brace. An
// object whose first key is a marker must hold only that key.
func (im *importer) readJSONObject(dec *gojson.Decoder) (psb.Value, error) {
	d := psb.NewDictionary()
	for i := 0; dec.More(); i++ {
		tok, err := dec.Token()
		if err != nil {
			return nil, jsonErr(err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: object key %v", ErrSyntax, tok)
		}
		if i == 0 && (key == arrayKey || key == doubleKey) {
			v, err := readJSONMarker(dec, key)
			if err != nil {
				return nil, err
			}
			if dec.More() {
				return nil, fmt.Errorf("%w: %s must be the only key of its object", ErrSyntax, key)
			}
			return v, closeDelim(dec)
		}
		v, err := im.readJSON(dec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		d.Set(unescapeText(key), v)
	}
	return d, closeDelim(dec)
}

func readJSONMarker(dec *gojson.Decoder, key string) (psb.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, jsonErr(err)
	}
	if key == doubleKey {
		n, ok := tok.(gojson.Number)
		if !ok {
			return nil, fmt.Errorf("%w: %s must hold a number", ErrSyntax, doubleKey)
		}
		return double(n.String())
	}
	if d, ok := tok.(gojson.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("%w: %s must hold a list", ErrSyntax, arrayKey)
	}
	arr := psb.Array{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, jsonErr(err)
		}
		n, ok := tok.(gojson.Number)
		if !ok {
			return nil, fmt.Errorf("%w: %s element %v", ErrSyntax, arrayKey, tok)
		}
		u, err := arrayElem(n.String())
		if err != nil {
			return nil, err
		}
		arr = append(arr, u)
	}
	return arr, closeDelim(dec)
}

func closeDelim(dec *gojson.Decoder) error {
	_, err := dec.Token()
	return jsonErr(err)
}

func jsonErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected end of input", ErrSyntax)
	}
	return fmt.Errorf("%w: %v", ErrSyntax, err)
}
