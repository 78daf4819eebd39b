package convert

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/samcharles93/psbkit/pkg/psb"
)

// CBOR tag numbers for the values that have no native CBOR form. They sit
// in the first-come-first-served range.
const (
	cborTagArray    = 55800
	cborTagResource = 55801
)

var cborEnc cbor.EncMode

func init() {
	var err error
	opts := cbor.EncOptions{
		ShortestFloat: cbor.ShortestFloatNone,
		IndefLength:   cbor.IndefLengthAllowed,
	}
	cborEnc, err = opts.EncMode()
	if err != nil {
		panic("convert: CBOR encoder initialization failed: " + err.Error())
	}
}

// ExportCBOR writes the root dictionary of doc as CBOR. Dictionaries and
// collections are streamed as indefinite-length maps and arrays so key
// order is kept. Resources are byte strings under tag 55801, raw arrays
// are uint arrays under tag 55800. Floats keep their width.
//
// In ResourceExternal mode resources are written as tagged indices and
// their bytes go to the store instead.
func ExportCBOR(w io.Writer, doc *psb.Document, opts ExportOptions) error {
	if opts.Resources == "" {
		opts.Resources = ResourceInline
	}
	e, err := newExporter(doc, opts)
	if err != nil {
		return err
	}
	enc := cborEnc.NewEncoder(w)
	return e.encodeCBOR(enc, doc.Objects)
}

func (e *exporter) encodeCBOR(enc *cbor.Encoder, v psb.Value) error {
	switch x := v.(type) {
	case nil, psb.Null:
		return enc.Encode(nil)
	case psb.Bool:
		return enc.Encode(bool(x))
	case psb.Number:
		switch x.NumberKind() {
		case psb.NumberFloat32:
			return enc.Encode(float32(x.Float64()))
		case psb.NumberFloat64:
			return enc.Encode(x.Float64())
		default:
			return enc.Encode(x.Int64())
		}
	case psb.Array:
		return enc.Encode(cbor.Tag{Number: cborTagArray, Content: []uint64(x)})
	case *psb.Str:
		return enc.Encode(x.Value)
	case *psb.Resource:
		if e.opts.Resources == ResourceInline {
			return enc.Encode(cbor.Tag{Number: cborTagResource, Content: x.Data})
		}
		id := e.ids.id(x)
		if !e.written[id] {
			if err := e.opts.Store.Put(id, x.Data); err != nil {
				return fmt.Errorf("store resource %d: %w", id, err)
			}
			e.written[id] = true
		}
		return enc.Encode(cbor.Tag{Number: cborTagResource, Content: id})
	case *psb.Collection:
		if err := enc.StartIndefiniteArray(); err != nil {
			return err
		}
		for _, elem := range x.Values() {
			if err := e.encodeCBOR(enc, elem); err != nil {
				return err
			}
		}
		return enc.EndIndefinite()
	case *psb.Dictionary:
		if err := enc.StartIndefiniteMap(); err != nil {
			return err
		}
		for k, elem := range x.Entries() {
			if err := enc.Encode(k); err != nil {
				return err
			}
			if err := e.encodeCBOR(enc, elem); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		return enc.EndIndefinite()
	default:
		return fmt.Errorf("convert: unexpected value %T", v)
	}
}
