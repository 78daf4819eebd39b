package convert

import (
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/psbkit/pkg/psb"
)

// YAML uses tags where JSON needs marker objects.
const (
	yamlArrayTag  = "!array"
	yamlDoubleTag = "!double"
	yamlBinaryTag = "!!binary"
)

// ExportYAML writes the root dictionary of doc as a YAML document. Inline
// resources use the standard !!binary tag.
func ExportYAML(w io.Writer, doc *psb.Document, opts ExportOptions) error {
	e, err := newExporter(doc, opts)
	if err != nil {
		return err
	}
	root, err := e.yamlNode(doc.Objects)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return err
	}
	return enc.Close()
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func (e *exporter) yamlNode(v psb.Value) (*yaml.Node, error) {
	switch x := v.(type) {
	case nil, psb.Null:
		return scalar("!!null", "null"), nil
	case psb.Bool:
		return scalar("!!bool", strconv.FormatBool(bool(x))), nil
	case psb.Number:
		switch x.NumberKind() {
		case psb.NumberFloat32:
			s, err := formatFloat(x.Float64(), 32)
			if err != nil {
				return nil, err
			}
			return scalar("!!float", s), nil
		case psb.NumberFloat64:
			s, err := formatFloat(x.Float64(), 64)
			if err != nil {
				return nil, err
			}
			if needsDoubleMarker(x.Float64()) {
				return scalar(yamlDoubleTag, s), nil
			}
			return scalar("!!float", s), nil
		default:
			return scalar("!!int", strconv.FormatInt(x.Int64(), 10)), nil
		}
	case psb.Array:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: yamlArrayTag, Style: yaml.FlowStyle}
		for _, u := range x {
			n.Content = append(n.Content, scalar("!!int", strconv.FormatUint(u, 10)))
		}
		return n, nil
	case *psb.Str:
		return scalar("!!str", escapeText(x.Value)), nil
	case *psb.Resource:
		if e.opts.Resources == ResourceInline {
			return scalar(yamlBinaryTag, base64.StdEncoding.EncodeToString(x.Data)), nil
		}
		s, err := e.resource(x)
		if err != nil {
			return nil, err
		}
		return scalar("!!str", s), nil
	case *psb.Collection:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, elem := range x.Values() {
			c, err := e.yamlNode(elem)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, c)
		}
		return n, nil
	case *psb.Dictionary:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for k, elem := range x.Entries() {
			c, err := e.yamlNode(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			n.Content = append(n.Content, scalar("!!str", escapeText(k)), c)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("convert: unexpected value %T", v)
	}
}

// ImportYAML reads a tree written by ExportYAML and returns a merged
// document ready to Build.
func ImportYAML(r io.Reader, opts ImportOptions) (*psb.Document, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty document", ErrSyntax)
		}
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	im := newImporter(opts)
	root, err := im.fromYAML(&doc)
	if err != nil {
		return nil, err
	}
	return im.document(root)
}

func (im *importer) fromYAML(n *yaml.Node) (psb.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) != 1 {
			return nil, fmt.Errorf("%w: document must hold one node", ErrSyntax)
		}
		return im.fromYAML(n.Content[0])
	case yaml.AliasNode:
		return im.fromYAML(n.Alias)
	case yaml.MappingNode:
		d := psb.NewDictionary()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: line %d: mapping keys must be scalars", ErrSyntax, k.Line)
			}
			v, err := im.fromYAML(n.Content[i+1])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k.Value, err)
			}
			d.Set(unescapeText(k.Value), v)
		}
		return d, nil
	case yaml.SequenceNode:
		if n.Tag == yamlArrayTag {
			arr := make(psb.Array, 0, len(n.Content))
			for _, c := range n.Content {
				u, err := arrayElem(c.Value)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", c.Line, err)
				}
				arr = append(arr, u)
			}
			return arr, nil
		}
		c := psb.NewCollection()
		for _, e := range n.Content {
			v, err := im.fromYAML(e)
			if err != nil {
				return nil, err
			}
			c.Append(v)
		}
		return c, nil
	case yaml.ScalarNode:
		return im.yamlScalar(n)
	default:
		return nil, fmt.Errorf("%w: line %d: unexpected node kind %d", ErrSyntax, n.Line, n.Kind)
	}
}

func (im *importer) yamlScalar(n *yaml.Node) (psb.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return psb.Null{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, n.Line, err)
		}
		return psb.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, n.Line, err)
		}
		return psb.Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, n.Line, err)
		}
		return floatLiteral(n.Value, f), nil
	case yamlDoubleTag:
		d, err := double(n.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return d, nil
	case yamlBinaryTag:
		data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(n.Value), ""))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSyntax, n.Line, err)
		}
		return psb.NewResource(data), nil
	case "!!str":
		return im.text(n.Value)
	default:
		return nil, fmt.Errorf("%w: line %d: unsupported tag %s", ErrSyntax, n.Line, n.Tag)
	}
}
