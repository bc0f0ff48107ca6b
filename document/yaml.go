package document

import (
	"encoding/base64"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// MarshalYAML renders d as an ordered YAML mapping using the same reserved
// keys as the JSON form.
func (d *Document) MarshalYAML() (any, error) {
	return documentNode(d)
}

// UnmarshalYAML replaces d with the document described by n.
func (d *Document) UnmarshalYAML(n *yaml.Node) error {
	v, err := fromNode(n)
	if err != nil {
		return err
	}
	doc, ok := v.(*Document)
	if !ok {
		return fmt.Errorf("%w: mapping has no %s", ErrMalformed, KeyName)
	}
	*d = *doc
	return nil
}

func documentNode(d *Document) (*yaml.Node, error) {
	if d == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}
	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	n.Content = append(n.Content, strNode(KeyName), strNode(d.Name))
	if !d.ID.IsZero() {
		n.Content = append(n.Content, strNode(KeyID), strNode(d.ID.String()))
	}
	var err error
	d.Range(func(k string, v any) bool {
		var vn *yaml.Node
		vn, err = valueNode(v)
		if err != nil {
			return false
		}
		n.Content = append(n.Content, strNode(escapeKey(k)), vn)
		return true
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func valueNode(v any) (*yaml.Node, error) {
	switch x := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case *Document:
		return documentNode(x)
	case []any:
		return seqNode(x)
	case Set:
		seq, err := seqNode(x)
		if err != nil {
			return nil, err
		}
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: []*yaml.Node{strNode(KeySet), seq}}, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range keys {
			vn, err := valueNode(x[k])
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, strNode(escapeKey(k)), vn)
		}
		return n, nil
	case time.Time:
		return strNode(formatTime(x)), nil
	case ID:
		return strNode(x.String()), nil
	case []byte:
		return strNode(base64.StdEncoding.EncodeToString(x)), nil
	case textNumber:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: x.String()}, nil
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, fmt.Errorf("document: encode %T: %w", v, err)
	}
	return n, nil
}

// textNumber matches json.Number as produced by the JSON decoder.
type textNumber interface {
	String() string
	Float64() (float64, error)
	Int64() (int64, error)
}

func seqNode(xs []any) (*yaml.Node, error) {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, e := range xs {
		en, err := valueNode(e)
		if err != nil {
			return nil, err
		}
		n.Content = append(n.Content, en)
	}
	return n, nil
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func fromNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromNode(n.Content[0])
	case yaml.AliasNode:
		return fromNode(n.Alias)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		var keys []string
		values := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			var k string
			if err := n.Content[i].Decode(&k); err != nil {
				return nil, fmt.Errorf("%w: mapping key: %v", ErrMalformed, err)
			}
			v, err := fromNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			if _, dup := values[k]; !dup {
				keys = append(keys, k)
			}
			values[k] = v
		}
		return assemble(keys, values)
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: unexpected yaml node kind %d", ErrMalformed, n.Kind)
}
