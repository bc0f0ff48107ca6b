// Package document holds the schema-less representation exchanged with a
// document store: a named, ordered mapping from string keys to field values.
//
// A field value is one of:
//
//   - nil (absent/null)
//   - a primitive: bool, any int/uint width, float32/float64, string, []byte,
//     time.Time, ID, or json.Number as produced by the JSON decoder
//   - *Document (nested document)
//   - []any (sequence)
//   - Set (set of values)
//   - map[string]any (mapping)
//
// Documents carry no reference to the Go type that produced them beyond Name.
package document

import "slices"

// Reserved keys used by the JSON and YAML wire formats.
const (
	KeyName = "@name"
	KeyID   = "@id"
	KeySet  = "@set"
)

// Document is a named record of ordered, uniquely keyed fields.
// The zero value is an empty, unnamed document ready for use.
type Document struct {
	// Name identifies the record type (class) the document represents.
	Name string
	// ID is the store-assigned identity; zero until the document is saved.
	ID ID

	keys   []string
	values map[string]any
}

// New returns an empty document with the given name.
func New(name string) *Document {
	return &Document{Name: name}
}

// Set stores v under key. Re-setting an existing key keeps its position.
func (d *Document) Set(key string, v any) *Document {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
	return d
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	if d == nil || d.values == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// Has reports whether key is present (possibly with a nil value).
func (d *Document) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Delete removes key if present.
func (d *Document) Delete(key string) {
	if d == nil || d.values == nil {
		return
	}
	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	if i := slices.Index(d.keys, key); i >= 0 {
		d.keys = slices.Delete(d.keys, i, i+1)
	}
}

// Keys returns the field names in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	return slices.Clone(d.keys)
}

// Len returns the number of fields.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Range calls fn for each field in order until fn returns false.
func (d *Document) Range(fn func(key string, v any) bool) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		if !fn(k, d.values[k]) {
			return
		}
	}
}

// Clone returns a deep copy of d. Nested documents, sequences, sets and
// mappings are copied; primitive values are shared.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{Name: d.Name, ID: d.ID}
	for _, k := range d.keys {
		out.Set(k, cloneValue(d.values[k]))
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case *Document:
		return x.Clone()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case Set:
		out := make(Set, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case []byte:
		return slices.Clone(x)
	default:
		return v
	}
}
