package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	j "github.com/goccy/go-json"
)

// ErrMalformed is returned when wire data does not describe a document.
var ErrMalformed = errors.New("document: malformed input")

// MarshalJSON renders d as a JSON object with the reserved @name and @id keys
// first, followed by the fields in insertion order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeDocument(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces d with the document encoded in b. Field order is
// preserved and numbers are kept as json.Number.
func (d *Document) UnmarshalJSON(b []byte) error {
	out, err := DecodeJSON(bytes.NewReader(b))
	if err != nil {
		return err
	}
	*d = *out
	return nil
}

// DecodeJSON reads a single document from r.
func DecodeJSON(r io.Reader) (*Document, error) {
	dec := j.NewDecoder(r)
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(j.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected object", ErrMalformed)
	}
	v, err := readObject(dec)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(*Document)
	if !ok {
		return nil, fmt.Errorf("%w: object has no %s", ErrMalformed, KeyName)
	}
	return doc, nil
}

func writeDocument(buf *bytes.Buffer, d *Document) error {
	if d == nil {
		buf.WriteString("null")
		return nil
	}
	buf.WriteByte('{')
	writeKey(buf, KeyName)
	if err := writeScalar(buf, d.Name); err != nil {
		return err
	}
	if !d.ID.IsZero() {
		buf.WriteByte(',')
		writeKey(buf, KeyID)
		if err := writeScalar(buf, d.ID.String()); err != nil {
			return err
		}
	}
	var err error
	d.Range(func(k string, v any) bool {
		buf.WriteByte(',')
		writeKey(buf, escapeKey(k))
		err = writeValue(buf, v)
		return err == nil
	})
	if err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func writeKey(buf *bytes.Buffer, k string) {
	b, _ := j.Marshal(k)
	buf.Write(b)
	buf.WriteByte(':')
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case *Document:
		return writeDocument(buf, x)
	case []any:
		return writeArray(buf, x)
	case Set:
		buf.WriteByte('{')
		writeKey(buf, KeySet)
		if err := writeArray(buf, x); err != nil {
			return err
		}
		buf.WriteByte('}')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeKey(buf, escapeKey(k))
			if err := writeValue(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case time.Time:
		return writeScalar(buf, formatTime(x))
	case ID:
		return writeScalar(buf, x.String())
	default:
		return writeScalar(buf, v)
	}
	return nil
}

func writeArray(buf *bytes.Buffer, xs []any) error {
	buf.WriteByte('[')
	for i, e := range xs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(buf, e); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeScalar(buf *bytes.Buffer, v any) error {
	b, err := j.Marshal(v)
	if err != nil {
		return fmt.Errorf("document: encode %T: %w", v, err)
	}
	buf.Write(b)
	return nil
}

// readValue consumes one value whose first token is tok.
func readValue(dec *j.Decoder, tok j.Token) (any, error) {
	switch v := tok.(type) {
	case j.Delim:
		switch v {
		case '{':
			return readObject(dec)
		case '[':
			return readArray(dec)
		}
		return nil, fmt.Errorf("%w: unexpected %q", ErrMalformed, v)
	case string, bool, j.Number, nil:
		return v, nil
	case float64:
		return v, nil
	}
	return nil, fmt.Errorf("%w: unexpected token %T", ErrMalformed, tok)
}

func readArray(dec *j.Decoder) ([]any, error) {
	out := []any{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(j.Delim); ok && d == ']' {
			return out, nil
		}
		v, err := readValue(dec, tok)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// readObject returns a *Document when the object carries @name, a Set when it
// is a lone @set wrapper, and map[string]any otherwise.
func readObject(dec *j.Decoder) (any, error) {
	var (
		keys   []string
		values = map[string]any{}
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(j.Delim); ok && d == '}' {
			break
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: object key must be a string", ErrMalformed)
		}
		vt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		v, err := readValue(dec, vt)
		if err != nil {
			return nil, err
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = v
	}
	return assemble(keys, values)
}

// assemble turns a decoded key/value listing into the matching field value.
// It is shared by the JSON and YAML decoders.
func assemble(keys []string, values map[string]any) (any, error) {
	if raw, ok := values[KeySet]; ok && len(keys) == 1 {
		xs, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s must hold an array", ErrMalformed, KeySet)
		}
		return Set(xs), nil
	}
	rawName, named := values[KeyName]
	if !named {
		return unescapeKeys(keys, values), nil
	}
	name, ok := rawName.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string", ErrMalformed, KeyName)
	}
	doc := New(name)
	for _, k := range keys {
		switch k {
		case KeyName:
		case KeyID:
			s, ok := values[k].(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a string", ErrMalformed, KeyID)
			}
			id, err := ParseID(s)
			if err != nil {
				return nil, err
			}
			doc.ID = id
		default:
			doc.Set(unescapeKey(k), values[k])
		}
	}
	return doc, nil
}

// Field and mapping keys starting with '@' are written with one more '@' so
// they never collide with the reserved keys. Readers strip it again.
func escapeKey(k string) string {
	if strings.HasPrefix(k, "@") {
		return "@" + k
	}
	return k
}

func unescapeKey(k string) string {
	if strings.HasPrefix(k, "@@") {
		return k[1:]
	}
	return k
}

func unescapeKeys(keys []string, values map[string]any) map[string]any {
	escaped := false
	for _, k := range keys {
		if strings.HasPrefix(k, "@@") {
			escaped = true
			break
		}
	}
	if !escaped {
		return values
	}
	out := make(map[string]any, len(values))
	for _, k := range keys {
		out[unescapeKey(k)] = values[k]
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
