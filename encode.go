package docbind

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strconv"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/internal/typedesc"
	"github.com/reoring/docbind/naming"
	"github.com/reoring/docbind/shape"
)

// Encoder builds documents from record values. It needs no registration: the
// document name comes from the same Namer a Registry uses, so any document an
// Encoder sharing that Namer builds is decodable by the Registry once the
// record type is registered.
//
// Identity fields are never written; the store assigns identity.
type Encoder struct {
	namer naming.Namer
}

// NewEncoder returns an Encoder using n (naming.Simple when nil).
func NewEncoder(n naming.Namer) *Encoder {
	if n == nil {
		n = naming.Simple()
	}
	return &Encoder{namer: n}
}

var defaultEncoder = NewEncoder(nil)

// Encode converts v with the default naming function.
func Encode(v any) (*document.Document, error) {
	return defaultEncoder.Encode(v)
}

// Encode converts v, a struct or non-nil pointer to struct, into a document.
// Nil optional fields are omitted; empty containers are written as empty.
func (e *Encoder) Encode(v any) (*document.Document, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, newError(CodeUnencodableType, rv.Type().String(), "nil pointer")
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, newError(CodeUnencodableType, "<nil>", "nil value")
	}
	if rv.Kind() != reflect.Struct {
		return nil, newError(CodeUnencodableType, rv.Type().String(), "not a record type")
	}
	return e.encodeRecord(rv)
}

func (e *Encoder) encodeRecord(rv reflect.Value) (*document.Document, error) {
	t := rv.Type()
	name := naming.Resolve(e.namer, t)
	if name == "" {
		return nil, newError(CodeUnsupportedShape, t.String(), "record type has no external name")
	}
	desc, err := typedesc.Of(t)
	if err != nil {
		return nil, &Error{Code: CodeUnencodableType, Type: t.String(), Cause: err}
	}
	doc := document.New(name)
	for _, f := range desc.Fields {
		if f.Identity {
			if !validIdentity(f.Type) {
				return nil, &Error{
					Code:     CodeInvalidIdentityField,
					Path:     "/" + f.Name,
					Type:     t.String(),
					Document: name,
					Message:  fmt.Sprintf("field %s has type %s, want document.ID or *document.ID", f.GoName, f.Type),
				}
			}
			continue
		}
		v, omit, err := e.encodeValue(rv.FieldByIndex(f.Index))
		if err != nil {
			return nil, inDocument(atPath(err, f.Name), name)
		}
		if omit {
			continue
		}
		doc.Set(f.Name, v)
	}
	return doc, nil
}

// encodeValue converts one field value. omit is true for nil optionals.
func (e *Encoder) encodeValue(rv reflect.Value) (any, bool, error) {
	t := rv.Type()
	sh, err := shape.Classify(t)
	if err != nil {
		return nil, false, &Error{Code: CodeUnsupportedShape, Type: t.String(), Cause: err}
	}
	switch sh {
	case shape.Enumeration:
		ord, err := ordinal(rv)
		return ord, false, err

	case shape.Primitive:
		return canonical(rv), false, nil

	case shape.Optional:
		if rv.IsNil() {
			return nil, true, nil
		}
		return e.encodeValue(rv.Elem())

	case shape.NestedRecord:
		doc, err := e.encodeRecord(rv)
		if err != nil {
			return nil, false, err
		}
		return doc, false, nil

	case shape.Sequence:
		out := make([]any, rv.Len())
		for i := range out {
			v, _, err := e.encodeValue(rv.Index(i))
			if err != nil {
				return nil, false, atPath(err, strconv.Itoa(i))
			}
			out[i] = v
		}
		return out, false, nil

	case shape.Set:
		keys := sortedKeys(rv)
		out := make(document.Set, 0, len(keys))
		for i, k := range keys {
			v, _, err := e.encodeValue(k)
			if err != nil {
				return nil, false, atPath(err, strconv.Itoa(i))
			}
			out = append(out, v)
		}
		return out, false, nil

	case shape.Mapping:
		if t.Key().Kind() != reflect.String {
			return nil, false, &Error{Code: CodeUnsupportedMapKeyType, Type: t.String(), Message: fmt.Sprintf("map key %s is not a string", t.Key())}
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			v, _, err := e.encodeValue(iter.Value())
			if err != nil {
				return nil, false, atPath(err, k)
			}
			out[k] = v
		}
		return out, false, nil
	}
	return nil, false, newError(CodeUnsupportedShape, t.String(), "shape "+sh.String())
}

// ordinal returns the position of rv among its type's enumeration values.
func ordinal(rv reflect.Value) (int, error) {
	t := rv.Type()
	for i, c := range shape.EnumValues(t) {
		cv := reflect.ValueOf(c)
		if !cv.IsValid() || !cv.Type().ConvertibleTo(t) {
			continue
		}
		if cv.Convert(t).Equal(rv) {
			return i, nil
		}
	}
	return 0, &Error{Code: CodeUnknownEnumOrdinal, Type: t.String(), Message: fmt.Sprintf("%v is not a declared constant", rv.Interface())}
}

// sortedKeys returns set members in a stable order when the key kind is
// ordered, and in map order otherwise.
func sortedKeys(rv reflect.Value) []reflect.Value {
	keys := rv.MapKeys()
	switch rv.Type().Key().Kind() {
	case reflect.String:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.String(), b.String()) })
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Int(), b.Int()) })
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Uint(), b.Uint()) })
	case reflect.Float32, reflect.Float64:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Float(), b.Float()) })
	}
	return keys
}
