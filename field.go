package docbind

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/internal/typedesc"
	"github.com/reoring/docbind/shape"
)

// synthesizeFields builds the field converters of c. It runs with the
// registry write lock held; nested record types are resolved through
// r.codecLocked so they share the in-flight synthesis state.
func (r *Registry) synthesizeFields(c *Codec, desc *typedesc.Descriptor, s *synthesis) ([]fieldCodec, error) {
	out := make([]fieldCodec, 0, len(desc.Fields))
	for _, f := range desc.Fields {
		if f.Identity {
			if !validIdentity(f.Type) {
				return nil, &Error{
					Code:     CodeInvalidIdentityField,
					Path:     "/" + f.Name,
					Type:     c.typ.String(),
					Document: c.name,
					Message:  fmt.Sprintf("field %s has type %s, want document.ID or *document.ID", f.GoName, f.Type),
				}
			}
			out = append(out, fieldCodec{field: f, shape: shape.Identity})
			continue
		}
		sh, err := shape.Classify(f.Type)
		if err != nil {
			return nil, &Error{Code: CodeUnsupportedShape, Path: "/" + f.Name, Type: c.typ.String(), Document: c.name, Cause: err}
		}
		dec, err := r.decoderFor(f.Type, c, s)
		if err != nil {
			return nil, inDocument(atPath(err, f.Name), c.name)
		}
		out = append(out, fieldCodec{field: f, shape: sh, decode: dec})
	}
	return out, nil
}

func validIdentity(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return shape.IsIdentifier(t)
}

// decoderFor returns the converter for a value of type t appearing inside
// record owner. Container and optional types recurse on their element type.
func (r *Registry) decoderFor(t reflect.Type, owner *Codec, s *synthesis) (decodeFunc, error) {
	sh, err := shape.Classify(t)
	if err != nil {
		return nil, &Error{Code: CodeUnsupportedShape, Type: t.String(), Cause: err}
	}
	switch sh {
	case shape.Enumeration:
		return enumDecoder(t), nil

	case shape.Primitive:
		return func(v any) (reflect.Value, error) { return coerce(v, t) }, nil

	case shape.Optional:
		inner, err := r.decoderFor(t.Elem(), owner, s)
		if err != nil {
			return nil, err
		}
		return func(v any) (reflect.Value, error) {
			if v == nil {
				return reflect.Zero(t), nil
			}
			iv, err := inner(v)
			if err != nil {
				return reflect.Value{}, err
			}
			p := reflect.New(t.Elem())
			p.Elem().Set(iv)
			return p, nil
		}, nil

	case shape.NestedRecord:
		nc, err := r.codecLocked(t, s)
		if err != nil {
			return nil, err
		}
		owner.addNested(nc)
		return func(v any) (reflect.Value, error) {
			doc, err := asDocument(v, nc.name)
			if err == nil {
				var rv reflect.Value
				if rv, err = nc.decode(doc); err == nil {
					return rv, nil
				}
			}
			return reflect.Value{}, &Error{Code: CodeNestedRecordDecode, Type: t.String(), Message: "decode " + nc.name, Cause: err}
		}, nil

	case shape.Sequence:
		elem, err := r.decoderFor(t.Elem(), owner, s)
		if err != nil {
			return nil, err
		}
		return sequenceDecoder(t, elem), nil

	case shape.Set:
		key, err := r.decoderFor(t.Key(), owner, s)
		if err != nil {
			return nil, err
		}
		return setDecoder(t, key), nil

	case shape.Mapping:
		if t.Key().Kind() != reflect.String {
			return nil, &Error{Code: CodeUnsupportedMapKeyType, Type: t.String(), Message: fmt.Sprintf("map key %s is not a string", t.Key())}
		}
		elem, err := r.decoderFor(t.Elem(), owner, s)
		if err != nil {
			return nil, err
		}
		return mappingDecoder(t, elem), nil
	}
	return nil, &Error{Code: CodeUnsupportedShape, Type: t.String(), Message: "shape " + sh.String()}
}

func enumDecoder(t reflect.Type) decodeFunc {
	values := shape.EnumValues(t)
	return func(v any) (reflect.Value, error) {
		ord, ok := asInt(v)
		if !ok || ord < 0 || ord >= int64(len(values)) {
			return reflect.Value{}, &Error{
				Code:    CodeUnknownEnumOrdinal,
				Type:    t.String(),
				Message: fmt.Sprintf("ordinal %v out of range [0,%d)", v, len(values)),
			}
		}
		ev := reflect.ValueOf(values[ord])
		if !ev.IsValid() || !ev.Type().ConvertibleTo(t) {
			return reflect.Value{}, &Error{Code: CodeUnknownEnumOrdinal, Type: t.String(), Message: fmt.Sprintf("constant %v is not a %s", values[ord], t)}
		}
		return ev.Convert(t), nil
	}
}

func sequenceDecoder(t reflect.Type, elem decodeFunc) decodeFunc {
	return func(v any) (reflect.Value, error) {
		src, err := elements(v, t)
		if err != nil {
			return reflect.Value{}, err
		}
		var out reflect.Value
		if t.Kind() == reflect.Array {
			if len(src) != t.Len() {
				return reflect.Value{}, &Error{Code: CodeTypeMismatch, Type: t.String(), Message: fmt.Sprintf("got %d elements, want %d", len(src), t.Len())}
			}
			out = reflect.New(t).Elem()
		} else {
			out = reflect.MakeSlice(t, len(src), len(src))
		}
		for i, e := range src {
			if e == nil {
				continue
			}
			ev, err := elem(e)
			if err != nil {
				return reflect.Value{}, atPath(err, strconv.Itoa(i))
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	}
}

func setDecoder(t reflect.Type, key decodeFunc) decodeFunc {
	present := reflect.ValueOf(struct{}{})
	return func(v any) (reflect.Value, error) {
		src, err := elements(v, t)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.MakeMapWithSize(t, len(src))
		for i, e := range src {
			var kv reflect.Value
			if e == nil {
				kv = reflect.Zero(t.Key())
			} else if kv, err = key(e); err != nil {
				return reflect.Value{}, atPath(err, strconv.Itoa(i))
			}
			out.SetMapIndex(kv, present)
		}
		return out, nil
	}
}

func mappingDecoder(t reflect.Type, elem decodeFunc) decodeFunc {
	return func(v any) (reflect.Value, error) {
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
			return reflect.Value{}, &Error{Code: CodeTypeMismatch, Type: t.String(), Message: fmt.Sprintf("expected mapping, got %T", v)}
		}
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			ev := reflect.Zero(t.Elem())
			if e := iter.Value().Interface(); e != nil {
				var err error
				if ev, err = elem(e); err != nil {
					return reflect.Value{}, atPath(err, k)
				}
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
		}
		return out, nil
	}
}

// elements lists the members of a stored sequence or set. Besides the
// canonical []any and document.Set it accepts any Go slice or array, and the
// keys of a map for sets.
func elements(v any, t reflect.Type) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case document.Set:
		return x, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	case reflect.Map:
		if t.Kind() == reflect.Map {
			out := make([]any, 0, rv.Len())
			for _, k := range rv.MapKeys() {
				out = append(out, k.Interface())
			}
			return out, nil
		}
	}
	return nil, &Error{Code: CodeTypeMismatch, Type: t.String(), Message: fmt.Sprintf("expected collection, got %T", v)}
}
