package docbind

import (
	"fmt"
	"reflect"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/internal/typedesc"
	"github.com/reoring/docbind/shape"
)

// decodeFunc converts one stored field value into a value of the field's
// declared type.
type decodeFunc func(v any) (reflect.Value, error)

// fieldCodec is the synthesized converter for one record field.
type fieldCodec struct {
	field  typedesc.Field
	shape  shape.Shape
	decode decodeFunc // nil for identity fields
}

// Codec converts documents into values of one record type.
//
// A Codec is created as an empty cell when its type is first seen and its
// field converters are bound before the registry publishes it. Recursive
// references taken during synthesis point at the same cell, which is how
// self- and mutually-referential record types are built without infinite
// recursion. Published codecs are immutable and safe for concurrent use.
type Codec struct {
	name   string
	typ    reflect.Type
	fields []fieldCodec
	nested []*Codec
}

// FieldInfo describes one synthesized field converter.
type FieldInfo struct {
	Name  string
	Shape shape.Shape
	Type  reflect.Type
}

// Name returns the external (document) name.
func (c *Codec) Name() string { return c.name }

// Type returns the record type the codec produces.
func (c *Codec) Type() reflect.Type { return c.typ }

// Fields lists the record fields in declaration order.
func (c *Codec) Fields() []FieldInfo {
	out := make([]FieldInfo, len(c.fields))
	for i, f := range c.fields {
		out[i] = FieldInfo{Name: f.field.Name, Shape: f.shape, Type: f.field.Type}
	}
	return out
}

// Nested returns the codecs of record types referenced directly by c's
// fields, including through optionals and containers.
func (c *Codec) Nested() []*Codec {
	return append([]*Codec(nil), c.nested...)
}

// Decode converts doc into a value of c.Type(). The document name is not
// checked; use Registry.Decode to dispatch on it.
func (c *Codec) Decode(doc *document.Document) (any, error) {
	rv, err := c.decode(doc)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

func (c *Codec) decode(doc *document.Document) (reflect.Value, error) {
	if doc == nil {
		return reflect.Value{}, &Error{Code: CodeTypeMismatch, Type: c.typ.String(), Document: c.name, Message: "nil document"}
	}
	out := reflect.New(c.typ).Elem()
	for _, fc := range c.fields {
		dst := out.FieldByIndex(fc.field.Index)
		if fc.shape == shape.Identity {
			setIdentity(dst, doc.ID)
			continue
		}
		raw, ok := doc.Get(fc.field.Name)
		if !ok || raw == nil {
			// absent and null fields keep the zero value; optionals are nil
			continue
		}
		v, err := fc.decode(raw)
		if err != nil {
			err = atPath(err, fc.field.Name)
			return reflect.Value{}, inDocument(err, c.name)
		}
		dst.Set(v)
	}
	return out, nil
}

// IdentityOf returns the identity field of v, a value or pointer of the
// codec's type. ok is false when the type has no identity field or the field
// is unset.
func (c *Codec) IdentityOf(v any) (id document.ID, ok bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return id, false
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Type() != c.typ {
		return id, false
	}
	for _, fc := range c.fields {
		if fc.shape != shape.Identity {
			continue
		}
		f := rv.FieldByIndex(fc.field.Index)
		if f.Kind() == reflect.Pointer {
			if f.IsNil() {
				return id, false
			}
			f = f.Elem()
		}
		id = f.Interface().(document.ID)
		return id, !id.IsZero()
	}
	return id, false
}

// setIdentity copies the document's intrinsic identifier into an identity
// field of type document.ID or *document.ID.
func setIdentity(dst reflect.Value, id document.ID) {
	if dst.Kind() == reflect.Pointer {
		if id.IsZero() {
			dst.Set(reflect.Zero(dst.Type()))
			return
		}
		p := reflect.New(dst.Type().Elem())
		p.Elem().Set(reflect.ValueOf(id))
		dst.Set(p)
		return
	}
	dst.Set(reflect.ValueOf(id))
}

// asDocument accepts a nested document value as stored. Plain mappings are
// accepted for stores that drop the nested @name key.
func asDocument(v any, name string) (*document.Document, error) {
	switch x := v.(type) {
	case *document.Document:
		return x, nil
	case map[string]any:
		d := document.New(name)
		for k, e := range x {
			d.Set(k, e)
		}
		return d, nil
	}
	return nil, &Error{Code: CodeTypeMismatch, Message: fmt.Sprintf("expected nested document, got %T", v)}
}
