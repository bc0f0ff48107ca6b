package docbind

import (
	"fmt"
	"reflect"

	"github.com/reoring/docbind/document"
)

// Converter is the typed view of a registered Codec.
// T is a struct type or a pointer to one.
type Converter[T any] struct {
	codec *Codec
	enc   *Encoder
	ptr   bool
}

// Register registers T with r and returns its typed converter.
func Register[T any](r *Registry) (Converter[T], error) {
	rt := reflect.TypeFor[T]()
	c, err := r.Register(rt)
	if err != nil {
		return Converter[T]{}, err
	}
	return Converter[T]{codec: c, enc: r.enc, ptr: rt.Kind() == reflect.Pointer}, nil
}

// MustRegister is like Register but panics on error. Intended for
// package-level registration at startup.
func MustRegister[T any](r *Registry) Converter[T] {
	c, err := Register[T](r)
	if err != nil {
		panic(err)
	}
	return c
}

// Codec returns the untyped codec.
func (c Converter[T]) Codec() *Codec { return c.codec }

// Name returns the external name documents of T carry.
func (c Converter[T]) Name() string { return c.codec.name }

// Decode converts doc into a T. A document declaring another name fails with
// ErrTypeMismatch; an unnamed document is accepted.
func (c Converter[T]) Decode(doc *document.Document) (T, error) {
	var zero T
	if doc != nil && doc.Name != "" && doc.Name != c.codec.name {
		return zero, &Error{
			Code:     CodeTypeMismatch,
			Type:     c.codec.typ.String(),
			Document: doc.Name,
			Message:  fmt.Sprintf("document is not a %s", c.codec.name),
		}
	}
	rv, err := c.codec.decode(doc)
	if err != nil {
		return zero, err
	}
	return c.wrap(rv), nil
}

// Encode converts v into a document.
func (c Converter[T]) Encode(v T) (*document.Document, error) {
	return c.enc.Encode(v)
}

func (c Converter[T]) wrap(rv reflect.Value) T {
	if c.ptr {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		return p.Interface().(T)
	}
	return rv.Interface().(T)
}

// DecodeAs decodes doc through r (dispatching on doc.Name) and asserts the
// result is a T.
func DecodeAs[T any](r *Registry, doc *document.Document) (T, error) {
	var zero T
	v, err := r.Decode(doc)
	if err != nil {
		return zero, err
	}
	if out, ok := v.(T); ok {
		return out, nil
	}
	rv := reflect.ValueOf(v)
	if pt := reflect.TypeFor[T](); pt.Kind() == reflect.Pointer && pt.Elem() == rv.Type() {
		p := reflect.New(rv.Type())
		p.Elem().Set(rv)
		return p.Interface().(T), nil
	}
	return zero, &Error{
		Code:     CodeTypeMismatch,
		Type:     reflect.TypeFor[T]().String(),
		Document: doc.Name,
		Message:  fmt.Sprintf("document decodes to %s", rv.Type()),
	}
}
