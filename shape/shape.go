// Package shape classifies Go types into the closed set of structural shapes
// the codec knows how to convert.
package shape

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/reoring/docbind/document"
)

// Shape is the structural classification of a field type.
type Shape int

const (
	_ Shape = iota // zero value is "unclassified"

	Primitive
	Optional
	Enumeration
	NestedRecord
	Sequence
	Set
	Mapping
	Identity

	// Total is the number of shapes defined.
	Total = int(iota)
)

var names = [...]string{
	"unclassified", "primitive", "optional", "enumeration", "record",
	"sequence", "set", "mapping", "identity",
}

func (s Shape) String() string {
	if s < 0 || int(s) >= len(names) {
		return fmt.Sprintf("Shape(%d)", int(s))
	}
	return names[s]
}

// ErrUnsupported is returned for types with no shape (chan, func, interface,
// complex numbers, unsafe pointers).
var ErrUnsupported = errors.New("shape: unsupported type")

// Enum is implemented by enumeration types. EnumValues lists every constant
// of the type; a constant's position in the list is its stored ordinal.
// It must be callable on the zero value.
type Enum interface {
	EnumValues() []any
}

var (
	enumType  = reflect.TypeFor[Enum]()
	timeType  = reflect.TypeFor[time.Time]()
	idType    = reflect.TypeFor[document.ID]()
	emptyType = reflect.TypeFor[struct{}]()
)

var cache sync.Map // reflect.Type -> Shape

// Classify returns the shape of t. Checks run in precedence order:
// enumeration, primitive, optional, mapping, set, sequence, record.
// Results are cached per type.
func Classify(t reflect.Type) (Shape, error) {
	if t == nil {
		return 0, fmt.Errorf("%w: nil type", ErrUnsupported)
	}
	if v, ok := cache.Load(t); ok {
		return v.(Shape), nil
	}
	s := classify(t)
	if s == 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, t)
	}
	cache.Store(t, s)
	return s, nil
}

func classify(t reflect.Type) Shape {
	switch {
	case IsEnum(t):
		return Enumeration
	case IsPrimitive(t):
		return Primitive
	case t.Kind() == reflect.Pointer:
		return Optional
	case t.Kind() == reflect.Map && t.Elem() != emptyType:
		return Mapping
	case t.Kind() == reflect.Map:
		return Set
	case t.Kind() == reflect.Slice || t.Kind() == reflect.Array:
		return Sequence
	case t.Kind() == reflect.Struct:
		return NestedRecord
	}
	return 0
}

// IsEnum reports whether t (by value or pointer receiver) implements Enum.
// Pointer types never count: *E is an optional enumeration.
func IsEnum(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return false
	}
	return t.Implements(enumType) || reflect.PointerTo(t).Implements(enumType)
}

// IsPrimitive reports whether values of t are stored as-is.
func IsPrimitive(t reflect.Type) bool {
	switch t {
	case timeType, idType:
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	}
	return false
}

// IsIdentifier reports whether t is the store identifier type.
func IsIdentifier(t reflect.Type) bool { return t == idType }

// EnumValues returns the constants of enumeration type t.
func EnumValues(t reflect.Type) []any {
	v := reflect.New(t).Elem()
	if t.Implements(enumType) {
		return v.Interface().(Enum).EnumValues()
	}
	return v.Addr().Interface().(Enum).EnumValues()
}
