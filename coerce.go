package docbind

import (
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/reoring/docbind/document"
)

// number is satisfied by json.Number as produced by the document JSON decoder.
type number interface {
	String() string
	Int64() (int64, error)
	Float64() (float64, error)
}

var (
	timeType  = reflect.TypeFor[time.Time]()
	idType    = reflect.TypeFor[document.ID]()
	bytesType = reflect.TypeFor[[]byte]()
)

// coerce converts a stored primitive v into a value of type t. Values that
// already have the declared representation pass through unchanged; other
// representations a store may hand back (another numeric width, json.Number,
// RFC3339 text for time.Time, base64 text for []byte, canonical text for
// document.ID) are converted.
func coerce(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == t || rv.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out, nil
	}
	switch t {
	case timeType:
		if s, ok := v.(string); ok {
			tm, err := parseRFC3339(s)
			if err != nil {
				return reflect.Value{}, mismatch(v, t, err)
			}
			return reflect.ValueOf(tm), nil
		}
		return reflect.Value{}, mismatch(v, t, nil)
	case idType:
		if s, ok := v.(string); ok {
			id, err := document.ParseID(s)
			if err != nil {
				return reflect.Value{}, mismatch(v, t, err)
			}
			return reflect.ValueOf(id), nil
		}
		return reflect.Value{}, mismatch(v, t, nil)
	}

	switch t.Kind() {
	case reflect.Bool:
		if rv.Kind() == reflect.Bool {
			return rv.Convert(t), nil
		}
	case reflect.String:
		if rv.Kind() == reflect.String {
			return rv.Convert(t), nil
		}
	case reflect.Slice: // []byte
		switch {
		case rv.Kind() == reflect.String:
			b, err := base64.StdEncoding.DecodeString(rv.String())
			if err != nil {
				return reflect.Value{}, mismatch(v, t, err)
			}
			return reflect.ValueOf(b).Convert(t), nil
		case rv.Type().ConvertibleTo(t) && rv.Kind() == reflect.Slice:
			return rv.Convert(t), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := asInt(v)
		if !ok {
			break
		}
		out := reflect.New(t).Elem()
		if out.OverflowInt(i) {
			return reflect.Value{}, mismatch(v, t, fmt.Errorf("overflow"))
		}
		out.SetInt(i)
		return out, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, ok := asUint(v)
		if !ok {
			break
		}
		out := reflect.New(t).Elem()
		if out.OverflowUint(u) {
			return reflect.Value{}, mismatch(v, t, fmt.Errorf("overflow"))
		}
		out.SetUint(u)
		return out, nil
	case reflect.Float32, reflect.Float64:
		f, ok := asFloat(v)
		if !ok {
			break
		}
		out := reflect.New(t).Elem()
		if out.OverflowFloat(f) {
			return reflect.Value{}, mismatch(v, t, fmt.Errorf("overflow"))
		}
		out.SetFloat(f)
		return out, nil
	}
	return reflect.Value{}, mismatch(v, t, nil)
}

func mismatch(v any, t reflect.Type, cause error) error {
	return &Error{
		Code:    CodeTypeMismatch,
		Type:    t.String(),
		Message: fmt.Sprintf("cannot use stored %T as %s", v, t),
		Cause:   cause,
	}
}

// asInt extracts an integral value from any numeric representation.
func asInt(v any) (int64, bool) {
	if n, ok := v.(number); ok {
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		return floatToInt(rv.Float())
	}
	return 0, false
}

func asUint(v any) (uint64, bool) {
	if n, ok := v.(number); ok {
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return u, true
		}
	}
	rv := reflect.ValueOf(v)
	if k := rv.Kind(); k >= reflect.Uint && k <= reflect.Uint64 {
		return rv.Uint(), true
	}
	i, ok := asInt(v)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

func asFloat(v any) (float64, bool) {
	if n, ok := v.(number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func parseRFC3339(s string) (time.Time, error) {
	// Accept RFC3339Nano (trailing zeros optional)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t2, nil
		}
		return time.Time{}, err
	}
	return t, nil
}

// canonical converts a primitive of a named type into its builtin form so
// stored documents only contain builtin Go types.
func canonical(rv reflect.Value) any {
	t := rv.Type()
	switch t {
	case timeType, idType:
		return rv.Interface()
	}
	if bt, ok := builtins[t.Kind()]; ok {
		if t == bt {
			return rv.Interface()
		}
		return rv.Convert(bt).Interface()
	}
	if t.Kind() == reflect.Slice {
		return rv.Convert(bytesType).Interface()
	}
	return rv.Interface()
}

var builtins = map[reflect.Kind]reflect.Type{
	reflect.Bool:    reflect.TypeFor[bool](),
	reflect.String:  reflect.TypeFor[string](),
	reflect.Int:     reflect.TypeFor[int](),
	reflect.Int8:    reflect.TypeFor[int8](),
	reflect.Int16:   reflect.TypeFor[int16](),
	reflect.Int32:   reflect.TypeFor[int32](),
	reflect.Int64:   reflect.TypeFor[int64](),
	reflect.Uint:    reflect.TypeFor[uint](),
	reflect.Uint8:   reflect.TypeFor[uint8](),
	reflect.Uint16:  reflect.TypeFor[uint16](),
	reflect.Uint32:  reflect.TypeFor[uint32](),
	reflect.Uint64:  reflect.TypeFor[uint64](),
	reflect.Float32: reflect.TypeFor[float32](),
	reflect.Float64: reflect.TypeFor[float64](),
}
