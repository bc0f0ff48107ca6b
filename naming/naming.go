// Package naming maps Go record types to the external names documents carry.
//
// The name a registry stores a converter under and the name the encoder
// stamps on a document come from the same Namer, so a document built by the
// encoder is always resolvable by the registry that shares its Namer.
package naming

import (
	"path"
	"reflect"
	"strings"
)

// Namer derives the external name of a record type. It returns "" when the
// type cannot be named (anonymous structs, builtins).
type Namer interface {
	Name(t reflect.Type) string
}

// Named lets a record type choose its own external name. It takes precedence
// over any Namer. The method must work on the zero value.
type Named interface {
	DocumentName() string
}

// Func adapts a plain function to Namer.
type Func func(t reflect.Type) string

func (f Func) Name(t reflect.Type) string { return f(t) }

// Simple returns the default Namer: the unqualified type name with generic
// instantiation parameters removed ("Blog", "Page" for Page[int]).
func Simple() Namer { return simpleNamer{} }

// Qualified returns a Namer producing "pkg.Type" using the last element of
// the package path.
func Qualified() Namer { return qualifiedNamer{} }

type simpleNamer struct{}

func (simpleNamer) Name(t reflect.Type) string {
	t = base(t)
	if t == nil || t.PkgPath() == "" {
		return ""
	}
	return stripTypeParams(t.Name())
}

type qualifiedNamer struct{}

func (qualifiedNamer) Name(t reflect.Type) string {
	t = base(t)
	if t == nil || t.PkgPath() == "" {
		return ""
	}
	return path.Base(t.PkgPath()) + "." + stripTypeParams(t.Name())
}

var namedType = reflect.TypeFor[Named]()

// Resolve applies the Named override, then n. A nil n means Simple.
func Resolve(n Namer, t reflect.Type) string {
	t = base(t)
	if t == nil {
		return ""
	}
	if t.Implements(namedType) {
		if v, ok := reflect.Zero(t).Interface().(Named); ok {
			if name := v.DocumentName(); name != "" {
				return name
			}
		}
	}
	if n == nil {
		n = simpleNamer{}
	}
	return n.Name(t)
}

// base strips pointer indirections.
func base(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// stripTypeParams removes generic type instantiation suffix: "T[int,string]" -> "T".
func stripTypeParams(s string) string {
	if i := strings.IndexByte(s, '['); i >= 0 {
		return s[:i]
	}
	return s
}
