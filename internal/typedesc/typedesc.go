// Package typedesc derives record descriptors (ordered field lists) from Go
// struct types. Descriptors are computed once per type and cached.
package typedesc

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// TagName is the struct tag consulted before the json tag.
const TagName = "doc"

// ErrNotRecord is returned for types that are not structs.
var ErrNotRecord = errors.New("typedesc: not a record type")

// Descriptor is the ordered field list of a record type.
type Descriptor struct {
	Type   reflect.Type
	Fields []Field
}

// Field describes one record field.
type Field struct {
	// Name is the external key used in documents.
	Name string
	// GoName is the struct field name, for diagnostics.
	GoName string
	// Index is the reflect index path (more than one element for fields
	// promoted from embedded structs).
	Index []int
	Type  reflect.Type
	// Identity marks the field holding the store-assigned identifier.
	Identity bool
}

// IdentityField returns the identity-marked field, if any.
func (d *Descriptor) IdentityField() (Field, bool) {
	for _, f := range d.Fields {
		if f.Identity {
			return f, true
		}
	}
	return Field{}, false
}

var cache sync.Map // reflect.Type -> *Descriptor

// Of returns the descriptor for struct type t (pointers are dereferenced).
func Of(t reflect.Type) (*Descriptor, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v", ErrNotRecord, t)
	}
	if d, ok := cache.Load(t); ok {
		return d.(*Descriptor), nil
	}
	d := &Descriptor{Type: t}
	seen := map[string]bool{}
	collect(t, nil, d, seen)
	actual, _ := cache.LoadOrStore(t, d)
	return actual.(*Descriptor), nil
}

// collect appends t's fields to d. Direct fields are visited before fields
// promoted from embedded structs so that outer fields shadow promoted ones.
func collect(t reflect.Type, prefix []int, d *Descriptor, seen map[string]bool) {
	var embedded [][]int
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		name, opts, tagged := ResolveKey(sf)
		if name == "-" {
			continue
		}
		if sf.Anonymous && !tagged && sf.Type.Kind() == reflect.Struct {
			embedded = append(embedded, index)
			continue
		}
		if !sf.IsExported() || seen[name] {
			continue
		}
		seen[name] = true
		d.Fields = append(d.Fields, Field{
			Name:     name,
			GoName:   sf.Name,
			Index:    index,
			Type:     sf.Type,
			Identity: opts.Has("id"),
		})
	}
	for _, index := range embedded {
		collect(t.FieldByIndex(index[len(prefix):]).Type, index, d, seen)
	}
}

// Options are the comma-separated flags following the key in a doc tag.
type Options []string

func (o Options) Has(opt string) bool {
	for _, s := range o {
		if s == opt {
			return true
		}
	}
	return false
}

// ResolveKey applies the key rule for a struct field.
// Priority: doc tag name > json tag name > field name; "-" disables the field.
// tagged reports whether an explicit name came from a tag.
func ResolveKey(sf reflect.StructField) (name string, opts Options, tagged bool) {
	if dt, ok := sf.Tag.Lookup(TagName); ok {
		if dt == "-" {
			return "-", nil, true
		}
		parts := strings.Split(dt, ",")
		for _, p := range parts[1:] {
			opts = append(opts, strings.TrimSpace(p))
		}
		if n := strings.TrimSpace(parts[0]); n != "" {
			return n, opts, true
		}
	}
	if jt := sf.Tag.Get("json"); jt != "" {
		if jt == "-" {
			return "-", opts, true
		}
		if i := strings.IndexByte(jt, ','); i >= 0 {
			jt = jt[:i]
		}
		if jt != "" {
			return jt, opts, true
		}
	}
	return sf.Name, opts, false
}
