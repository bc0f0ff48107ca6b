// Package store defines the boundary between record codecs and a backing
// document store. Implementations live in the sub-packages memstore,
// boltstore, redisstore and pgstore.
package store

import (
	"context"
	"errors"
	"slices"

	"github.com/reoring/docbind"
	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/shape"
)

var (
	// ErrNotFound is returned by Fetch for an unknown identifier.
	ErrNotFound = errors.New("store: document not found")
	// ErrUnknownClass is returned when a document or query names a class
	// that was never declared.
	ErrUnknownClass = errors.New("store: unknown class")
	// ErrClassExists is returned when a class is redeclared with a
	// different definition.
	ErrClassExists = errors.New("store: class already declared")
)

// Store persists documents grouped into declared classes.
type Store interface {
	// Save stores doc under its class. A zero doc.ID is replaced by a fresh
	// identifier; a non-zero ID replaces the stored document.
	Save(ctx context.Context, doc *document.Document) (document.ID, error)
	Fetch(ctx context.Context, id document.ID) (*document.Document, error)
	// Query runs a query in the text form understood by store/query.
	Query(ctx context.Context, q string) ([]*document.Document, error)
	DeclareType(ctx context.Context, c Class) error
	// DropType removes a class and every document stored under it.
	DropType(ctx context.Context, name string) error
	// Classes lists the declared classes sorted by name.
	Classes(ctx context.Context) ([]Class, error)
}

// Class is the store-side declaration of a record type.
type Class struct {
	Name   string     `json:"name"`
	Fields []Property `json:"fields"`
}

// Property is one declared field of a class.
type Property struct {
	Name  string `json:"name"`
	Shape string `json:"shape"`
}

// ClassOf derives the class declaration for a registered codec.
func ClassOf(c *docbind.Codec) Class {
	fields := c.Fields()
	out := Class{Name: c.Name(), Fields: make([]Property, 0, len(fields))}
	for _, f := range fields {
		out.Fields = append(out.Fields, Property{Name: f.Name, Shape: f.Shape.String()})
	}
	return out
}

// Closure returns the class of c followed by the classes of every record type
// reachable from it, each once.
func Closure(c *docbind.Codec) []Class {
	var (
		out  []Class
		seen = map[*docbind.Codec]bool{}
		walk func(*docbind.Codec)
	)
	walk = func(c *docbind.Codec) {
		if seen[c] {
			return
		}
		seen[c] = true
		out = append(out, ClassOf(c))
		for _, n := range c.Nested() {
			walk(n)
		}
	}
	walk(c)
	return out
}

// SameDefinition reports whether a and b declare the same name and property
// set. Property order is ignored.
func SameDefinition(a, b Class) bool {
	if a.Name != b.Name || len(a.Fields) != len(b.Fields) {
		return false
	}
	as := slices.Clone(a.Fields)
	bs := slices.Clone(b.Fields)
	byName := func(x, y Property) int {
		switch {
		case x.Name < y.Name:
			return -1
		case x.Name > y.Name:
			return 1
		}
		return 0
	}
	slices.SortFunc(as, byName)
	slices.SortFunc(bs, byName)
	return slices.Equal(as, bs)
}

// Infer derives a class declaration from the fields of doc. It serves
// documents loaded without a registered Go type; a nil field is declared
// optional.
func Infer(doc *document.Document) Class {
	out := Class{Name: doc.Name, Fields: make([]Property, 0, doc.Len())}
	doc.Range(func(k string, v any) bool {
		s := shape.Primitive
		switch v.(type) {
		case nil:
			s = shape.Optional
		case *document.Document:
			s = shape.NestedRecord
		case []any:
			s = shape.Sequence
		case document.Set:
			s = shape.Set
		case map[string]any:
			s = shape.Mapping
		}
		out.Fields = append(out.Fields, Property{Name: k, Shape: s.String()})
		return true
	})
	return out
}
