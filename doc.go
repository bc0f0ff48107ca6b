// Package docbind converts between Go record types (structs) and the
// schema-less documents of a document store.
//
// - A Registry synthesizes one Codec per record type from its struct fields and caches it
// - Documents are decoded by dispatching on their name (Registry.Decode)
// - An Encoder turns record values back into documents
// - A stable error model (Error with Code, Path, Document) via errors.Is on the Err* sentinels
//
// Field shapes:
//
//	primitive     bool, ints, uints, floats, string, []byte, time.Time, document.ID
//	enumeration   types implementing Enum; stored as the constant's ordinal
//	optional      *T; nil is omitted on encode, absent or null decodes to nil
//	record        any other named struct; stored as a nested document
//	sequence      []T and [N]T; stored as []any
//	set           map[K]struct{}; stored as document.Set
//	mapping       map[~string]T; stored as map[string]any
//
// A field tagged `doc:",id"` (type document.ID or *document.ID) receives the
// document's store-assigned identity on decode and is never written on encode.
//
// Typical usage:
//
//	reg := docbind.New()
//	blogs := docbind.MustRegister[Blog](reg)
//
//	doc, err := blogs.Encode(Blog{Author: "ann"})
//	v, err := reg.Decode(doc)          // dispatch on doc.Name
//	b, err := blogs.Decode(doc)        // typed
//
// Registration discovers nested record types, so registering the root of a
// record graph registers the whole graph, including self- and
// mutually-referential types.
package docbind

import "github.com/reoring/docbind/shape"

// Enum is implemented by enumeration types. See shape.Enum.
type Enum = shape.Enum
