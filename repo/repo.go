// Package repo offers a typed repository over a registry and a store.
package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/reoring/docbind"
	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/query"
)

// Repository stores values of record type T as documents of T's class.
type Repository[T any] struct {
	conv  docbind.Converter[T]
	store store.Store
}

// New registers T with reg and declares T's class and the class of every
// record type reachable from it in st.
func New[T any](ctx context.Context, reg *docbind.Registry, st store.Store) (*Repository[T], error) {
	conv, err := docbind.Register[T](reg)
	if err != nil {
		return nil, err
	}
	for _, c := range store.Closure(conv.Codec()) {
		if err := st.DeclareType(ctx, c); err != nil {
			return nil, fmt.Errorf("repo %s: %w", conv.Name(), err)
		}
	}
	return &Repository[T]{conv: conv, store: st}, nil
}

// Class returns the class name documents of T are stored under.
func (r *Repository[T]) Class() string { return r.conv.Name() }

// Select starts a query over T's class.
func (r *Repository[T]) Select() *query.Query { return query.Select(r.conv.Name()) }

// Save stores v. A value whose identity field is set replaces the stored
// document with that identity; otherwise the store assigns a new one.
func (r *Repository[T]) Save(ctx context.Context, v T) (document.ID, error) {
	doc, err := r.conv.Encode(v)
	if err != nil {
		return document.ID{}, err
	}
	if id, ok := r.conv.Codec().IdentityOf(v); ok {
		doc.ID = id
	}
	return r.store.Save(ctx, doc)
}

// Update replaces the document stored under id. It fails with
// store.ErrNotFound when nothing is stored there.
func (r *Repository[T]) Update(ctx context.Context, id document.ID, v T) error {
	if _, err := r.store.Fetch(ctx, id); err != nil {
		return err
	}
	doc, err := r.conv.Encode(v)
	if err != nil {
		return err
	}
	doc.ID = id
	_, err = r.store.Save(ctx, doc)
	return err
}

// Get loads the value stored under id.
func (r *Repository[T]) Get(ctx context.Context, id document.ID) (T, error) {
	doc, err := r.store.Fetch(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.conv.Decode(doc)
}

// Find returns the values matching the query tail where, for example
// "WHERE author = 'ann' LIMIT 10". An empty tail matches everything.
func (r *Repository[T]) Find(ctx context.Context, where string) ([]T, error) {
	text := "SELECT FROM " + r.conv.Name()
	if where = strings.TrimSpace(where); where != "" {
		text += " " + where
	}
	return r.run(ctx, text)
}

// FindQuery runs q, which must select T's class.
func (r *Repository[T]) FindQuery(ctx context.Context, q *query.Query) ([]T, error) {
	if q.Class != r.conv.Name() {
		return nil, fmt.Errorf("repo %s: query selects %s", r.conv.Name(), q.Class)
	}
	return r.run(ctx, q.String())
}

// All returns every stored value of T.
func (r *Repository[T]) All(ctx context.Context) ([]T, error) {
	return r.Find(ctx, "")
}

// Drop removes T's class and all of its documents from the store. Classes
// of nested record types are left in place.
func (r *Repository[T]) Drop(ctx context.Context) error {
	return r.store.DropType(ctx, r.conv.Name())
}

func (r *Repository[T]) run(ctx context.Context, text string) ([]T, error) {
	docs, err := r.store.Query(ctx, text)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := r.conv.Decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
