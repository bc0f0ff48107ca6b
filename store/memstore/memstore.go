// Package memstore is an in-memory store.Store. Documents are kept in
// insertion order per class and copied on the way in and out.
package memstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/query"
)

// Store is safe for concurrent use.
type Store struct {
	log *slog.Logger

	mu      sync.RWMutex
	classes map[string]store.Class
	order   map[string][]document.ID // class -> ids in insertion order
	docs    map[document.ID]*document.Document
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for store events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		log:     slog.New(slog.DiscardHandler),
		classes: map[string]store.Class{},
		order:   map[string][]document.ID{},
		docs:    map[document.ID]*document.Document{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) DeclareType(_ context.Context, c store.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.classes[c.Name]; ok {
		if store.SameDefinition(cur, c) {
			return nil
		}
		return fmt.Errorf("declare %s: %w", c.Name, store.ErrClassExists)
	}
	c.Fields = slices.Clone(c.Fields)
	s.classes[c.Name] = c
	s.log.Debug("memstore: declared class", slog.String("class", c.Name), slog.Int("fields", len(c.Fields)))
	return nil
}

func (s *Store) DropType(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.classes[name]; !ok {
		return fmt.Errorf("drop %s: %w", name, store.ErrUnknownClass)
	}
	for _, id := range s.order[name] {
		delete(s.docs, id)
	}
	delete(s.order, name)
	delete(s.classes, name)
	s.log.Debug("memstore: dropped class", slog.String("class", name))
	return nil
}

func (s *Store) Classes(context.Context) ([]store.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Class, 0, len(s.classes))
	for _, c := range s.classes {
		c.Fields = slices.Clone(c.Fields)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Save(_ context.Context, doc *document.Document) (document.ID, error) {
	if doc == nil {
		return document.ID{}, fmt.Errorf("save: nil document")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.classes[doc.Name]; !ok {
		return document.ID{}, fmt.Errorf("save %s: %w", doc.Name, store.ErrUnknownClass)
	}
	cp := doc.Clone()
	if cp.ID.IsZero() {
		cp.ID = document.NewID()
	}
	if prev, ok := s.docs[cp.ID]; ok {
		if prev.Name != cp.Name {
			s.order[prev.Name] = slices.DeleteFunc(s.order[prev.Name], func(id document.ID) bool { return id == cp.ID })
			s.order[cp.Name] = append(s.order[cp.Name], cp.ID)
		}
	} else {
		s.order[cp.Name] = append(s.order[cp.Name], cp.ID)
	}
	s.docs[cp.ID] = cp
	return cp.ID, nil
}

func (s *Store) Fetch(_ context.Context, id document.ID) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("fetch %s: %w", id, store.ErrNotFound)
	}
	return d.Clone(), nil
}

func (s *Store) Query(_ context.Context, text string) ([]*document.Document, error) {
	q, err := query.Parse(text)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.classes[q.Class]; !ok {
		return nil, fmt.Errorf("query %s: %w", q.Class, store.ErrUnknownClass)
	}
	var out []*document.Document
	for _, id := range s.order[q.Class] {
		d := s.docs[id]
		if !q.Match(d) {
			continue
		}
		out = append(out, d.Clone())
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
