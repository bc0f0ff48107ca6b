package docbind

import (
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/internal/typedesc"
	"github.com/reoring/docbind/naming"
)

// Registry caches one Codec per record type, keyed by external name.
//
// Construct one with New at startup and pass it to the code that decodes
// documents. Reads (ResolveByName, Decode, Lookup) are lock-free against the
// latest published snapshot. Registration is serialized: the first
// registration of a type inserts a placeholder codec, synthesizes its field
// converters (registering nested record types on the way) and then publishes
// every codec created in that pass at once. A failed pass publishes nothing.
type Registry struct {
	namer naming.Namer
	log   *slog.Logger
	enc   *Encoder

	// mu serializes registration passes.
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// snapshot is an immutable view of the published codecs.
type snapshot struct {
	byName map[string]*Codec
	byType map[reflect.Type]*Codec
}

// synthesis is the in-flight state of one registration pass.
type synthesis struct {
	pending map[string]*Codec
	order   []*Codec
}

// Entry is a diagnostic view of one registry entry.
type Entry struct {
	Name string
	Type reflect.Type
}

// Option configures a Registry.
type Option func(*Registry)

// WithNamer sets the naming function. Defaults to naming.Simple.
func WithNamer(n naming.Namer) Option {
	return func(r *Registry) {
		if n != nil {
			r.namer = n
		}
	}
}

// WithLogger sets the logger used for registration events. Defaults to a
// logger that discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		namer: naming.Simple(),
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.enc = NewEncoder(r.namer)
	r.snap.Store(&snapshot{byName: map[string]*Codec{}, byType: map[reflect.Type]*Codec{}})
	return r
}

// Namer returns the naming function shared by decoding and encoding.
func (r *Registry) Namer() naming.Namer { return r.namer }

// Register returns the codec for record type t (a struct or pointer to
// struct), synthesizing it on first use. It is idempotent: repeated calls
// return the same *Codec. A different type already registered under the same
// external name fails with ErrConflictingRegistration.
func (r *Registry) Register(t reflect.Type) (*Codec, error) {
	t = deref(t)
	if t == nil {
		return nil, newError(CodeUnsupportedShape, "<nil>", "nil type")
	}
	if c, ok := r.snap.Load().byType[t]; ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := &synthesis{pending: map[string]*Codec{}}
	c, err := r.codecLocked(t, s)
	if err != nil {
		r.log.Debug("docbind: registration failed", slog.String("type", t.String()), slog.Any("error", err))
		return nil, err
	}
	r.publish(s)
	return c, nil
}

// codecLocked resolves or creates the codec for t. r.mu must be held.
func (r *Registry) codecLocked(t reflect.Type, s *synthesis) (*Codec, error) {
	name := naming.Resolve(r.namer, t)
	if name == "" {
		return nil, newError(CodeUnsupportedShape, t.String(), "record type has no external name")
	}
	cur := r.snap.Load()
	if c, ok := cur.byName[name]; ok {
		return r.verify(c, t)
	}
	if c, ok := s.pending[name]; ok {
		return r.verify(c, t)
	}

	desc, err := typedesc.Of(t)
	if err != nil {
		return nil, &Error{Code: CodeUnsupportedShape, Type: t.String(), Cause: err}
	}

	// Phase 1: the placeholder is visible to recursive lookups below.
	c := &Codec{name: name, typ: t}
	s.pending[name] = c
	s.order = append(s.order, c)

	// Phase 2: bind the field converters.
	fields, err := r.synthesizeFields(c, desc, s)
	if err != nil {
		return nil, err
	}
	c.fields = fields
	return c, nil
}

func (r *Registry) verify(c *Codec, t reflect.Type) (*Codec, error) {
	if c.typ != t {
		return nil, &Error{
			Code:     CodeConflictingRegistration,
			Type:     t.String(),
			Document: c.name,
			Message:  "name already registered for " + c.typ.String(),
		}
	}
	return c, nil
}

// publish swaps in a snapshot containing every codec of s. r.mu must be held.
func (r *Registry) publish(s *synthesis) {
	if len(s.order) == 0 {
		return
	}
	cur := r.snap.Load()
	next := &snapshot{
		byName: make(map[string]*Codec, len(cur.byName)+len(s.order)),
		byType: make(map[reflect.Type]*Codec, len(cur.byType)+len(s.order)),
	}
	for k, v := range cur.byName {
		next.byName[k] = v
	}
	for k, v := range cur.byType {
		next.byType[k] = v
	}
	for _, c := range s.order {
		next.byName[c.name] = c
		next.byType[c.typ] = c
		r.log.Debug("docbind: registered", slog.String("name", c.name), slog.String("type", c.typ.String()), slog.Int("fields", len(c.fields)))
	}
	r.snap.Store(next)
}

// ResolveByName returns the codec registered under name.
func (r *Registry) ResolveByName(name string) (*Codec, error) {
	if c, ok := r.snap.Load().byName[name]; ok {
		return c, nil
	}
	return nil, &Error{Code: CodeUnknownDocumentType, Document: name, Message: "no codec registered"}
}

// Lookup returns the codec for t if it has been registered.
func (r *Registry) Lookup(t reflect.Type) (*Codec, bool) {
	c, ok := r.snap.Load().byType[deref(t)]
	return c, ok
}

// Decode converts doc into a value of the record type registered under
// doc.Name. The result is a struct value, not a pointer.
func (r *Registry) Decode(doc *document.Document) (any, error) {
	if doc == nil {
		return nil, &Error{Code: CodeUnknownDocumentType, Message: "nil document"}
	}
	c, err := r.ResolveByName(doc.Name)
	if err != nil {
		return nil, err
	}
	return c.Decode(doc)
}

// Encode converts a record value into a document named by the registry's
// Namer. See Encoder.Encode.
func (r *Registry) Encode(v any) (*document.Document, error) {
	return r.enc.Encode(v)
}

// Entries returns a snapshot of the registered names sorted by name.
func (r *Registry) Entries() []Entry {
	cur := r.snap.Load()
	out := make([]Entry, 0, len(cur.byName))
	for name, c := range cur.byName {
		out = append(out, Entry{Name: name, Type: c.typ})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered codecs.
func (r *Registry) Count() int {
	return len(r.snap.Load().byName)
}

func deref(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func (c *Codec) addNested(n *Codec) {
	for _, x := range c.nested {
		if x == n {
			return
		}
	}
	c.nested = append(c.nested, n)
}
