// Package boltstore is a store.Store backed by a single bbolt file.
//
// Layout:
//
//	classes           name -> go-json encoded store.Class
//	index             id (16 bytes) -> class name + 0x00 + sequence key
//	docs/<class>      sequence key (8 bytes, big endian) -> JSON document
//
// Sequence keys keep each class in insertion order.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	j "github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/query"
)

var (
	classesBucket = []byte("classes")
	indexBucket   = []byte("index")
	docsBucket    = []byte("docs")
)

// Store is safe for concurrent use; bbolt serializes writers.
type Store struct {
	db      *bolt.DB
	log     *slog.Logger
	timeout time.Duration
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

// WithTimeout bounds how long Open waits for the file lock.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// Open opens (creating if needed) the database file at path.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		log:     slog.New(slog.DiscardHandler),
		timeout: time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{classesBucket, indexBucket, docsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init %s: %w", path, err)
	}
	s.db = db
	return s, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)

func (s *Store) DeclareType(ctx context.Context, c store.Class) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		classes := tx.Bucket(classesBucket)
		if raw := classes.Get([]byte(c.Name)); raw != nil {
			var cur store.Class
			if err := j.Unmarshal(raw, &cur); err != nil {
				return fmt.Errorf("declare %s: %w", c.Name, err)
			}
			if store.SameDefinition(cur, c) {
				return nil
			}
			return fmt.Errorf("declare %s: %w", c.Name, store.ErrClassExists)
		}
		raw, err := j.Marshal(c)
		if err != nil {
			return fmt.Errorf("declare %s: %w", c.Name, err)
		}
		if err := classes.Put([]byte(c.Name), raw); err != nil {
			return err
		}
		if _, err := tx.Bucket(docsBucket).CreateBucketIfNotExists([]byte(c.Name)); err != nil {
			return err
		}
		s.log.Debug("boltstore: declared class", slog.String("class", c.Name))
		return nil
	})
}

func (s *Store) DropType(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		classes := tx.Bucket(classesBucket)
		if classes.Get([]byte(name)) == nil {
			return fmt.Errorf("drop %s: %w", name, store.ErrUnknownClass)
		}
		index := tx.Bucket(indexBucket)
		var stale [][]byte
		c := index.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if class, _, ok := splitRef(v); ok && class == name {
				stale = append(stale, bytes.Clone(k))
			}
		}
		for _, k := range stale {
			if err := index.Delete(k); err != nil {
				return err
			}
		}
		if err := tx.Bucket(docsBucket).DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		s.log.Debug("boltstore: dropped class", slog.String("class", name), slog.Int("documents", len(stale)))
		return classes.Delete([]byte(name))
	})
}

func (s *Store) Classes(ctx context.Context) ([]store.Class, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []store.Class
	err := s.db.View(func(tx *bolt.Tx) error {
		// bbolt iterates keys in byte order, which is name order
		return tx.Bucket(classesBucket).ForEach(func(_, v []byte) error {
			var c store.Class
			if err := j.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, doc *document.Document) (document.ID, error) {
	if doc == nil {
		return document.ID{}, fmt.Errorf("save: nil document")
	}
	if err := ctx.Err(); err != nil {
		return document.ID{}, err
	}
	id := doc.ID
	if id.IsZero() {
		id = document.NewID()
	}
	cp := doc.Clone()
	cp.ID = id
	body, err := cp.MarshalJSON()
	if err != nil {
		return document.ID{}, fmt.Errorf("save %s: %w", doc.Name, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(docsBucket).Bucket([]byte(doc.Name))
		if tx.Bucket(classesBucket).Get([]byte(doc.Name)) == nil || bucket == nil {
			return fmt.Errorf("save %s: %w", doc.Name, store.ErrUnknownClass)
		}
		index := tx.Bucket(indexBucket)
		var key []byte
		if class, seq, ok := splitRef(index.Get(id[:])); ok {
			if class == doc.Name {
				key = seq
			} else if old := tx.Bucket(docsBucket).Bucket([]byte(class)); old != nil {
				if err := old.Delete(seq); err != nil {
					return err
				}
			}
		}
		if key == nil {
			n, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			key = binary.BigEndian.AppendUint64(nil, n)
		}
		if err := bucket.Put(key, body); err != nil {
			return err
		}
		return index.Put(bytes.Clone(id[:]), ref(doc.Name, key))
	})
	if err != nil {
		return document.ID{}, err
	}
	return id, nil
}

func (s *Store) Fetch(ctx context.Context, id document.ID) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc *document.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		class, seq, ok := splitRef(tx.Bucket(indexBucket).Get(id[:]))
		if !ok {
			return fmt.Errorf("fetch %s: %w", id, store.ErrNotFound)
		}
		bucket := tx.Bucket(docsBucket).Bucket([]byte(class))
		if bucket == nil {
			return fmt.Errorf("fetch %s: %w", id, store.ErrNotFound)
		}
		raw := bucket.Get(seq)
		if raw == nil {
			return fmt.Errorf("fetch %s: %w", id, store.ErrNotFound)
		}
		var err error
		doc, err = document.DecodeJSON(bytes.NewReader(raw))
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) Query(ctx context.Context, text string) ([]*document.Document, error) {
	q, err := query.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*document.Document
	err = s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(docsBucket).Bucket([]byte(q.Class))
		if bucket == nil {
			return fmt.Errorf("query %s: %w", q.Class, store.ErrUnknownClass)
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			doc, err := document.DecodeJSON(bytes.NewReader(v))
			if err != nil {
				return fmt.Errorf("query %s: %w", q.Class, err)
			}
			if !q.Match(doc) {
				continue
			}
			out = append(out, doc)
			if q.Limit > 0 && len(out) == q.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func ref(class string, seq []byte) []byte {
	out := make([]byte, 0, len(class)+1+len(seq))
	out = append(out, class...)
	out = append(out, 0)
	return append(out, seq...)
}

func splitRef(v []byte) (class string, seq []byte, ok bool) {
	i := bytes.IndexByte(v, 0)
	if i < 0 {
		return "", nil, false
	}
	return string(v[:i]), bytes.Clone(v[i+1:]), true
}
