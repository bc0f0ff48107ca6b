// Package redisstore is a store.Store backed by Redis.
//
// Keys (prefix defaults to "docbind"):
//
//	<prefix>:classes          set of declared class names
//	<prefix>:class:<name>     go-json encoded store.Class
//	<prefix>:ids:<name>       list of document ids in insertion order
//	<prefix>:doc:<id>         JSON document
package redisstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	j "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/query"
)

// Store keeps no state besides the client; it is safe for concurrent use.
// Writes touching several keys run in MULTI/EXEC under WATCH of the keys
// they read first.
type Store struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(p string) Option {
	return func(s *Store) {
		if p != "" {
			s.prefix = p
		}
	}
}

// WithLogger sets the logger for store events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a store using client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: "docbind",
		log:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, url string, opts ...Option) (*Store, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return New(client, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ store.Store = (*Store)(nil)

func (s *Store) classesKey() string           { return s.prefix + ":classes" }
func (s *Store) classKey(name string) string  { return s.prefix + ":class:" + name }
func (s *Store) idsKey(name string) string    { return s.prefix + ":ids:" + name }
func (s *Store) docKey(id document.ID) string { return s.prefix + ":doc:" + id.String() }

func (s *Store) DeclareType(ctx context.Context, c store.Class) error {
	raw, err := j.Marshal(c)
	if err != nil {
		return fmt.Errorf("declare %s: %w", c.Name, err)
	}
	created, err := s.client.SetNX(ctx, s.classKey(c.Name), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("declare %s: %w", c.Name, err)
	}
	if !created {
		cur, err := s.class(ctx, c.Name)
		if err != nil {
			return err
		}
		if !store.SameDefinition(cur, c) {
			return fmt.Errorf("declare %s: %w", c.Name, store.ErrClassExists)
		}
	}
	if err := s.client.SAdd(ctx, s.classesKey(), c.Name).Err(); err != nil {
		return fmt.Errorf("declare %s: %w", c.Name, err)
	}
	if created {
		s.log.Debug("redisstore: declared class", slog.String("class", c.Name))
	}
	return nil
}

func (s *Store) class(ctx context.Context, name string) (store.Class, error) {
	raw, err := s.client.Get(ctx, s.classKey(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Class{}, fmt.Errorf("class %s: %w", name, store.ErrUnknownClass)
	}
	if err != nil {
		return store.Class{}, fmt.Errorf("class %s: %w", name, err)
	}
	var c store.Class
	if err := j.Unmarshal(raw, &c); err != nil {
		return store.Class{}, fmt.Errorf("class %s: %w", name, err)
	}
	return c, nil
}

func (s *Store) declared(ctx context.Context, name string) error {
	return s.declaredIn(ctx, s.client, name)
}

// memberChecker is satisfied by both *redis.Client and *redis.Tx.
type memberChecker interface {
	SIsMember(ctx context.Context, key string, member any) *redis.BoolCmd
}

func (s *Store) declaredIn(ctx context.Context, c memberChecker, name string) error {
	ok, err := c.SIsMember(ctx, s.classesKey(), name).Result()
	if err != nil {
		return fmt.Errorf("class %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("class %s: %w", name, store.ErrUnknownClass)
	}
	return nil
}

func (s *Store) DropType(ctx context.Context, name string) error {
	var dropped int
	err := s.watch(ctx, func(tx *redis.Tx) error {
		if err := s.declaredIn(ctx, tx, name); err != nil {
			return fmt.Errorf("drop: %w", err)
		}
		ids, err := tx.LRange(ctx, s.idsKey(name), 0, -1).Result()
		if err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
		keys := make([]string, 0, len(ids)+2)
		for _, id := range ids {
			keys = append(keys, s.prefix+":doc:"+id)
		}
		keys = append(keys, s.idsKey(name), s.classKey(name))
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, keys...)
			p.SRem(ctx, s.classesKey(), name)
			return nil
		})
		dropped = len(ids)
		return err
	}, s.classesKey(), s.idsKey(name))
	if err != nil {
		return wrapTx("drop "+name, err)
	}
	s.log.Debug("redisstore: dropped class", slog.String("class", name), slog.Int("documents", dropped))
	return nil
}

func (s *Store) Classes(ctx context.Context) ([]store.Class, error) {
	names, err := s.client.SMembers(ctx, s.classesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	sort.Strings(names)
	out := make([]store.Class, 0, len(names))
	for _, name := range names {
		c, err := s.class(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, doc *document.Document) (document.ID, error) {
	if doc == nil {
		return document.ID{}, fmt.Errorf("save: nil document")
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
	err = s.watch(ctx, func(tx *redis.Tx) error {
		if err := s.declaredIn(ctx, tx, doc.Name); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		var prevName string
		raw, err := tx.Get(ctx, s.docKey(id)).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("fetch %s: %w", id, err)
		default:
			prev, err := document.DecodeJSON(bytes.NewReader(raw))
			if err != nil {
				return fmt.Errorf("fetch %s: %w", id, err)
			}
			prevName = prev.Name
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, s.docKey(id), body, 0)
			switch prevName {
			case doc.Name:
			case "":
				p.RPush(ctx, s.idsKey(doc.Name), id.String())
			default:
				p.LRem(ctx, s.idsKey(prevName), 0, id.String())
				p.RPush(ctx, s.idsKey(doc.Name), id.String())
			}
			return nil
		})
		return err
	}, s.classesKey(), s.docKey(id))
	if err != nil {
		return document.ID{}, wrapTx("save "+doc.Name, err)
	}
	return id, nil
}

// maxWatchRetries bounds how often a write is retried after a concurrent
// change to one of its watched keys.
const maxWatchRetries = 16

// watch runs fn under WATCH on keys, retrying when EXEC is aborted.
func (s *Store) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for range maxWatchRetries {
		err = s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		s.log.Debug("redisstore: watched key changed, retrying", slog.Any("keys", keys))
	}
	return err
}

// wrapTx adds op to err unless err already carries a store sentinel.
func wrapTx(op string, err error) error {
	if errors.Is(err, store.ErrUnknownClass) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) Fetch(ctx context.Context, id document.ID) (*document.Document, error) {
	raw, err := s.client.Get(ctx, s.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("fetch %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	return document.DecodeJSON(bytes.NewReader(raw))
}

func (s *Store) Query(ctx context.Context, text string) ([]*document.Document, error) {
	q, err := query.Parse(text)
	if err != nil {
		return nil, err
	}
	if err := s.declared(ctx, q.Class); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	ids, err := s.client.LRange(ctx, s.idsKey(q.Class), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Class, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.prefix + ":doc:" + id
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Class, err)
	}
	var out []*document.Document
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue // removed concurrently
		}
		doc, err := document.DecodeJSON(bytes.NewReader([]byte(raw)))
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Class, err)
		}
		if !q.Match(doc) {
			continue
		}
		out = append(out, doc)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
