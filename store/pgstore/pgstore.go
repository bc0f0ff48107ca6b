// Package pgstore is a store.Store backed by PostgreSQL through database/sql
// and the lib/pq driver.
package pgstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	j "github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/query"
)

// Schema creates the tables the store needs. Documents keep their JSON text
// verbatim (json, not jsonb) so field order survives a round trip.
const Schema = `
CREATE TABLE IF NOT EXISTS docbind_classes (
	name   text PRIMARY KEY,
	fields jsonb NOT NULL
);
CREATE TABLE IF NOT EXISTS docbind_documents (
	id    uuid PRIMARY KEY,
	class text NOT NULL REFERENCES docbind_classes (name) ON DELETE CASCADE,
	seq   bigserial,
	body  json NOT NULL
);
CREATE INDEX IF NOT EXISTS docbind_documents_class_seq ON docbind_documents (class, seq);
`

const (
	foreignKeyViolation = "23503"
)

// Store persists documents in PostgreSQL. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	log *slog.Logger
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

// New constructs a store over db. Call Migrate before first use.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Open connects to dsn, pings and migrates.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	s := New(db, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)

func (s *Store) DeclareType(ctx context.Context, c store.Class) error {
	fields, err := j.Marshal(c.Fields)
	if err != nil {
		return fmt.Errorf("declare %s: %w", c.Name, err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO docbind_classes (name, fields) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		c.Name, string(fields))
	if err != nil {
		return fmt.Errorf("declare %s: %w", c.Name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		s.log.Debug("pgstore: declared class", slog.String("class", c.Name))
		return nil
	}
	cur, err := s.class(ctx, c.Name)
	if err != nil {
		return err
	}
	if !store.SameDefinition(cur, c) {
		return fmt.Errorf("declare %s: %w", c.Name, store.ErrClassExists)
	}
	return nil
}

func (s *Store) class(ctx context.Context, name string) (store.Class, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT fields FROM docbind_classes WHERE name = $1`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Class{}, fmt.Errorf("class %s: %w", name, store.ErrUnknownClass)
	}
	if err != nil {
		return store.Class{}, fmt.Errorf("class %s: %w", name, err)
	}
	c := store.Class{Name: name}
	if err := j.Unmarshal(raw, &c.Fields); err != nil {
		return store.Class{}, fmt.Errorf("class %s: %w", name, err)
	}
	return c, nil
}

func (s *Store) DropType(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM docbind_classes WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("drop %s: %w", name, store.ErrUnknownClass)
	}
	s.log.Debug("pgstore: dropped class", slog.String("class", name))
	return nil
}

func (s *Store) Classes(ctx context.Context) ([]store.Class, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, fields FROM docbind_classes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()
	var out []store.Class
	for rows.Next() {
		var (
			c   store.Class
			raw []byte
		)
		if err := rows.Scan(&c.Name, &raw); err != nil {
			return nil, fmt.Errorf("list classes: %w", err)
		}
		if err := j.Unmarshal(raw, &c.Fields); err != nil {
			return nil, fmt.Errorf("list classes: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO docbind_documents (id, class, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			class = EXCLUDED.class,
			body = EXCLUDED.body
	`, id.String(), doc.Name, string(body))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return document.ID{}, fmt.Errorf("save %s: %w", doc.Name, store.ErrUnknownClass)
		}
		return document.ID{}, fmt.Errorf("save %s: %w", doc.Name, err)
	}
	return id, nil
}

func (s *Store) Fetch(ctx context.Context, id document.ID) (*document.Document, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM docbind_documents WHERE id = $1`, id.String()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("fetch %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	return document.DecodeJSON(bytes.NewReader(body))
}

func (s *Store) Query(ctx context.Context, text string) ([]*document.Document, error) {
	q, err := query.Parse(text)
	if err != nil {
		return nil, err
	}
	if _, err := s.class(ctx, q.Class); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM docbind_documents WHERE class = $1 ORDER BY seq`, q.Class)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Class, err)
	}
	defer rows.Close()
	var out []*document.Document
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Class, err)
		}
		doc, err := document.DecodeJSON(bytes.NewReader(body))
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
	return out, rows.Err()
}
