// Package storetest is a conformance suite run against every store.Store
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/reoring/docbind"
	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/store"
	"github.com/reoring/docbind/store/query"
)

type Rank int

const (
	Novice Rank = iota
	Regular
	Veteran
)

func (Rank) EnumValues() []any { return []any{Novice, Regular, Veteran} }

type Author struct {
	ID    document.ID         `doc:",id"`
	Name  string              `doc:"name"`
	Born  time.Time           `doc:"born"`
	Rank  Rank                `doc:"rank"`
	Tags  map[string]struct{} `doc:"tags"`
	Posts []Post              `doc:"posts"`
	Best  *Post               `doc:"best"`
	Meta  map[string]int      `doc:"meta"`
}

type Post struct {
	Title string `doc:"title"`
	Stars int    `doc:"stars"`
}

// Suite exercises a store through the registry. New must return an empty
// store; it is called before every test.
type Suite struct {
	suite.Suite
	New func(t *testing.T) store.Store

	Store   store.Store
	Reg     *docbind.Registry
	Authors docbind.Converter[Author]
	ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.Store = s.New(s.T())
	s.Reg = docbind.New()
	s.Authors = docbind.MustRegister[Author](s.Reg)
	for _, c := range store.Closure(s.Authors.Codec()) {
		s.Require().NoError(s.Store.DeclareType(s.ctx, c))
	}
}

func (s *Suite) author(name string, rank Rank) Author {
	return Author{
		Name:  name,
		Born:  time.Date(1990, 5, 17, 8, 30, 0, 123000000, time.UTC),
		Rank:  rank,
		Tags:  map[string]struct{}{"go": {}, name: {}},
		Posts: []Post{{Title: "hello", Stars: 3}, {Title: "again", Stars: 5}},
		Best:  &Post{Title: "hello", Stars: 3},
		Meta:  map[string]int{"followers": 12},
	}
}

func (s *Suite) save(a Author) document.ID {
	doc, err := s.Authors.Encode(a)
	s.Require().NoError(err)
	doc.ID = a.ID
	id, err := s.Store.Save(s.ctx, doc)
	s.Require().NoError(err)
	s.Require().False(id.IsZero())
	return id
}

func (s *Suite) names(docs []*document.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		a, err := s.Authors.Decode(d)
		s.Require().NoError(err)
		out = append(out, a.Name)
	}
	return out
}

func (s *Suite) TestClasses() {
	classes, err := s.Store.Classes(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(classes, 2)
	s.Equal("Author", classes[0].Name)
	s.Equal("Post", classes[1].Name)
	s.True(store.SameDefinition(store.ClassOf(s.Authors.Codec()), classes[0]))
}

func (s *Suite) TestDeclareType_Idempotent() {
	c := store.ClassOf(s.Authors.Codec())
	s.NoError(s.Store.DeclareType(s.ctx, c))

	changed := store.Class{Name: "Author", Fields: []store.Property{{Name: "name", Shape: "primitive"}}}
	s.ErrorIs(s.Store.DeclareType(s.ctx, changed), store.ErrClassExists)
}

func (s *Suite) TestSaveFetch_RoundTrip() {
	in := s.author("ada", Veteran)
	id := s.save(in)

	doc, err := s.Store.Fetch(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(id, doc.ID)
	s.Equal("Author", doc.Name)

	out, err := s.Authors.Decode(doc)
	s.Require().NoError(err)
	in.ID = id
	s.Equal(in, out)
}

func (s *Suite) TestSave_Upsert() {
	a := s.author("ada", Novice)
	a.ID = s.save(a)
	s.save(s.author("bob", Novice))

	a.Rank = Regular
	a.Posts = []Post{}
	s.Equal(a.ID, s.save(a))

	doc, err := s.Store.Fetch(s.ctx, a.ID)
	s.Require().NoError(err)
	out, err := s.Authors.Decode(doc)
	s.Require().NoError(err)
	s.Equal(Regular, out.Rank)
	s.Empty(out.Posts)

	docs, err := s.Store.Query(s.ctx, "SELECT FROM Author")
	s.Require().NoError(err)
	s.Equal([]string{"ada", "bob"}, s.names(docs))
}

func (s *Suite) TestSave_UnknownClass() {
	_, err := s.Store.Save(s.ctx, document.New("Ghost").Set("boo", true))
	s.ErrorIs(err, store.ErrUnknownClass)
}

func (s *Suite) TestFetch_NotFound() {
	_, err := s.Store.Fetch(s.ctx, document.NewID())
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *Suite) TestQuery() {
	s.save(s.author("ada", Veteran))
	s.save(s.author("bob", Novice))
	s.save(s.author("cyd", Veteran))

	docs, err := s.Store.Query(s.ctx, "SELECT FROM Author")
	s.Require().NoError(err)
	s.Equal([]string{"ada", "bob", "cyd"}, s.names(docs))

	docs, err = s.Store.Query(s.ctx, query.Select("Author").Eq("rank", Veteran).String())
	s.Require().NoError(err)
	s.Equal([]string{"ada", "cyd"}, s.names(docs))

	docs, err = s.Store.Query(s.ctx, "SELECT FROM Author WHERE rank = 2 LIMIT 1")
	s.Require().NoError(err)
	s.Equal([]string{"ada"}, s.names(docs))

	docs, err = s.Store.Query(s.ctx, "SELECT FROM Author WHERE name = 'zed'")
	s.Require().NoError(err)
	s.Empty(docs)

	docs, err = s.Store.Query(s.ctx, "SELECT FROM Post")
	s.Require().NoError(err)
	s.Empty(docs)

	_, err = s.Store.Query(s.ctx, "SELECT FROM Ghost")
	s.ErrorIs(err, store.ErrUnknownClass)

	_, err = s.Store.Query(s.ctx, "SELECT Author")
	s.ErrorIs(err, query.ErrSyntax)
}

func (s *Suite) TestDropType() {
	id := s.save(s.author("ada", Novice))

	s.Require().NoError(s.Store.DropType(s.ctx, "Author"))

	_, err := s.Store.Fetch(s.ctx, id)
	s.ErrorIs(err, store.ErrNotFound)
	_, err = s.Store.Query(s.ctx, "SELECT FROM Author")
	s.ErrorIs(err, store.ErrUnknownClass)
	s.ErrorIs(s.Store.DropType(s.ctx, "Author"), store.ErrUnknownClass)

	classes, err := s.Store.Classes(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(classes, 1)
	s.Equal("Post", classes[0].Name)
}
