package query_test

import (
	"testing"
	"time"

	j "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reoring/docbind/document"
	"github.com/reoring/docbind/store/query"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want *query.Query
	}{
		{"SELECT FROM Blog", &query.Query{Class: "Blog"}},
		{"select from docbind_test.Blog limit 3", &query.Query{Class: "docbind_test.Blog", Limit: 3}},
		{
			`SELECT FROM Blog WHERE author = 'it''s' AND stars = 4 AND draft = false LIMIT 10`,
			&query.Query{Class: "Blog", Limit: 10, Where: []query.Cond{
				{Field: "author", Value: "it's"},
				{Field: "stars", Value: int64(4)},
				{Field: "draft", Value: false},
			}},
		},
		{
			`SELECT FROM Reading WHERE temp=-1.5 AND note = "x" AND gone = null`,
			&query.Query{Class: "Reading", Where: []query.Cond{
				{Field: "temp", Value: -1.5},
				{Field: "note", Value: "x"},
				{Field: "gone", Value: nil},
			}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := query.Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_Syntax(t *testing.T) {
	for _, in := range []string{
		"",
		"SELECT Blog",
		"SELECT FROM",
		"SELECT FROM Blog WHERE",
		"SELECT FROM Blog WHERE a",
		"SELECT FROM Blog WHERE a = ",
		"SELECT FROM Blog WHERE a = 'open",
		"SELECT FROM Blog LIMIT 0",
		"SELECT FROM Blog LIMIT x",
		"SELECT FROM Blog ORDER BY a",
		"SELECT FROM Blog WHERE a = 1 OR b = 2",
		"SELECT FROM Blog WHERE a = 1..2",
		"SELECT FROM Blog WHERE a > 1",
	} {
		_, err := query.Parse(in)
		assert.ErrorIs(t, err, query.ErrSyntax, in)
	}
	assert.Panics(t, func() { query.MustParse("nope") })
}

func TestString_RoundTrip(t *testing.T) {
	q := query.Select("Blog").Eq("author", "o'hara").Eq("stars", 5).Eq("ratio", 0.5).Eq("draft", true).Take(2)
	assert.Equal(t, `SELECT FROM Blog WHERE author = 'o''hara' AND stars = 5 AND ratio = 0.5 AND draft = true LIMIT 2`, q.String())

	back, err := query.Parse(q.String())
	require.NoError(t, err)
	assert.Equal(t, q, back)
}

func TestMatch(t *testing.T) {
	id := document.NewID()
	born := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := document.New("Person").
		Set("name", "ada").
		Set("age", int32(36)).
		Set("score", j.Number("97.5")).
		Set("active", true).
		Set("born", born).
		Set("nick", nil)
	doc.ID = id

	match := func(text string) bool {
		return query.MustParse(text).Match(doc)
	}
	assert.True(t, match("SELECT FROM Person"))
	assert.True(t, match("SELECT FROM Person WHERE name = 'ada' AND age = 36"))
	assert.True(t, match("SELECT FROM Person WHERE age = 36.0"))
	assert.True(t, match("SELECT FROM Person WHERE score = 97.5"))
	assert.True(t, match("SELECT FROM Person WHERE active = true"))
	assert.True(t, match("SELECT FROM Person WHERE born = '2020-01-02T03:04:05Z'"))
	assert.True(t, match("SELECT FROM Person WHERE nick = null AND missing = null"))
	assert.True(t, match("SELECT FROM Person WHERE @id = '"+id.String()+"'"))

	assert.False(t, match("SELECT FROM Person WHERE name = 'bob'"))
	assert.False(t, match("SELECT FROM Person WHERE age = '36'"))
	assert.False(t, match("SELECT FROM Person WHERE score = '97.5'"))
	assert.False(t, match("SELECT FROM Person WHERE active = 1"))
	assert.False(t, match("SELECT FROM Person WHERE name = null"))
}

func TestApply_Limit(t *testing.T) {
	var docs []*document.Document
	for i := range 5 {
		docs = append(docs, document.New("N").Set("even", i%2 == 0).Set("i", i))
	}
	got := query.MustParse("SELECT FROM N WHERE even = true LIMIT 2").Apply(docs)
	require.Len(t, got, 2)
	v0, _ := got[0].Get("i")
	v1, _ := got[1].Get("i")
	assert.Equal(t, 0, v0)
	assert.Equal(t, 2, v1)

	assert.Len(t, query.Select("N").Apply(docs), 5)
}

func TestMatch_LargeIntegersCompareExactly(t *testing.T) {
	for _, stored := range []any{int64(1<<53 + 1), j.Number("9007199254740993"), uint64(1<<53 + 1)} {
		doc := document.New("N").Set("n", stored)
		assert.True(t, query.MustParse("SELECT FROM N WHERE n = 9007199254740993").Match(doc), "%T", stored)
		assert.False(t, query.MustParse("SELECT FROM N WHERE n = 9007199254740992").Match(doc), "%T", stored)
	}
}
