package docbind_test

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/reoring/docbind"
	"github.com/reoring/docbind/document"
)

func samplePerson() Person {
	return Person{
		Name:    "Ada",
		Age:     36,
		Score:   97.5,
		Active:  true,
		Role:    RoleAdmin,
		Backup:  ptr(RoleEditor),
		Born:    time.Date(1815, time.December, 10, 9, 30, 0, 0, time.UTC),
		Avatar:  []byte{0xde, 0xad, 0xbe, 0xef},
		Address: &Address{Street: "12 St James's Sq", City: "London"},
		Homes:   []Address{{City: "London"}, {City: "Ockham"}},
		Labels:  map[string]string{"title": "Countess"},
		Scores:  map[string][]int{"math": {10, 9}, "none": {}},
		Lucky:   map[int]struct{}{3: {}, 7: {}},
		Groups:  map[string]struct{}{"analysts": {}},
	}
}

func TestRoundTrip_InMemory(t *testing.T) {
	reg := docbind.New()
	people := docbind.MustRegister[Person](reg)

	in := samplePerson()
	doc, err := people.Encode(in)
	require.NoError(t, err)

	out, err := people.Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRoundTrip_ThroughJSON(t *testing.T) {
	reg := docbind.New()
	people := docbind.MustRegister[Person](reg)

	in := samplePerson()
	doc, err := people.Encode(in)
	require.NoError(t, err)
	doc.ID = document.NewID()

	raw, err := doc.MarshalJSON()
	require.NoError(t, err)
	back, err := document.DecodeJSON(bytes.NewReader(raw))
	require.NoError(t, err)

	out, err := people.Decode(back)
	require.NoError(t, err)

	in.ID = doc.ID
	assert.Equal(t, in, out)
}

func TestRoundTrip_ReservedMappingKeys(t *testing.T) {
	reg := docbind.New()
	labelled := docbind.MustRegister[Labelled](reg)

	for _, key := range []string{"@name", "@set", "@id"} {
		in := Labelled{Labels: map[string]string{key: "x"}}
		doc, err := labelled.Encode(in)
		require.NoError(t, err)

		raw, err := doc.MarshalJSON()
		require.NoError(t, err)
		back, err := document.DecodeJSON(bytes.NewReader(raw))
		require.NoError(t, err, key)

		out, err := labelled.Decode(back)
		require.NoError(t, err, key)
		assert.Equal(t, in, out, key)
	}
}

func TestRoundTrip_ThroughYAML(t *testing.T) {
	reg := docbind.New()
	people := docbind.MustRegister[Person](reg)

	in := samplePerson()
	doc, err := people.Encode(in)
	require.NoError(t, err)

	raw, err := yaml.Marshal(doc)
	require.NoError(t, err)
	var back document.Document
	require.NoError(t, yaml.Unmarshal(raw, &back))

	out, err := people.Decode(&back)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecode_AbsentVersusEmpty(t *testing.T) {
	reg := docbind.New()
	blogs := docbind.MustRegister[Blog](reg)

	doc, err := blogs.Encode(Blog{Author: "ann", Posts: []string{}})
	require.NoError(t, err)

	assert.Equal(t, []string{"author", "posts"}, doc.Keys())
	assert.False(t, doc.Has("tags"))
	posts, _ := doc.Get("posts")
	assert.Equal(t, []any{}, posts)

	out, err := blogs.Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, "ann", out.Author)
	assert.Nil(t, out.Tags)
	assert.NotNil(t, out.Posts)
	assert.Empty(t, out.Posts)

	// Explicit null decodes like absence.
	doc.Set("tags", nil)
	out, err = blogs.Decode(doc)
	require.NoError(t, err)
	assert.Nil(t, out.Tags)

	doc.Set("tags", "go")
	out, err = blogs.Decode(doc)
	require.NoError(t, err)
	require.NotNil(t, out.Tags)
	assert.Equal(t, "go", *out.Tags)
}

func TestDecode_SelfReferenceDepthThree(t *testing.T) {
	reg := docbind.New()
	nodes := docbind.MustRegister[Node](reg)

	leaf := document.New("Node").Set("value", 3)
	mid := document.New("Node").Set("value", 2).Set("next", leaf)
	root := document.New("Node").Set("value", 1).Set("next", mid)

	n, err := nodes.Decode(root)
	require.NoError(t, err)
	require.NotNil(t, n.Next)
	require.NotNil(t, n.Next.Next)
	assert.Equal(t, 1, n.Value)
	assert.Equal(t, 2, n.Next.Value)
	assert.Equal(t, 3, n.Next.Next.Value)
	assert.Nil(t, n.Next.Next.Next)

	enc, err := nodes.Encode(n)
	require.NoError(t, err)
	again, err := nodes.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, n, again)
}

func TestDecode_MutualRecursion(t *testing.T) {
	reg := docbind.New()
	docbind.MustRegister[Employee](reg)

	in := Employee{
		Name: "grace",
		Dept: &Department{
			Name:  "navy",
			Staff: []Employee{{Name: "hopper"}},
		},
	}
	doc, err := reg.Encode(in)
	require.NoError(t, err)

	v, err := reg.Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, in, v)
}

func TestDecode_EnumOrdinalBounds(t *testing.T) {
	reg := docbind.New()
	people := docbind.MustRegister[Person](reg)

	for _, ord := range []any{0, 2, int64(1), 1.0} {
		_, err := people.Decode(document.New("Person").Set("role", ord))
		assert.NoError(t, err, "ordinal %v", ord)
	}
	for _, ord := range []any{3, -1, 1.5, "admin"} {
		_, err := people.Decode(document.New("Person").Set("role", ord))
		require.ErrorIs(t, err, docbind.ErrUnknownEnumOrdinal, "ordinal %v", ord)
		e, _ := docbind.AsError(err)
		assert.Equal(t, "/role", e.Path)
		assert.Equal(t, "Person", e.Document)
	}
}

func TestEncode_UnknownEnumConstant(t *testing.T) {
	_, err := docbind.Encode(Person{Role: Role(9)})
	require.ErrorIs(t, err, docbind.ErrUnknownEnumOrdinal)
}

func TestDecode_NestedFailure(t *testing.T) {
	reg := docbind.New()
	people := docbind.MustRegister[Person](reg)

	addr := document.New("Address").Set("city", 42)
	_, err := people.Decode(document.New("Person").Set("address", addr))
	require.ErrorIs(t, err, docbind.ErrNestedRecordDecode)
	require.ErrorIs(t, err, docbind.ErrTypeMismatch)

	e, ok := docbind.AsError(err)
	require.True(t, ok)
	assert.Equal(t, docbind.CodeNestedRecordDecode, e.Code)
	assert.Equal(t, "/address", e.Path)
	assert.Equal(t, "Person", e.Document)

	// Failures inside a sequence of records carry the element index.
	_, err = people.Decode(document.New("Person").Set("homes", []any{
		document.New("Address").Set("city", "ok"),
		document.New("Address").Set("street", true),
	}))
	require.ErrorIs(t, err, docbind.ErrNestedRecordDecode)
	e, _ = docbind.AsError(err)
	assert.Equal(t, "/homes/1", e.Path)
}

func TestDecode_NestedPlainMapping(t *testing.T) {
	reg := docbind.New()
	people := docbind.MustRegister[Person](reg)

	p, err := people.Decode(document.New("Person").Set("address", map[string]any{"city": "Paris"}))
	require.NoError(t, err)
	require.NotNil(t, p.Address)
	assert.Equal(t, "Paris", p.Address.City)
}

func TestDecode_Identity(t *testing.T) {
	reg := docbind.New()
	people := docbind.MustRegister[Person](reg)

	id := document.NewID()
	doc := document.New("Person").Set("name", "Ada")
	doc.ID = id

	p, err := people.Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)

	// Identity is never written back.
	enc, err := people.Encode(p)
	require.NoError(t, err)
	assert.True(t, enc.ID.IsZero())
	assert.False(t, enc.Has("ID"))

	maybe := docbind.MustRegister[MaybeIdentified](reg)
	m, err := maybe.Decode(document.New("MaybeIdentified"))
	require.NoError(t, err)
	assert.Nil(t, m.ID)

	doc = document.New("MaybeIdentified")
	doc.ID = id
	m, err = maybe.Decode(doc)
	require.NoError(t, err)
	require.NotNil(t, m.ID)
	assert.Equal(t, id, *m.ID)
}

func TestDecode_AbsentPrimitiveKeepsZero(t *testing.T) {
	reg := docbind.New()
	people := docbind.MustRegister[Person](reg)

	p, err := people.Decode(document.New("Person"))
	require.NoError(t, err)
	assert.Equal(t, Person{}, p)
}

func TestDecode_TypeMismatch(t *testing.T) {
	reg := docbind.New()
	people := docbind.MustRegister[Person](reg)

	cases := map[string]*document.Document{
		"/name":     document.New("Person").Set("name", 5),
		"/age":      document.New("Person").Set("age", int64(1)<<40),
		"/born":     document.New("Person").Set("born", "yesterday"),
		"/labels":   document.New("Person").Set("labels", []any{"x"}),
		"/scores/a": document.New("Person").Set("scores", map[string]any{"a": 3}),
		"/lucky/0":  document.New("Person").Set("lucky", document.NewSet("seven")),
	}
	for path, doc := range cases {
		_, err := people.Decode(doc)
		require.ErrorIs(t, err, docbind.ErrTypeMismatch, path)
		e, _ := docbind.AsError(err)
		assert.Equal(t, path, e.Path)
	}
}

func TestDecode_IntegerAt2To63Overflows(t *testing.T) {
	reg := docbind.New()
	tallies := docbind.MustRegister[Tally](reg)

	doc, err := document.DecodeJSON(strings.NewReader(`{"@name":"Tally","n":9223372036854775808}`))
	require.NoError(t, err)
	_, err = tallies.Decode(doc)
	require.ErrorIs(t, err, docbind.ErrTypeMismatch)

	_, err = tallies.Decode(document.New("Tally").Set("n", float64(1<<63)))
	require.ErrorIs(t, err, docbind.ErrTypeMismatch)

	got, err := tallies.Decode(document.New("Tally").Set("n", float64(-1<<63)))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), got.N)
}

func TestConverter_RejectsForeignDocument(t *testing.T) {
	reg := docbind.New()
	blogs := docbind.MustRegister[Blog](reg)
	docbind.MustRegister[Address](reg)

	_, err := blogs.Decode(document.New("Address"))
	require.ErrorIs(t, err, docbind.ErrTypeMismatch)

	_, err = docbind.DecodeAs[Blog](reg, document.New("Address"))
	require.ErrorIs(t, err, docbind.ErrTypeMismatch)

	b, err := docbind.DecodeAs[*Blog](reg, document.New("Blog").Set("author", "ann"))
	require.NoError(t, err)
	assert.Equal(t, "ann", b.Author)
}

func TestConverter_PointerType(t *testing.T) {
	reg := docbind.New()
	blogs := docbind.MustRegister[*Blog](reg)
	assert.Equal(t, "Blog", blogs.Name())

	doc, err := blogs.Encode(&Blog{Author: "ann"})
	require.NoError(t, err)
	b, err := blogs.Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, &Blog{Author: "ann", Posts: []string{}}, b)
}

func TestDecode_EmbeddedFields(t *testing.T) {
	reg := docbind.New()
	conv := docbind.MustRegister[Embedded](reg)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	in := Embedded{Base: Base{Created: created, Kind: "shadowed"}, Kind: "post", Title: "hi"}
	doc, err := conv.Encode(in)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"kind", "title", "created"}, doc.Keys())
	kind, _ := doc.Get("kind")
	assert.Equal(t, "post", kind)

	out, err := conv.Decode(doc)
	require.NoError(t, err)
	assert.Equal(t, created, out.Created)
	assert.Equal(t, "post", out.Kind)
	assert.Empty(t, out.Base.Kind)
}
