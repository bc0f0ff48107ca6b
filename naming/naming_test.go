package naming_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reoring/docbind/naming"
)

type Article struct{}

type Page[T any] struct{ Items []T }

type Renamed struct{}

func (Renamed) DocumentName() string { return "Story" }

type Blank struct{}

func (Blank) DocumentName() string { return "" }

func TestSimple(t *testing.T) {
	n := naming.Simple()
	assert.Equal(t, "Article", n.Name(reflect.TypeFor[Article]()))
	assert.Equal(t, "Article", n.Name(reflect.TypeFor[**Article]()))
	assert.Equal(t, "Page", n.Name(reflect.TypeFor[Page[int]]()))
	assert.Empty(t, n.Name(reflect.TypeFor[int]()))
	assert.Empty(t, n.Name(reflect.TypeFor[struct{ A int }]()))
}

func TestQualified(t *testing.T) {
	n := naming.Qualified()
	assert.Equal(t, "naming_test.Article", n.Name(reflect.TypeFor[Article]()))
	assert.Equal(t, "naming_test.Page", n.Name(reflect.TypeFor[Page[string]]()))
	assert.Empty(t, n.Name(reflect.TypeFor[string]()))
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "Story", naming.Resolve(naming.Qualified(), reflect.TypeFor[Renamed]()))
	assert.Equal(t, "Story", naming.Resolve(nil, reflect.TypeFor[*Renamed]()))

	// An empty override falls back to the namer.
	assert.Equal(t, "Blank", naming.Resolve(nil, reflect.TypeFor[Blank]()))

	custom := naming.Func(func(t reflect.Type) string { return "v1/" + t.Name() })
	assert.Equal(t, "v1/Article", naming.Resolve(custom, reflect.TypeFor[Article]()))
	assert.Empty(t, naming.Resolve(custom, nil))
}
