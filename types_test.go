package docbind_test

import (
	"time"

	"github.com/reoring/docbind/document"
)

type Blog struct {
	Author string   `doc:"author"`
	Tags   *string  `doc:"tags"`
	Posts  []string `doc:"posts"`
}

type Role int

const (
	RoleReader Role = iota
	RoleEditor
	RoleAdmin
)

func (Role) EnumValues() []any { return []any{RoleReader, RoleEditor, RoleAdmin} }

type Address struct {
	Street string `doc:"street"`
	City   string `doc:"city"`
}

type Person struct {
	ID      document.ID         `doc:",id"`
	Name    string              `doc:"name"`
	Age     int32               `doc:"age"`
	Score   float64             `doc:"score"`
	Active  bool                `doc:"active"`
	Role    Role                `doc:"role"`
	Backup  *Role               `doc:"backup,omitempty"`
	Born    time.Time           `doc:"born"`
	Avatar  []byte              `doc:"avatar"`
	Address *Address            `doc:"address"`
	Homes   []Address           `doc:"homes"`
	Labels  map[string]string   `doc:"labels"`
	Scores  map[string][]int    `doc:"scores"`
	Lucky   map[int]struct{}    `doc:"lucky"`
	Groups  map[string]struct{} `doc:"groups"`
	Ignored string              `doc:"-"`
}

// Node is self-referential through an optional field.
type Node struct {
	Value int   `doc:"value"`
	Next  *Node `doc:"next"`
}

// Tree is self-referential through a sequence.
type Tree struct {
	Label    string `doc:"label"`
	Children []Tree `doc:"children"`
}

// Employee and Department reference each other.
type Employee struct {
	Name string      `doc:"name"`
	Dept *Department `doc:"dept"`
}

type Department struct {
	Name  string     `doc:"name"`
	Staff []Employee `doc:"staff"`
}

type MaybeIdentified struct {
	ID   *document.ID `doc:"id,id"`
	Note string       `doc:"note"`
}

type BadIdentity struct {
	ID string `doc:",id"`
}

type Tally struct {
	N int64 `doc:"n"`
}

type Labelled struct {
	Labels map[string]string `doc:"labels"`
}

type IntKeyed struct {
	Counts map[int]string `doc:"counts"`
}

type WithChannel struct {
	Name string   `doc:"name"`
	C    chan int `doc:"c"`
}

// HalfBad has a valid nested type and an unsupported field.
type HalfBad struct {
	Ship Shipment `doc:"ship"`
	Fn   func()   `doc:"fn"`
}

type Shipment struct {
	To string `doc:"to"`
}

// LegacyBlog claims the Blog name.
type LegacyBlog struct {
	Title string `doc:"title"`
}

func (LegacyBlog) DocumentName() string { return "Blog" }

type Base struct {
	Created time.Time `doc:"created"`
	Kind    string    `doc:"kind"`
}

// Embedded promotes Base's fields; its own Kind shadows the promoted one.
type Embedded struct {
	Base
	Kind  string `doc:"kind"`
	Title string `doc:"title"`
}

func ptr[T any](v T) *T { return &v }
