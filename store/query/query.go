// Package query parses and evaluates the minimal query language stores
// accept:
//
//	SELECT FROM <Class> [WHERE <field> = <literal> {AND <field> = <literal>}] [LIMIT <n>]
//
// Keywords are case-insensitive. A literal is a single- or double-quoted
// string, a number, true, false or null. The field @id matches the document
// identifier.
package query

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/reoring/docbind/document"
)

// ErrSyntax is returned for query text that does not parse.
var ErrSyntax = errors.New("query: syntax error")

// Query is a parsed query.
type Query struct {
	Class string
	Where []Cond
	// Limit caps the number of results; zero means no limit.
	Limit int
}

// Cond is one equality condition.
type Cond struct {
	Field string
	// Value is string, int64, float64, bool or nil.
	Value any
}

// Select returns a query over every document of class.
func Select(class string) *Query { return &Query{Class: class} }

// Eq returns q with an added equality condition.
func (q *Query) Eq(field string, v any) *Query {
	q.Where = append(q.Where, Cond{Field: field, Value: normalize(v)})
	return q
}

// Take returns q with its limit set to n.
func (q *Query) Take(n int) *Query {
	q.Limit = n
	return q
}

// String renders q in the text form Parse accepts.
func (q *Query) String() string {
	var b strings.Builder
	b.WriteString("SELECT FROM ")
	b.WriteString(q.Class)
	for i, c := range q.Where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(c.Field)
		b.WriteString(" = ")
		b.WriteString(literal(c.Value))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	return b.String()
}

func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

// Match reports whether doc satisfies every condition. The class is not
// checked; stores select by class before matching.
func (q *Query) Match(doc *document.Document) bool {
	for _, c := range q.Where {
		var v any
		if c.Field == document.KeyID {
			v = doc.ID.String()
		} else {
			v, _ = doc.Get(c.Field)
		}
		if !equal(v, c.Value) {
			return false
		}
	}
	return true
}

// Apply filters docs with Match and applies the limit.
func (q *Query) Apply(docs []*document.Document) []*document.Document {
	out := make([]*document.Document, 0, len(docs))
	for _, d := range docs {
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
		if q.Match(d) {
			out = append(out, d)
		}
	}
	return out
}

// equal compares a stored field value with a literal. Numbers compare by
// value whatever their stored width; times and identifiers compare by their
// text form.
func equal(stored, lit any) bool {
	if stored == nil || lit == nil {
		return stored == nil && lit == nil
	}
	switch l := lit.(type) {
	case string:
		switch s := stored.(type) {
		case string:
			return s == l
		case time.Time:
			t, err := time.Parse(time.RFC3339Nano, l)
			return err == nil && t.Equal(s)
		case document.ID:
			return s.String() == l
		case interface{ Float64() (float64, error) }:
			// json.Number is a number, not text
			return false
		}
		if rv := reflect.ValueOf(stored); rv.Kind() == reflect.String {
			return rv.String() == l
		}
		return false
	case bool:
		b, ok := stored.(bool)
		return ok && b == l
	}
	if li, ok := toInt(lit); ok {
		if si, ok := toInt(stored); ok {
			return si == li
		}
	}
	lf, ok := toFloat(lit)
	if !ok {
		return false
	}
	sf, ok := toFloat(stored)
	return ok && sf == lf
}

// toInt reports v as an int64 when it is held as an integer, so large values
// compare exactly.
func toInt(v any) (int64, bool) {
	if n, ok := v.(interface{ Int64() (int64, error) }); ok {
		i, err := n.Int64()
		return i, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	if n, ok := v.(interface{ Float64() (float64, error) }); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f, !math.IsNaN(f)
	}
	return 0, false
}

// normalize maps a Go literal onto the value domain Parse produces.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64, int64:
		return v
	case document.ID:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u)
		}
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return fmt.Sprint(v)
}
