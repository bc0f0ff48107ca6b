package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokNumber
	tokEq
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse parses query text.
func Parse(text string) (*Query, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.query()
}

// MustParse is like Parse but panics on error.
func MustParse(text string) *Query {
	q, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return q
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokWord && strings.EqualFold(t.text, kw) {
		p.i++
		return true
	}
	return false
}

func (p *parser) expect(kw string) error {
	if !p.keyword(kw) {
		return p.errorf("expected %s", kw)
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	t := p.peek()
	at := "end of input"
	if t.kind != tokEOF {
		at = fmt.Sprintf("%q at offset %d", t.text, t.pos)
	}
	return fmt.Errorf("%w: %s, got %s", ErrSyntax, fmt.Sprintf(format, args...), at)
}

func (p *parser) query() (*Query, error) {
	if err := p.expect("SELECT"); err != nil {
		return nil, err
	}
	if err := p.expect("FROM"); err != nil {
		return nil, err
	}
	class := p.peek()
	if class.kind != tokWord {
		return nil, p.errorf("expected class name")
	}
	p.next()
	q := &Query{Class: class.text}

	if p.keyword("WHERE") {
		for {
			c, err := p.cond()
			if err != nil {
				return nil, err
			}
			q.Where = append(q.Where, c)
			if !p.keyword("AND") {
				break
			}
		}
	}
	if p.keyword("LIMIT") {
		t := p.peek()
		n, err := strconv.Atoi(t.text)
		if t.kind != tokNumber || err != nil || n <= 0 {
			return nil, p.errorf("expected positive integer limit")
		}
		p.next()
		q.Limit = n
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected input")
	}
	return q, nil
}

func (p *parser) cond() (Cond, error) {
	f := p.peek()
	if f.kind != tokWord {
		return Cond{}, p.errorf("expected field name")
	}
	p.next()
	if p.peek().kind != tokEq {
		return Cond{}, p.errorf("expected =")
	}
	p.next()
	v, err := p.literal()
	if err != nil {
		return Cond{}, err
	}
	return Cond{Field: f.text, Value: v}, nil
}

func (p *parser) literal() (any, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.next()
		return t.text, nil
	case tokNumber:
		p.next()
		if i, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q at offset %d", ErrSyntax, t.text, t.pos)
		}
		return f, nil
	case tokWord:
		switch strings.ToLower(t.text) {
		case "true":
			p.next()
			return true, nil
		case "false":
			p.next()
			return false, nil
		case "null":
			p.next()
			return nil, nil
		}
	}
	return nil, p.errorf("expected literal")
}

func lex(s string) ([]token, error) {
	var out []token
	for i := 0; i < len(s); {
		r, w := utf8.DecodeRuneInString(s[i:])
		switch {
		case unicode.IsSpace(r):
			i += w
		case r == '=':
			out = append(out, token{kind: tokEq, text: "=", pos: i})
			i += w
		case r == '\'' || r == '"':
			text, n, err := lexString(s[i:], byte(r))
			if err != nil {
				return nil, fmt.Errorf("%w: %v at offset %d", ErrSyntax, err, i)
			}
			out = append(out, token{kind: tokString, text: text, pos: i})
			i += n
		case r == '-' || r == '+' || unicode.IsDigit(r):
			j := i + 1
			for j < len(s) && strings.IndexByte("0123456789.eE+-", s[j]) >= 0 {
				j++
			}
			out = append(out, token{kind: tokNumber, text: s[i:j], pos: i})
			i = j
		case isWordRune(r):
			j := i
			for j < len(s) {
				r, w := utf8.DecodeRuneInString(s[j:])
				if !isWordRune(r) {
					break
				}
				j += w
			}
			out = append(out, token{kind: tokWord, text: s[i:j], pos: i})
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, r, i)
		}
	}
	return append(out, token{kind: tokEOF, pos: len(s)}), nil
}

func isWordRune(r rune) bool {
	return r == '_' || r == '@' || r == '.' || r == '/' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// lexString reads a quoted string starting at s[0]. A doubled quote stands
// for one quote character.
func lexString(s string, quote byte) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != quote {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			b.WriteByte(quote)
			i++
			continue
		}
		return b.String(), i + 1, nil
	}
	return "", 0, fmt.Errorf("unterminated string")
}
