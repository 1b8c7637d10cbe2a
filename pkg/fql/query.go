// Package fql implements the document query language accepted by the
// query endpoint: a small subset of the FoLiA Query Language (SELECT, EDIT,
// DELETE, ADD) and a Corpus Query Language form for matching word
// sequences.
package fql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp-forge/docserve/pkg/folia"
)

// Action is the operation a query performs.
type Action string

const (
	ActionSelect Action = "SELECT"
	ActionEdit   Action = "EDIT"
	ActionDelete Action = "DELETE"
	ActionAdd    Action = "ADD"
)

// Output formats.
const (
	FormatXML  = "xml"
	FormatJSON = "json"
	FormatText = "text"
)

// Condition operators.
const (
	OpEqual    = "="
	OpNotEqual = "!="
	OpContains = "CONTAINS"
	OpMatches  = "MATCHES"
)

// Condition is a single field test.
type Condition struct {
	Field string
	Op    string
	Value string

	re *regexp.Regexp
}

// Assignment sets a field on matched elements.
type Assignment struct {
	Field string
	Value string
}

// TokenPattern matches one word in a CQL query. An empty pattern matches
// any word.
type TokenPattern []Condition

// Query is a parsed query.
type Query struct {
	Raw string

	// Namespace and DocID come from a USE clause.
	Namespace string
	DocID     string

	Action  Action
	Type    string
	ID      string
	Where   []Condition
	Assign  []Assignment
	Target  string
	Pattern []TokenPattern
	Format  string
}

// Mutates reports whether executing the query can change the document.
func (q *Query) Mutates() bool {
	return q.Action == ActionEdit || q.Action == ActionDelete || q.Action == ActionAdd
}

// IsCQL reports whether the query was given in CQL form.
func (q *Query) IsCQL() bool {
	return len(q.Pattern) > 0
}

// ParseQueries parses one query per line. Blank lines and lines starting
// with '#' are ignored.
func ParseQueries(text string) ([]*Query, error) {
	var queries []*Query
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		q, err := Parse(line)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return nil, &SyntaxError{Query: text, Msg: "no query given"}
	}
	return queries, nil
}

// Parse parses a single query.
func Parse(input string) (*Query, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, toks: toks}
	q, err := p.parse()
	if err != nil {
		return nil, err
	}
	q.Raw = strings.TrimSpace(input)
	return q, nil
}

type parser struct {
	input string
	toks  []token
	pos   int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Query: p.input, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

// keyword reports whether the next token is the given keyword and consumes
// it if so.
func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokWord && strings.EqualFold(t.text, kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.keyword(kw) {
		t := p.peek()
		return p.errorf(t, "expected %s, got %q", kw, t.text)
	}
	return nil
}

// value accepts either a quoted string or a bare word.
func (p *parser) value() (string, error) {
	t := p.next()
	if t.kind != tokString && t.kind != tokWord {
		return "", p.errorf(t, "expected value, got %q", t.text)
	}
	return t.text, nil
}

func (p *parser) word(what string) (string, error) {
	t := p.next()
	if t.kind != tokWord {
		return "", p.errorf(t, "expected %s, got %q", what, t.text)
	}
	return t.text, nil
}

// name reads a word that is used as an element or field name.
func (p *parser) name(what string, wildcard bool) (string, error) {
	t := p.next()
	if t.kind != tokWord {
		return "", p.errorf(t, "expected %s, got %q", what, t.text)
	}
	if !(wildcard && t.text == "*") && !folia.ValidName(t.text) {
		return "", p.errorf(t, "invalid %s %q", what, t.text)
	}
	return t.text, nil
}

func (p *parser) parse() (*Query, error) {
	q := &Query{Format: FormatXML}

	if p.keyword("USE") {
		target, err := p.value()
		if err != nil {
			return nil, err
		}
		if ns, id, ok := strings.Cut(target, "/"); ok {
			q.Namespace, q.DocID = ns, id
		} else {
			q.DocID = target
		}
	}

	t := p.peek()
	switch {
	case t.kind == tokLBracket:
		if err := p.parseCQL(q); err != nil {
			return nil, err
		}
		q.Action = ActionSelect
		q.Type = "w"
	case t.kind == tokWord:
		if err := p.parseAction(q); err != nil {
			return nil, err
		}
	default:
		return nil, p.errorf(t, "expected action, got %q", t.text)
	}

	if p.keyword("FORMAT") {
		f, err := p.word("format")
		if err != nil {
			return nil, err
		}
		f = strings.ToLower(f)
		switch f {
		case FormatXML, FormatJSON, FormatText:
			q.Format = f
		default:
			return nil, p.errorf(p.toks[p.pos-1], "unknown format %q", f)
		}
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return q, nil
}

func (p *parser) parseAction(q *Query) error {
	t := p.next()
	q.Action = Action(strings.ToUpper(t.text))
	switch q.Action {
	case ActionSelect, ActionEdit, ActionDelete, ActionAdd:
	default:
		return p.errorf(t, "unknown action %q", t.text)
	}

	typ, err := p.name("element type", true)
	if err != nil {
		return err
	}
	if typ == "*" && q.Action == ActionAdd {
		return p.errorf(p.toks[p.pos-1], "ADD needs a concrete element type")
	}
	q.Type = typ

	if q.Action == ActionAdd {
		if err := p.expectKeyword("WITH"); err != nil {
			return err
		}
		if err := p.parseAssignments(q); err != nil {
			return err
		}
		if err := p.expectKeyword("FOR"); err != nil {
			return err
		}
		if err := p.expectKeyword("ID"); err != nil {
			return err
		}
		q.Target, err = p.value()
		return err
	}

	if p.keyword("ID") {
		if q.ID, err = p.value(); err != nil {
			return err
		}
	}

	if p.keyword("WHERE") {
		for {
			c, err := p.parseCondition()
			if err != nil {
				return err
			}
			q.Where = append(q.Where, c)
			if !p.keyword("AND") {
				break
			}
		}
	}

	if q.Action == ActionEdit {
		if err := p.expectKeyword("WITH"); err != nil {
			return err
		}
		return p.parseAssignments(q)
	}
	return nil
}

func (p *parser) parseCondition() (Condition, error) {
	field, err := p.name("field", false)
	if err != nil {
		return Condition{}, err
	}

	t := p.next()
	var op string
	switch {
	case t.kind == tokOp:
		op = t.text
	case t.kind == tokWord && strings.EqualFold(t.text, OpContains):
		op = OpContains
	case t.kind == tokWord && strings.EqualFold(t.text, OpMatches):
		op = OpMatches
	default:
		return Condition{}, p.errorf(t, "expected operator, got %q", t.text)
	}

	vt := p.peek()
	value, err := p.value()
	if err != nil {
		return Condition{}, err
	}

	c := Condition{Field: strings.ToLower(field), Op: op, Value: value}
	if op == OpMatches {
		re, err := regexp.Compile(value)
		if err != nil {
			return Condition{}, p.errorf(vt, "invalid regular expression: %v", err)
		}
		c.re = re
	}
	return c, nil
}

func (p *parser) parseAssignments(q *Query) error {
	for {
		t := p.peek()
		if t.kind != tokWord || isClauseKeyword(t.text) {
			break
		}
		p.pos++
		value, err := p.value()
		if err != nil {
			return err
		}
		field := strings.ToLower(t.text)
		if field == "id" || field == "type" {
			return p.errorf(t, "field %s cannot be assigned", field)
		}
		if !folia.ValidName(field) {
			return p.errorf(t, "invalid field name %q", t.text)
		}
		q.Assign = append(q.Assign, Assignment{Field: field, Value: value})
	}
	if len(q.Assign) == 0 {
		return p.errorf(p.peek(), "expected at least one assignment")
	}
	return nil
}

func (p *parser) parseCQL(q *Query) error {
	for p.peek().kind == tokLBracket {
		p.next()
		var pattern TokenPattern
		for p.peek().kind != tokRBracket {
			c, err := p.parseCondition()
			if err != nil {
				return err
			}
			if c.Op != OpEqual && c.Op != OpNotEqual {
				return p.errorf(p.toks[p.pos-1], "operator %s not supported in CQL", c.Op)
			}
			pattern = append(pattern, c)

			t := p.peek()
			if t.kind == tokAmp {
				p.next()
				continue
			}
			if t.kind != tokRBracket {
				return p.errorf(t, "expected & or ], got %q", t.text)
			}
		}
		p.next()
		q.Pattern = append(q.Pattern, pattern)
	}
	return nil
}

func isClauseKeyword(s string) bool {
	switch strings.ToUpper(s) {
	case "FOR", "FORMAT", "WHERE", "AND":
		return true
	}
	return false
}
