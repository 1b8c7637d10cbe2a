package fql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp-forge/docserve/pkg/folia"
)

// Result is the outcome of executing a query against a document.
type Result struct {
	Query    *Query
	Elements []*folia.Element

	// Changed holds the IDs of elements whose content changed. Deleted
	// holds the IDs of removed elements.
	Changed []string
	Deleted []string

	doc *folia.Document
}

// Modified reports whether the query changed the document.
func (r *Result) Modified() bool {
	return len(r.Changed) > 0 || len(r.Deleted) > 0
}

// Execute runs the query against doc. Callers must serialize concurrent
// execution against the same document.
func (q *Query) Execute(doc *folia.Document) (*Result, error) {
	res := &Result{Query: q, doc: doc}

	switch {
	case q.IsCQL():
		res.Elements = q.matchCQL(doc)
		return res, nil
	case q.Action == ActionAdd:
		return res, q.executeAdd(doc, res)
	}

	elements, err := q.candidates(doc)
	if err != nil {
		return nil, err
	}

	switch q.Action {
	case ActionSelect:
		res.Elements = elements
	case ActionEdit:
		seen := map[string]bool{}
		for _, el := range elements {
			for _, a := range q.Assign {
				if err := el.SetField(a.Field, a.Value); err != nil {
					return nil, err
				}
			}
			if id := owningID(el); id != "" && !seen[id] {
				seen[id] = true
				res.Changed = append(res.Changed, id)
			}
		}
		res.Elements = elements
	case ActionDelete:
		for _, el := range elements {
			// An ancestor may already have been removed together with el.
			if !attached(doc, el) {
				continue
			}
			parentID := owningID(el.Parent)
			if err := doc.Remove(el); err != nil {
				return nil, err
			}
			if el.ID != "" {
				res.Deleted = append(res.Deleted, el.ID)
			} else if parentID != "" {
				res.Changed = append(res.Changed, parentID)
			}
		}
	}
	return res, nil
}

func (q *Query) executeAdd(doc *folia.Document, res *Result) error {
	target, err := doc.Element(q.Target)
	if err != nil {
		return err
	}
	el, err := doc.Append(target, q.Type)
	if err != nil {
		return err
	}
	for _, a := range q.Assign {
		if err := el.SetField(a.Field, a.Value); err != nil {
			return err
		}
	}
	res.Elements = []*folia.Element{el}
	res.Changed = []string{target.ID, el.ID}
	return nil
}

func (q *Query) candidates(doc *folia.Document) ([]*folia.Element, error) {
	var elements []*folia.Element
	if q.ID != "" {
		el, err := doc.Element(q.ID)
		if err != nil {
			return nil, err
		}
		if q.Type != "*" && el.Name != q.Type {
			return nil, fmt.Errorf("%w: %s is a %s, not a %s", folia.ErrNotFound, q.ID, el.Name, q.Type)
		}
		elements = []*folia.Element{el}
	} else {
		elements = doc.Select(q.Type)
	}

	if len(q.Where) == 0 {
		return elements, nil
	}
	var out []*folia.Element
	for _, el := range elements {
		if matchAll(el, q.Where) {
			out = append(out, el)
		}
	}
	return out, nil
}

func (q *Query) matchCQL(doc *folia.Document) []*folia.Element {
	var out []*folia.Element
	for _, s := range doc.Select("s") {
		var words []*folia.Element
		s.Walk(func(e *folia.Element) bool {
			if e.Name == "w" && e.Ancestor("s") == s {
				words = append(words, e)
			}
			return true
		})

		for start := 0; start+len(q.Pattern) <= len(words); start++ {
			ok := true
			for i, pattern := range q.Pattern {
				if !matchAll(words[start+i], pattern) {
					ok = false
					break
				}
			}
			if ok {
				out = append(out, words[start:start+len(q.Pattern)]...)
			}
		}
	}
	return out
}

func matchAll(el *folia.Element, conds []Condition) bool {
	for _, c := range conds {
		if !c.Match(el) {
			return false
		}
	}
	return true
}

// Match evaluates the condition against an element. A missing field only
// satisfies !=.
func (c Condition) Match(el *folia.Element) bool {
	v, ok := el.Field(c.Field)
	switch c.Op {
	case OpEqual:
		return ok && v == c.Value
	case OpNotEqual:
		return !ok || v != c.Value
	case OpContains:
		return ok && strings.Contains(v, c.Value)
	case OpMatches:
		return ok && c.re != nil && c.re.MatchString(v)
	}
	return false
}

func attached(doc *folia.Document, el *folia.Element) bool {
	e := el
	for e.Parent != nil {
		e = e.Parent
	}
	return e == doc.Root
}

// owningID returns the ID of el or, for inline annotations, of the nearest
// ancestor that has one.
func owningID(el *folia.Element) string {
	for e := el; e != nil; e = e.Parent {
		if e.ID != "" {
			return e.ID
		}
	}
	return ""
}

type jsonResult struct {
	Query    string           `json:"query"`
	Count    int              `json:"count"`
	Elements []*folia.Element `json:"elements"`
	Changed  []string         `json:"changed,omitempty"`
	Deleted  []string         `json:"deleted,omitempty"`
}

// Format renders the result in the given format; an empty format uses the
// query's FORMAT clause.
func (r *Result) Format(format string) ([]byte, error) {
	if format == "" {
		format = r.Query.Format
	}

	switch format {
	case FormatJSON:
		elements := r.Elements
		if elements == nil {
			elements = []*folia.Element{}
		}
		return json.Marshal(jsonResult{
			Query:    r.Query.Raw,
			Count:    len(r.Elements),
			Elements: elements,
			Changed:  r.Changed,
			Deleted:  r.Deleted,
		})
	case FormatText:
		var b bytes.Buffer
		for _, el := range r.Elements {
			fmt.Fprintf(&b, "%s\t%s\n", owningID(el), el.Text())
		}
		return b.Bytes(), nil
	case FormatXML:
		var b bytes.Buffer
		b.WriteString("<results>\n")
		for _, el := range r.Elements {
			b.WriteString(r.doc.ElementXML(el))
			b.WriteString("\n")
		}
		b.WriteString("</results>\n")
		return b.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}
