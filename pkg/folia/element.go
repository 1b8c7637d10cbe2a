package folia

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"unicode"
)

// TextElement is the name of the element holding text content.
const TextElement = "t"

// reservedAttrs are attribute names that are stored on the element itself.
// Any other field name used in an assignment is an inline annotation.
var reservedAttrs = map[string]bool{
	"class":         true,
	"set":           true,
	"annotator":     true,
	"annotatortype": true,
	"confidence":    true,
	"datetime":      true,
	"n":             true,
	"src":           true,
	"speaker":       true,
	"begintime":     true,
	"endtime":       true,
	"space":         true,
}

// IsReservedAttr reports whether name is stored as an attribute rather than
// as an inline annotation.
func IsReservedAttr(name string) bool {
	return reservedAttrs[name]
}

// Element is a node in a FoLiA document.
type Element struct {
	Name     string
	ID       string
	Attrs    []xml.Attr
	Children []*Element
	Data     string
	Parent   *Element
}

// NewElement returns a detached element.
func NewElement(name, id string) *Element {
	return &Element{Name: name, ID: id}
}

// Attr returns the value of the named attribute. "id" returns the xml:id.
func (e *Element) Attr(name string) (string, bool) {
	if name == "id" {
		return e.ID, e.ID != ""
	}
	for _, a := range e.Attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets or replaces an unqualified attribute.
func (e *Element) SetAttr(name, value string) {
	for i, a := range e.Attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
}

// Class returns the class attribute.
func (e *Element) Class() string {
	v, _ := e.Attr("class")
	return v
}

// Child returns the first direct child with the given name.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Text returns the text content of the element.
func (e *Element) Text() string {
	if e.Name == TextElement {
		return e.Data
	}
	if t := e.Child(TextElement); t != nil {
		return t.Data
	}

	var parts []string
	for _, c := range e.Children {
		if c.ID == "" {
			continue
		}
		if txt := c.Text(); txt != "" {
			parts = append(parts, txt)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(e.Data)
	}
	return strings.Join(parts, " ")
}

// SetText sets the text content, creating a <t> child when needed.
func (e *Element) SetText(text string) {
	if e.Name == TextElement {
		e.Data = text
		return
	}
	t := e.Child(TextElement)
	if t == nil {
		t = &Element{Name: TextElement, Parent: e}
		e.Children = append([]*Element{t}, e.Children...)
	}
	t.Data = text
}

// Annotation returns the class of the named inline annotation.
func (e *Element) Annotation(name string) (string, bool) {
	a := e.Child(name)
	if a == nil {
		return "", false
	}
	return a.Attr("class")
}

// SetAnnotation sets the class of the named inline annotation, creating it
// when absent.
func (e *Element) SetAnnotation(name, class string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	a := e.Child(name)
	if a == nil {
		a = &Element{Name: name, Parent: e}
		e.Children = append(e.Children, a)
	}
	a.SetAttr("class", class)
	return nil
}

// Field resolves a query field against the element: "text", "id", a
// reserved attribute, or an inline annotation class.
func (e *Element) Field(name string) (string, bool) {
	switch {
	case name == "text":
		t := e.Text()
		return t, t != ""
	case name == "type":
		return e.Name, true
	case name == "id":
		return e.ID, e.ID != ""
	case IsReservedAttr(name):
		return e.Attr(name)
	}
	if v, ok := e.Attr(name); ok {
		return v, true
	}
	return e.Annotation(name)
}

// SetField is the write counterpart of Field. The id is never writable.
func (e *Element) SetField(name, value string) error {
	switch {
	case name == "text":
		e.SetText(value)
	case name == "id", name == "type":
		return &FieldError{Field: name}
	case IsReservedAttr(name):
		e.SetAttr(name, value)
	default:
		return e.SetAnnotation(name, value)
	}
	return nil
}

// Walk visits e and its descendants in document order until fn returns
// false.
func (e *Element) Walk(fn func(*Element) bool) bool {
	if !fn(e) {
		return false
	}
	for _, c := range e.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Ancestor returns the nearest ancestor with the given name.
func (e *Element) Ancestor(name string) *Element {
	for p := e.Parent; p != nil; p = p.Parent {
		if p.Name == name {
			return p
		}
	}
	return nil
}

type jsonElement struct {
	Type     string            `json:"type"`
	ID       string            `json:"id,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Text     string            `json:"text,omitempty"`
	Children []*Element        `json:"children,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *Element) MarshalJSON() ([]byte, error) {
	je := jsonElement{
		Type: e.Name,
		ID:   e.ID,
		Text: e.Text(),
	}
	if len(e.Attrs) > 0 {
		je.Attrs = make(map[string]string, len(e.Attrs))
		for _, a := range e.Attrs {
			je.Attrs[a.Name.Local] = a.Value
		}
	}
	for _, c := range e.Children {
		if c.Name == TextElement {
			continue
		}
		je.Children = append(je.Children, c)
	}
	return json.Marshal(je)
}

// ValidName reports whether name is an XML name without a namespace
// prefix: a letter or underscore followed by letters, digits, '.', '-' or
// '_'.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && (r == '.' || r == '-' || unicode.IsDigit(r)):
		default:
			return false
		}
	}
	return true
}

// FieldError is returned when assigning a field that cannot be written.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return "field " + e.Field + " is read-only"
}
