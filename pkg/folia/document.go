package folia

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Namespace is the default XML namespace of FoLiA documents.
const Namespace = "http://ilk.uvt.nl/folia"

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

var (
	// ErrNotFound is returned when an element ID is not in the document.
	ErrNotFound = errors.New("element not found")

	// ErrDuplicateID is returned when two elements share an xml:id.
	ErrDuplicateID = errors.New("duplicate xml:id")

	// ErrNoDocumentID is returned when the root element has no xml:id.
	ErrNoDocumentID = errors.New("document has no xml:id")

	// ErrInvalidDocument is returned for input that is not well-formed.
	ErrInvalidDocument = errors.New("error parsing document")

	// ErrInvalidName is returned for element or annotation names that are
	// not valid unprefixed XML names.
	ErrInvalidName = errors.New("invalid element name")
)

// Document is a parsed FoLiA document.
type Document struct {
	Root *Element

	// nsDecls are the namespace declarations of the root element, written
	// back verbatim.
	nsDecls  []xml.Attr
	prefixes map[string]string
	index    map[string]*Element
}

// ID returns the document identifier (the root xml:id).
func (d *Document) ID() string {
	return d.Root.ID
}

// New returns an empty document with a text body.
func New(id string) *Document {
	root := &Element{Name: "FoLiA", ID: id}
	root.SetAttr("version", "2.5")
	d := &Document{
		Root:     root,
		prefixes: map[string]string{},
		index:    map[string]*Element{id: root},
	}
	d.nsDecls = []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: Namespace}}
	root.Children = append(root.Children, &Element{Name: "metadata", Parent: root})
	root.Children[0].SetAttr("type", "native")
	body := &Element{Name: "text", ID: id + ".text", Parent: root}
	root.Children = append(root.Children, body)
	d.index[body.ID] = body
	return d
}

// Parse reads a FoLiA document.
func Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	d := &Document{
		prefixes: map[string]string{},
		index:    map[string]*Element{},
	}

	var stack []*Element
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: t.Name.Local}
			for _, a := range t.Attr {
				switch {
				case a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns"):
					if len(stack) == 0 {
						d.nsDecls = append(d.nsDecls, a)
						if a.Name.Space == "xmlns" {
							d.prefixes[a.Value] = a.Name.Local
						}
					}
				case a.Name.Space == xmlNamespace && a.Name.Local == "id":
					el.ID = a.Value
				default:
					el.Attrs = append(el.Attrs, a)
				}
			}
			if el.ID != "" {
				if _, dup := d.index[el.ID]; dup {
					return nil, fmt.Errorf("%w: %s", ErrDuplicateID, el.ID)
				}
				d.index[el.ID] = el
			}
			if len(stack) == 0 {
				if d.Root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrInvalidDocument)
				}
				d.Root = el
			} else {
				parent := stack[len(stack)-1]
				el.Parent = parent
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unexpected end element %s", ErrInvalidDocument, t.Name.Local)
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			el := stack[len(stack)-1]
			if el.Name == TextElement || strings.TrimSpace(string(t)) != "" {
				el.Data += string(t)
			}
		}
	}

	if d.Root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrInvalidDocument)
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: unclosed element %s", ErrInvalidDocument, stack[len(stack)-1].Name)
	}
	if d.Root.ID == "" {
		return nil, ErrNoDocumentID
	}
	return d, nil
}

// Element returns the element with the given xml:id.
func (d *Document) Element(id string) (*Element, error) {
	el, ok := d.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return el, nil
}

// Len returns the number of indexed elements.
func (d *Document) Len() int {
	return len(d.index)
}

// Select returns all elements of the given type in document order. The
// type "*" matches every element carrying an xml:id.
func (d *Document) Select(typ string) []*Element {
	var out []*Element
	d.Root.Walk(func(e *Element) bool {
		if (typ == "*" && e.ID != "") || e.Name == typ {
			out = append(out, e)
		}
		return true
	})
	return out
}

// Append adds a new element of the given type as the last child of parent
// and assigns it a generated ID of the form parent.type.N.
func (d *Document) Append(parent *Element, typ string) (*Element, error) {
	if !ValidName(typ) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, typ)
	}
	if parent.ID != "" {
		if _, err := d.Element(parent.ID); err != nil {
			return nil, err
		}
	}

	n := 1
	for _, c := range parent.Children {
		if c.Name == typ {
			n++
		}
	}
	base := parent.ID
	if base == "" {
		base = d.ID()
	}
	id := base + "." + typ + "." + strconv.Itoa(n)
	for {
		if _, taken := d.index[id]; !taken {
			break
		}
		n++
		id = base + "." + typ + "." + strconv.Itoa(n)
	}

	el := &Element{Name: typ, ID: id, Parent: parent}
	parent.Children = append(parent.Children, el)
	d.index[id] = el
	return el, nil
}

// Remove detaches el and its descendants from the document. The root
// cannot be removed.
func (d *Document) Remove(el *Element) error {
	if el == d.Root || el.Parent == nil {
		return fmt.Errorf("cannot remove root element")
	}

	parent := el.Parent
	for i, c := range parent.Children {
		if c == el {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			break
		}
	}
	el.Walk(func(e *Element) bool {
		if e.ID != "" {
			delete(d.index, e.ID)
		}
		return true
	})
	el.Parent = nil
	return nil
}

// WriteTo writes the document as indented XML.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	cw.writeString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	d.writeElement(cw, d.Root, 0, true)
	cw.writeString("\n")
	if cw.err == nil {
		cw.err = cw.w.Flush()
	}
	return cw.n, cw.err
}

// String returns the serialized document.
func (d *Document) String() string {
	var b strings.Builder
	_, _ = d.WriteTo(&b)
	return b.String()
}

// ElementXML returns the serialization of a single element without the
// XML declaration.
func (d *Document) ElementXML(el *Element) string {
	var b strings.Builder
	cw := &countingWriter{w: bufio.NewWriter(&b)}
	d.writeElement(cw, el, 0, false)
	_ = cw.w.Flush()
	return b.String()
}

func (d *Document) writeElement(cw *countingWriter, el *Element, depth int, root bool) {
	indent := strings.Repeat("  ", depth)
	cw.writeString(indent + "<" + el.Name)
	if root {
		for _, a := range d.nsDecls {
			if a.Name.Space == "xmlns" {
				cw.writeAttr("xmlns:"+a.Name.Local, a.Value)
			} else {
				cw.writeAttr("xmlns", a.Value)
			}
		}
	}
	if el.ID != "" {
		cw.writeAttr("xml:id", el.ID)
	}
	for _, a := range el.Attrs {
		cw.writeAttr(d.qualify(a.Name), a.Value)
	}

	if len(el.Children) == 0 && el.Data == "" {
		cw.writeString("/>")
		return
	}
	cw.writeString(">")
	if el.Data != "" {
		cw.writeText(el.Data)
	}
	if len(el.Children) > 0 {
		for _, c := range el.Children {
			cw.writeString("\n")
			d.writeElement(cw, c, depth+1, false)
		}
		cw.writeString("\n" + indent)
	}
	cw.writeString("</" + el.Name + ">")
}

func (d *Document) qualify(name xml.Name) string {
	switch name.Space {
	case "":
		return name.Local
	case xmlNamespace:
		return "xml:" + name.Local
	}
	if prefix, ok := d.prefixes[name.Space]; ok {
		return prefix + ":" + name.Local
	}
	return name.Local
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) writeString(s string) {
	if c.err != nil {
		return
	}
	n, err := c.w.WriteString(s)
	c.n += int64(n)
	c.err = err
}

func (c *countingWriter) writeText(s string) {
	if c.err != nil {
		return
	}
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		c.err = err
		return
	}
	c.writeString(b.String())
}

func (c *countingWriter) writeAttr(name, value string) {
	c.writeString(" " + name + `="`)
	c.writeText(value)
	c.writeString(`"`)
}
