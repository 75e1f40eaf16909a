// Package xmltree provides a generic, namespace-aware XML document tree.
//
// The tree is deliberately small: a Document owns a single Root node, and a
// Node carries its namespace-qualified name, its attributes in document
// order, accumulated character data, and its children in document order.
// Element identity is always the (namespace, local name) pair from
// encoding/xml: two elements with the same local name in different
// namespaces are never equal.
//
// Parse builds the tree from any reader; Write emits the canonical,
// diff-stable form (tab indentation, no blank lines, namespace declarations
// on the root only). Surrounding whitespace in character data is treated as
// formatting noise: Text reports trimmed content, and the writer re-indents.
package xmltree

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Document is an ordered tree of nodes plus the namespace prefix table used
// when writing. It is owned by a single run and safe to mutate in place.
type Document struct {
	Root *Node

	// prefixes maps namespace URI to the prefix used when writing.
	// The empty prefix is the default namespace.
	prefixes map[string]string
}

// Node is one element of the document tree.
type Node struct {
	// Name is the namespace-qualified tag: Name.Space is the namespace URI
	// (empty for no namespace), Name.Local the local name.
	Name xml.Name

	// Attrs holds the element's attributes in document order. Namespace
	// declarations (xmlns, xmlns:*) are not kept here; they are consumed at
	// parse time and re-synthesized on the root when writing.
	Attrs []xml.Attr

	// CharData is the accumulated raw character data of the element.
	CharData string

	// Children holds the child elements in document order.
	Children []*Node
}

// NewDocument wraps root in a Document with no registered prefixes.
// Use SetPrefix to control the namespace prefixes used when writing.
func NewDocument(root *Node) *Document {
	return &Document{Root: root, prefixes: make(map[string]string)}
}

// SetPrefix registers the prefix to use for a namespace URI when writing.
// The empty prefix makes uri the default namespace. The first registration
// for a URI wins.
func (d *Document) SetPrefix(uri, prefix string) {
	if d.prefixes == nil {
		d.prefixes = make(map[string]string)
	}
	if _, ok := d.prefixes[uri]; !ok {
		d.prefixes[uri] = prefix
	}
}

// Prefix reports the writing prefix registered for a namespace URI.
func (d *Document) Prefix(uri string) (string, bool) {
	p, ok := d.prefixes[uri]
	return p, ok
}

// Attr returns the value of the named unprefixed attribute. The boolean is
// false when the attribute is not set; absence is not an error.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// Text returns the element's character data with surrounding whitespace
// trimmed. The boolean is false when the element has no text content or
// only whitespace.
func (n *Node) Text() (string, bool) {
	t := strings.TrimSpace(n.CharData)
	return t, t != ""
}

// ChildrenNamed returns the direct children whose qualified name equals
// name, in document order.
func (n *Node) ChildrenNamed(name xml.Name) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Clark renders a qualified name in Clark notation: "{namespace}local", or
// just "local" when the name has no namespace.
func Clark(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return "{" + name.Space + "}" + name.Local
}

// ParseClark parses Clark notation back into a qualified name.
func ParseClark(s string) (xml.Name, error) {
	if strings.HasPrefix(s, "{") {
		end := strings.Index(s, "}")
		if end < 0 {
			return xml.Name{}, fmt.Errorf("malformed Clark name %q: missing '}'", s)
		}
		local := s[end+1:]
		if local == "" || strings.ContainsAny(local, "{}") {
			return xml.Name{}, fmt.Errorf("malformed Clark name %q: bad local part", s)
		}
		return xml.Name{Space: s[1:end], Local: local}, nil
	}
	if s == "" || strings.ContainsAny(s, "{}") {
		return xml.Name{}, fmt.Errorf("malformed Clark name %q", s)
	}
	return xml.Name{Local: s}, nil
}
