package xmltree

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Indent is the indentation unit of the canonical form.
const Indent = "\t"

var (
	textEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	)
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"\t", "&#x9;",
		"\n", "&#xA;",
		"\r", "&#xD;",
	)
)

// Write emits the canonical form of the document: an XML declaration, tab
// indentation, no blank lines, empty elements self-closed, text-only
// elements on a single line, and namespace declarations only on the root
// element. The output is deterministic for a given tree, so repeated runs
// diff cleanly.
func (d *Document) Write(w io.Writer) error {
	if d.Root == nil {
		return fmt.Errorf("write xml: document has no root element")
	}

	cw := &canonicalWriter{prefixes: d.writingPrefixes()}
	cw.buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	cw.node(d.Root, 0, true)

	_, err := w.Write(cw.buf.Bytes())
	if err != nil {
		return fmt.Errorf("write xml: %w", err)
	}
	return nil
}

// Bytes returns the canonical form as a byte slice.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writingPrefixes returns a copy of the prefix table covering every
// namespace the tree uses. Namespaces without a registered prefix get one
// assigned deterministically: the first element namespace encountered in
// document order becomes the default namespace if none is registered,
// later ones get ns1, ns2, and so on.
func (d *Document) writingPrefixes() map[string]string {
	prefixes := make(map[string]string, len(d.prefixes))
	used := make(map[string]bool, len(d.prefixes))
	for uri, p := range d.prefixes {
		prefixes[uri] = p
		used[p] = true
	}

	next := 1
	assign := func(uri string, element bool) {
		if uri == "" {
			return
		}
		if _, ok := prefixes[uri]; ok {
			return
		}
		// Attributes never use the default namespace.
		if element && !used[""] {
			prefixes[uri] = ""
			used[""] = true
			return
		}
		for {
			p := fmt.Sprintf("ns%d", next)
			next++
			if !used[p] {
				prefixes[uri] = p
				used[p] = true
				return
			}
		}
	}

	var walk func(n *Node)
	walk = func(n *Node) {
		assign(n.Name.Space, true)
		for _, a := range n.Attrs {
			assign(a.Name.Space, false)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(d.Root)
	return prefixes
}

type canonicalWriter struct {
	buf      bytes.Buffer
	prefixes map[string]string
}

func (cw *canonicalWriter) node(n *Node, depth int, root bool) {
	indent := strings.Repeat(Indent, depth)
	name := cw.qualify(n.Name)

	cw.buf.WriteString(indent)
	cw.buf.WriteByte('<')
	cw.buf.WriteString(name)
	if root {
		cw.declarations()
	}
	for _, a := range n.Attrs {
		cw.buf.WriteByte(' ')
		cw.buf.WriteString(cw.qualify(a.Name))
		cw.buf.WriteString(`="`)
		cw.buf.WriteString(attrEscaper.Replace(a.Value))
		cw.buf.WriteByte('"')
	}

	text, hasText := n.Text()
	switch {
	case len(n.Children) == 0 && !hasText:
		cw.buf.WriteString("/>\n")
	case len(n.Children) == 0:
		cw.buf.WriteByte('>')
		cw.buf.WriteString(textEscaper.Replace(text))
		cw.buf.WriteString("</" + name + ">\n")
	default:
		cw.buf.WriteString(">\n")
		if hasText {
			cw.buf.WriteString(indent + Indent + textEscaper.Replace(text) + "\n")
		}
		for _, c := range n.Children {
			cw.node(c, depth+1, false)
		}
		cw.buf.WriteString(indent + "</" + name + ">\n")
	}
}

// declarations writes the xmlns attributes on the root element: the default
// namespace first, then prefixed namespaces ordered by prefix.
func (cw *canonicalWriter) declarations() {
	type decl struct{ prefix, uri string }
	decls := make([]decl, 0, len(cw.prefixes))
	for uri, p := range cw.prefixes {
		decls = append(decls, decl{p, uri})
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].prefix < decls[j].prefix })

	for _, dc := range decls {
		if dc.prefix == "" {
			cw.buf.WriteString(` xmlns="` + attrEscaper.Replace(dc.uri) + `"`)
		} else {
			cw.buf.WriteString(` xmlns:` + dc.prefix + `="` + attrEscaper.Replace(dc.uri) + `"`)
		}
	}
}

func (cw *canonicalWriter) qualify(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	prefix := cw.prefixes[name.Space]
	if prefix == "" {
		return name.Local
	}
	return prefix + ":" + name.Local
}
