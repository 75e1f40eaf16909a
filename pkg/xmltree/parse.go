package xmltree

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Parse reads an XML document into a tree. Namespace declarations are
// resolved by the decoder and recorded in the document's prefix table so
// that writing reuses the input's prefixes. Comments and processing
// instructions are dropped. Documents that declare a non-UTF-8 encoding are
// transcoded on the fly.
func Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	doc := &Document{prefixes: make(map[string]string)}
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name}
			for _, a := range t.Attr {
				switch {
				case a.Name.Space == "" && a.Name.Local == "xmlns":
					doc.SetPrefix(a.Value, "")
				case a.Name.Space == "xmlns":
					doc.SetPrefix(a.Value, a.Name.Local)
				default:
					node.Attrs = append(node.Attrs, a)
				}
			}
			if len(stack) == 0 {
				if doc.Root != nil {
					return nil, fmt.Errorf("parse xml: multiple root elements")
				}
				doc.Root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].CharData += string(t)
			} else if len(bytes.TrimSpace(t)) > 0 {
				return nil, fmt.Errorf("parse xml: text outside root element")
			}
		}
	}

	if doc.Root == nil {
		return nil, fmt.Errorf("parse xml: document has no root element")
	}
	return doc, nil
}

// ParseFile reads and parses the XML document at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// charsetReader decodes documents whose XML declaration names a non-UTF-8
// encoding, using the WHATWG encoding index.
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported document charset %q: %w", charset, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
