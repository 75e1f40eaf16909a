// Package filter knows the shape of a Gmail mail-filter export: an Atom
// feed whose entries each describe one filter through apps:property
// children. It locates entries, extracts the label every filter files
// under, and produces the canonical label-sorted entry order.
package filter

import (
	"encoding/xml"
	"errors"
	"fmt"
	"sort"

	"github.com/d-bohls/gmail-filters-curator/pkg/xmltree"
)

// Namespaces of a Gmail filter export.
const (
	AtomNamespace = "http://www.w3.org/2005/Atom"
	AppsNamespace = "http://schemas.google.com/apps/2006"
)

// Attribute and property names on apps:property elements.
const (
	NameAttr      = "name"
	ValueAttr     = "value"
	LabelProperty = "label"
)

// Well-known element names.
var (
	FeedName     = xml.Name{Space: AtomNamespace, Local: "feed"}
	EntryName    = xml.Name{Space: AtomNamespace, Local: "entry"}
	PropertyName = xml.Name{Space: AppsNamespace, Local: "property"}
)

// Filter extraction errors.
var (
	ErrNotAFeed     = errors.New("document root is not an Atom feed")
	ErrMissingLabel = errors.New("entry has no label property")
	ErrEmptyLabel   = errors.New("entry label property has an empty value")
)

// Entries returns the feed's entry elements in document order. The
// slice shares nodes with the document.
func Entries(doc *xmltree.Document) ([]*xmltree.Node, error) {
	if doc.Root == nil || doc.Root.Name != FeedName {
		return nil, fmt.Errorf("filter: %w", ErrNotAFeed)
	}
	return doc.Root.ChildrenNamed(EntryName), nil
}

// Label extracts the label an entry files mail under: the value
// attribute of the first apps:property child whose name attribute is
// "label". Later duplicates are ignored.
func Label(entry *xmltree.Node) (string, error) {
	for _, prop := range entry.ChildrenNamed(PropertyName) {
		name, ok := prop.Attr(NameAttr)
		if !ok || name != LabelProperty {
			continue
		}
		value, ok := prop.Attr(ValueAttr)
		if !ok || value == "" {
			return "", fmt.Errorf("filter: %w", ErrEmptyLabel)
		}
		return value, nil
	}
	return "", fmt.Errorf("filter: %w", ErrMissingLabel)
}

// SortEntries returns the entries reordered by label, ascending by
// code point. The sort is stable, so entries sharing a label keep
// their document order. The input slice is not modified.
func SortEntries(entries []*xmltree.Node) ([]*xmltree.Node, error) {
	labels := make([]string, len(entries))
	for i, entry := range entries {
		label, err := Label(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		labels[i] = label
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return labels[order[a]] < labels[order[b]]
	})

	sorted := make([]*xmltree.Node, len(entries))
	for i, idx := range order {
		sorted[i] = entries[idx]
	}
	return sorted, nil
}

// Reorder rewrites the feed's children so that every non-entry child
// keeps its position at the front, in document order, and the given
// entries follow at the end. Callers pass the SortEntries result.
func Reorder(doc *xmltree.Document, entries []*xmltree.Node) error {
	if doc.Root == nil || doc.Root.Name != FeedName {
		return fmt.Errorf("filter: %w", ErrNotAFeed)
	}

	children := make([]*xmltree.Node, 0, len(doc.Root.Children))
	for _, child := range doc.Root.Children {
		if child.Name != EntryName {
			children = append(children, child)
		}
	}
	children = append(children, entries...)
	doc.Root.Children = children
	return nil
}
