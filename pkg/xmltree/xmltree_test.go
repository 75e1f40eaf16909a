package xmltree

import (
	"encoding/xml"
	"strings"
	"testing"
)

const feedInput = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:apps="http://schemas.google.com/apps/2006">
	<title>Mail Filters</title>
	<entry>
		<category term="filter"/>
		<title>Mail Filter</title>
		<content/>
		<apps:property name="label" value="Receipts"/>
	</entry>
</feed>
`

func TestParse_ResolvesNamespaces(t *testing.T) {
	doc, err := Parse(strings.NewReader(feedInput))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	atom := "http://www.w3.org/2005/Atom"
	apps := "http://schemas.google.com/apps/2006"

	if doc.Root.Name != (xml.Name{Space: atom, Local: "feed"}) {
		t.Errorf("root name = %v", doc.Root.Name)
	}
	if p, ok := doc.Prefix(atom); !ok || p != "" {
		t.Errorf("atom prefix = %q, %v; want default", p, ok)
	}
	if p, ok := doc.Prefix(apps); !ok || p != "apps" {
		t.Errorf("apps prefix = %q, %v", p, ok)
	}

	entries := doc.Root.ChildrenNamed(xml.Name{Space: atom, Local: "entry"})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	props := entries[0].ChildrenNamed(xml.Name{Space: apps, Local: "property"})
	if len(props) != 1 {
		t.Fatalf("expected 1 property, got %d", len(props))
	}
	if v, ok := props[0].Attr("value"); !ok || v != "Receipts" {
		t.Errorf("property value = %q, %v", v, ok)
	}

	// xmlns declarations must not survive as ordinary attributes.
	for _, a := range doc.Root.Attrs {
		if a.Name.Local == "xmlns" || a.Name.Space == "xmlns" {
			t.Errorf("namespace declaration kept as attribute: %v", a.Name)
		}
	}
}

func TestParse_TextAndAttrAbsence(t *testing.T) {
	doc, err := Parse(strings.NewReader(feedInput))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	title := doc.Root.Children[0]
	if text, ok := title.Text(); !ok || text != "Mail Filters" {
		t.Errorf("title text = %q, %v", text, ok)
	}
	if _, ok := title.Attr("term"); ok {
		t.Error("title should have no term attribute")
	}

	// The entry element contains only whitespace between children.
	entry := doc.Root.Children[1]
	if text, ok := entry.Text(); ok {
		t.Errorf("entry should have no text, got %q", text)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":             "",
		"no root":           "<?xml version=\"1.0\"?>\n",
		"unclosed":          "<a><b></a>",
		"two roots":         "<a/><b/>",
		"text outside root": "<a/>junk",
	}
	for name, input := range cases {
		if _, err := Parse(strings.NewReader(input)); err == nil {
			t.Errorf("%s: expected parse error", name)
		}
	}
}

func TestParse_DeclaredCharset(t *testing.T) {
	// "café" in ISO-8859-1: the é is a single 0xE9 byte.
	input := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><label>caf`), 0xE9)
	input = append(input, []byte("</label>")...)

	doc, err := Parse(strings.NewReader(string(input)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if text, _ := doc.Root.Text(); text != "café" {
		t.Errorf("text = %q, want café", text)
	}
}

func TestClark_RoundTrip(t *testing.T) {
	name := xml.Name{Space: "http://www.w3.org/2005/Atom", Local: "entry"}
	s := Clark(name)
	if s != "{http://www.w3.org/2005/Atom}entry" {
		t.Errorf("Clark = %q", s)
	}
	back, err := ParseClark(s)
	if err != nil {
		t.Fatalf("ParseClark: %v", err)
	}
	if back != name {
		t.Errorf("round trip = %v", back)
	}

	plain, err := ParseClark("title")
	if err != nil {
		t.Fatalf("ParseClark(title): %v", err)
	}
	if plain != (xml.Name{Local: "title"}) {
		t.Errorf("plain name = %v", plain)
	}
}

func TestParseClark_Malformed(t *testing.T) {
	for _, s := range []string{"", "{unterminated", "{uri}", "{uri}a{b", "a}b"} {
		if _, err := ParseClark(s); err == nil {
			t.Errorf("%q: expected error", s)
		}
	}
}

func TestWrite_Canonical(t *testing.T) {
	atom := "http://www.w3.org/2005/Atom"
	apps := "http://schemas.google.com/apps/2006"

	root := &Node{
		Name: xml.Name{Space: atom, Local: "feed"},
		Children: []*Node{
			{Name: xml.Name{Space: atom, Local: "title"}, CharData: "Mail Filters"},
			{
				Name: xml.Name{Space: atom, Local: "entry"},
				Children: []*Node{
					{
						Name:  xml.Name{Space: atom, Local: "category"},
						Attrs: []xml.Attr{{Name: xml.Name{Local: "term"}, Value: "filter"}},
					},
					{Name: xml.Name{Space: atom, Local: "content"}},
					{
						Name: xml.Name{Space: apps, Local: "property"},
						Attrs: []xml.Attr{
							{Name: xml.Name{Local: "name"}, Value: "label"},
							{Name: xml.Name{Local: "value"}, Value: "A&B"},
						},
					},
				},
			},
		},
	}
	doc := NewDocument(root)
	doc.SetPrefix(atom, "")
	doc.SetPrefix(apps, "apps")

	got, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	want := `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:apps="http://schemas.google.com/apps/2006">
	<title>Mail Filters</title>
	<entry>
		<category term="filter"/>
		<content/>
		<apps:property name="label" value="A&amp;B"/>
	</entry>
</feed>
`
	if string(got) != want {
		t.Errorf("canonical form mismatch:\n--- got ---\n%s--- want ---\n%s", got, want)
	}
}

func TestWrite_RoundTrip(t *testing.T) {
	doc, err := Parse(strings.NewReader(feedInput))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	out, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	reparsed, err := Parse(strings.NewReader(string(out)))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	assertSameTree(t, doc.Root, reparsed.Root, "/")

	// Writing the reparsed document must reproduce the bytes exactly.
	again, err := reparsed.Bytes()
	if err != nil {
		t.Fatalf("Bytes(reparsed): %v", err)
	}
	if string(again) != string(out) {
		t.Errorf("canonical form is not a fixed point:\n--- first ---\n%s--- second ---\n%s", out, again)
	}
}

func TestWrite_SynthesizesPrefixes(t *testing.T) {
	root := &Node{
		Name: xml.Name{Space: "urn:a", Local: "root"},
		Children: []*Node{
			{Name: xml.Name{Space: "urn:b", Local: "child"}},
		},
	}
	out, err := NewDocument(root).Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	// First element namespace becomes the default, the second gets ns1.
	s := string(out)
	if !strings.Contains(s, `xmlns="urn:a"`) {
		t.Errorf("missing default declaration:\n%s", s)
	}
	if !strings.Contains(s, `xmlns:ns1="urn:b"`) {
		t.Errorf("missing ns1 declaration:\n%s", s)
	}
	if !strings.Contains(s, "<ns1:child/>") {
		t.Errorf("child not prefixed:\n%s", s)
	}

	if _, err := Parse(strings.NewReader(s)); err != nil {
		t.Errorf("synthesized output does not reparse: %v", err)
	}
}

func TestWrite_EscapesAttributesAndText(t *testing.T) {
	root := &Node{
		Name:     xml.Name{Local: "root"},
		Attrs:    []xml.Attr{{Name: xml.Name{Local: "q"}, Value: `a"b<c&d`}},
		CharData: "1 < 2 & 3 > 2",
	}
	out, err := NewDocument(root).Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	s := string(out)
	if !strings.Contains(s, `q="a&quot;b&lt;c&amp;d"`) {
		t.Errorf("attribute not escaped:\n%s", s)
	}
	if !strings.Contains(s, "1 &lt; 2 &amp; 3 &gt; 2") {
		t.Errorf("text not escaped:\n%s", s)
	}

	reparsed, err := Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if v, _ := reparsed.Root.Attr("q"); v != `a"b<c&d` {
		t.Errorf("attribute round trip = %q", v)
	}
	if text, _ := reparsed.Root.Text(); text != "1 < 2 & 3 > 2" {
		t.Errorf("text round trip = %q", text)
	}
}

func TestWrite_EmptyDocument(t *testing.T) {
	if err := (&Document{}).Write(&strings.Builder{}); err == nil {
		t.Error("expected error for document without root")
	}
}

// assertSameTree compares two trees by qualified name, attributes, trimmed
// text, and child order.
func assertSameTree(t *testing.T, a, b *Node, path string) {
	t.Helper()
	if a.Name != b.Name {
		t.Errorf("%s: name %v != %v", path, a.Name, b.Name)
		return
	}
	if len(a.Attrs) != len(b.Attrs) {
		t.Errorf("%s: attr count %d != %d", path, len(a.Attrs), len(b.Attrs))
		return
	}
	for i := range a.Attrs {
		if a.Attrs[i] != b.Attrs[i] {
			t.Errorf("%s: attr %d: %v != %v", path, i, a.Attrs[i], b.Attrs[i])
		}
	}
	at, _ := a.Text()
	bt, _ := b.Text()
	if at != bt {
		t.Errorf("%s: text %q != %q", path, at, bt)
	}
	if len(a.Children) != len(b.Children) {
		t.Errorf("%s: child count %d != %d", path, len(a.Children), len(b.Children))
		return
	}
	for i := range a.Children {
		assertSameTree(t, a.Children[i], b.Children[i], path+a.Children[i].Name.Local+"/")
	}
}
