package transform

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/reconquest/karma-go"
)

// node is a generic element/text node produced by parsing Confluence
// storage format. No third-party HTML/XHTML parser exists anywhere in
// the retrieved example pack (see DESIGN.md), so parsing uses stdlib
// encoding/xml in permissive mode (Strict=false, HTMLAutoClose,
// HTMLEntity), the same tolerant-decoder idiom used to consume
// XHTML-ish markup with the standard library.
type node struct {
	space, local string
	attrs        []xml.Attr
	children     []*node
	text         string
	isText       bool
}

// attr returns the value of the attribute with the given local name in
// namespace space (any namespace when space is ""), or "".
func (n *node) attr(space, local string) string {
	for _, a := range n.attrs {
		if a.Name.Local == local && (space == "" || a.Name.Space == space) {
			return a.Value
		}
	}
	return ""
}

// firstChild returns the first child element with the given namespace
// and local name, or nil.
func (n *node) firstChild(space, local string) *node {
	for _, c := range n.children {
		if !c.isText && c.local == local && (space == "" || c.space == space) {
			return c
		}
	}
	return nil
}

// childrenOf returns all child elements with the given local name.
func (n *node) childrenOf(space, local string) []*node {
	var out []*node
	for _, c := range n.children {
		if !c.isText && c.local == local && (space == "" || c.space == space) {
			out = append(out, c)
		}
	}
	return out
}

// textContent concatenates all descendant text, ignoring markup.
func (n *node) textContent() string {
	var b strings.Builder
	var walk func(*node)
	walk = func(cur *node) {
		if cur.isText {
			b.WriteString(cur.text)
			return
		}
		for _, c := range cur.children {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// storagePreamble declares the ac/ri namespace prefixes Confluence
// storage format assumes are in scope, so fragments that use them
// without a local xmlns declaration still parse. The namespace URIs
// are deliberately the bare prefixes themselves ("ac", "ri") rather
// than opaque URNs: encoding/xml resolves a prefixed element's Space
// to whatever URI its xmlns declares, so using the prefix as the URI
// lets the rest of this package match on "ac"/"ri" directly instead
// of re-deriving the resolved namespace.
const storagePreamble = `<root xmlns:ac="ac" xmlns:ri="ri">`

// parseFragment parses a Confluence storage-format body into a node
// tree rooted at a synthetic wrapper element.
func parseFragment(body string) (*node, error) {
	wrapped := storagePreamble + body + `</root>`

	decoder := xml.NewDecoder(strings.NewReader(wrapped))
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity

	root := &node{local: "root"}
	stack := []*node{root}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, karma.Describe("len", len(body)).Reason(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{space: t.Name.Space, local: t.Name.Local, attrs: t.Attr}
			top := stack[len(stack)-1]
			top.children = append(top.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			top := stack[len(stack)-1]
			top.children = append(top.children, &node{text: string(t), isText: true})
		}
	}

	return root, nil
}
