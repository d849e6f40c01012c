package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// accumulator collects the discovery side-channels (links, attachments,
// users, macro expansions, discovered page ids) while rendering.
type accumulator struct {
	pageID    string
	links     []Link
	attach    []Attachment
	users     []UserRef
	macros    []MacroExpansion
	discovered map[string]struct{}
}

func newAccumulator(pageID string) *accumulator {
	return &accumulator{pageID: pageID, discovered: make(map[string]struct{})}
}

func (a *accumulator) discover(id string) {
	if id == "" {
		return
	}
	a.discovered[id] = struct{}{}
}

func (a *accumulator) discoveredIDs() []string {
	out := make([]string, 0, len(a.discovered))
	for id := range a.discovered {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// renderDocument renders n's children as top-level block content.
func renderDocument(root *node, acc *accumulator) string {
	var b strings.Builder
	renderBlocks(&b, root.children, acc)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// renderBlocks renders a sequence of sibling nodes as block-level
// Markdown, skipping insignificant whitespace-only text nodes.
func renderBlocks(b *strings.Builder, nodes []*node, acc *accumulator) {
	for _, n := range nodes {
		if n.isText {
			if strings.TrimSpace(n.text) == "" {
				continue
			}
			b.WriteString(strings.TrimSpace(n.text))
			b.WriteString("\n\n")
			continue
		}
		renderBlock(b, n, acc)
	}
}

func renderBlock(b *strings.Builder, n *node, acc *accumulator) {
	switch n.local {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level, _ := strconv.Atoi(n.local[1:])
		b.WriteString(strings.Repeat("#", level))
		b.WriteString(" ")
		b.WriteString(renderInlineChildren(n, acc))
		b.WriteString("\n\n")

	case "p":
		text := renderInlineChildren(n, acc)
		if strings.TrimSpace(text) != "" {
			b.WriteString(text)
			b.WriteString("\n\n")
		}

	case "ul":
		renderList(b, n, acc, false, 0)
		b.WriteString("\n")

	case "ol":
		renderList(b, n, acc, true, 0)
		b.WriteString("\n")

	case "blockquote":
		inner := renderInlineChildren(n, acc)
		for _, line := range strings.Split(strings.TrimSpace(inner), "\n") {
			b.WriteString("> ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")

	case "hr":
		b.WriteString("---\n\n")

	case "br":
		b.WriteString("\n")

	case "pre", "code":
		b.WriteString("```\n")
		b.WriteString(n.textContent())
		b.WriteString("\n```\n\n")

	case "table":
		renderTable(b, n, acc)

	case "structured-macro":
		renderMacro(b, n, acc)

	case "layout", "layout-section", "layout-cell", "div", "span":
		renderBlocks(b, n.children, acc)

	default:
		renderBlocks(b, n.children, acc)
	}
}

func renderList(b *strings.Builder, n *node, acc *accumulator, ordered bool, depth int) {
	indent := strings.Repeat("  ", depth)
	idx := 1
	for _, item := range n.childrenOf("", "li") {
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", idx)
			idx++
		}
		b.WriteString(indent)
		b.WriteString(marker)

		var nested []*node
		var inline []*node
		for _, c := range item.children {
			if !c.isText && (c.local == "ul" || c.local == "ol") {
				nested = append(nested, c)
				continue
			}
			inline = append(inline, c)
		}

		b.WriteString(strings.TrimSpace(renderInlineNodes(inline, acc)))
		b.WriteString("\n")

		for _, nestedList := range nested {
			renderList(b, nestedList, acc, nestedList.local == "ol", depth+1)
		}
	}
}

func renderTable(b *strings.Builder, n *node, acc *accumulator) {
	var body []*node
	if tb := n.firstChild("", "tbody"); tb != nil {
		body = tb.childrenOf("", "tr")
	} else {
		body = n.childrenOf("", "tr")
	}
	if len(body) == 0 {
		return
	}

	writeRow := func(row *node) []string {
		var cells []string
		for _, c := range row.children {
			if c.isText || (c.local != "td" && c.local != "th") {
				continue
			}
			cells = append(cells, strings.TrimSpace(renderInlineChildren(c, acc)))
		}
		return cells
	}

	header := writeRow(body[0])
	b.WriteString("| ")
	b.WriteString(strings.Join(header, " | "))
	b.WriteString(" |\n|")
	for range header {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")

	for _, row := range body[1:] {
		cells := writeRow(row)
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}
	b.WriteString("\n")
}

// renderInlineChildren renders n's children in inline context.
func renderInlineChildren(n *node, acc *accumulator) string {
	return renderInlineNodes(n.children, acc)
}

func renderInlineNodes(nodes []*node, acc *accumulator) string {
	var b strings.Builder
	for _, n := range nodes {
		if n.isText {
			b.WriteString(n.text)
			continue
		}
		b.WriteString(renderInline(n, acc))
	}
	return b.String()
}

func renderInline(n *node, acc *accumulator) string {
	switch n.local {
	case "strong", "b":
		return "**" + strings.TrimSpace(renderInlineChildren(n, acc)) + "**"
	case "em", "i":
		return "*" + strings.TrimSpace(renderInlineChildren(n, acc)) + "*"
	case "code":
		return "`" + n.textContent() + "`"
	case "a":
		return renderAnchor(n, acc)
	case "img":
		return renderImg(n, acc)
	case "br":
		return "\n"
	case "link":
		return renderACLink(n, acc)
	case "image":
		return renderACImage(n, acc)
	case "structured-macro":
		var b strings.Builder
		renderMacro(&b, n, acc)
		return b.String()
	default:
		return renderInlineChildren(n, acc)
	}
}

func renderAnchor(n *node, acc *accumulator) string {
	href := n.attr("", "href")
	text := strings.TrimSpace(renderInlineChildren(n, acc))
	if text == "" {
		text = href
	}
	if pageID := extractPageIDFromURL(href); pageID != "" {
		acc.discover(pageID)
		acc.links = append(acc.links, Link{PageID: pageID, Title: text, Href: href})
	}
	return fmt.Sprintf("[%s](%s)", text, href)
}

func renderImg(n *node, acc *accumulator) string {
	src := n.attr("", "src")
	alt := n.attr("", "alt")
	return fmt.Sprintf("![%s](%s)", alt, src)
}
