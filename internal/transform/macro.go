package transform

import (
	"fmt"
	"regexp"
	"strings"
)

// supportedMacros is the declared table of macro types the transformer
// expands itself (spec §4.5); discovery macros (children,
// children-display, content-by-label) only emit a placeholder here —
// their actual expansion into queue items happens in
// internal/transform/macro, which re-scans the same storage format.
var supportedMacros = map[string]bool{
	"children":         true,
	"children-display": true,
	"content-by-label": true,
	"code":             true,
	"info":             true,
	"note":             true,
	"panel":            true,
	"toc":              true,
}

func macroName(n *node) string {
	return n.attr("", "name")
}

func macroParam(n *node, name string) string {
	for _, p := range n.childrenOf("", "parameter") {
		if p.attr("", "name") == name {
			return strings.TrimSpace(p.textContent())
		}
	}
	return ""
}

func renderMacro(b *strings.Builder, n *node, acc *accumulator) {
	name := macroName(n)

	if !supportedMacros[name] {
		renderUnsupportedMacro(b, n, acc, name)
		return
	}

	switch name {
	case "code":
		lang := macroParam(n, "language")
		body := ""
		if bodyNode := n.firstChild("", "plain-text-body"); bodyNode != nil {
			body = bodyNode.textContent()
		}
		b.WriteString("```")
		b.WriteString(lang)
		b.WriteString("\n")
		b.WriteString(body)
		b.WriteString("\n```\n\n")
		acc.macros = append(acc.macros, MacroExpansion{Type: name, Action: "expanded"})

	case "info", "note", "panel":
		label := strings.Title(name)
		inner := renderRichTextBody(n, acc)
		for _, line := range strings.Split(strings.TrimSpace(inner), "\n") {
			if line == "" {
				continue
			}
			b.WriteString("> ")
			if label != "" {
				b.WriteString("**" + label + ":** ")
				label = ""
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		acc.macros = append(acc.macros, MacroExpansion{Type: name, Action: "expanded"})

	case "toc":
		b.WriteString("[TOC]\n\n")
		acc.macros = append(acc.macros, MacroExpansion{Type: name, Action: "expanded"})

	case "children", "children-display", "content-by-label":
		b.WriteString(fmt.Sprintf("<!-- %s: expanded during discovery -->\n\n", name))
		acc.macros = append(acc.macros, MacroExpansion{Type: name, Action: "expanded"})
	}
}

// renderUnsupportedMacro passes through a macro's rich-text body if it
// has one (there is still readable content worth keeping), otherwise
// drops it entirely (spec §4.5 "unsupported ones are dropped").
func renderUnsupportedMacro(b *strings.Builder, n *node, acc *accumulator, name string) {
	if body := n.firstChild("", "rich-text-body"); body != nil {
		renderBlocks(b, body.children, acc)
		acc.macros = append(acc.macros, MacroExpansion{Type: name, Action: "passthrough"})
		return
	}
	acc.macros = append(acc.macros, MacroExpansion{Type: name, Action: "removed"})
}

func renderRichTextBody(n *node, acc *accumulator) string {
	body := n.firstChild("", "rich-text-body")
	if body == nil {
		return ""
	}
	var b strings.Builder
	renderBlocks(&b, body.children, acc)
	return b.String()
}

// renderACLink renders <ac:link> (page/user reference) as a standard
// Markdown link, collecting the target into Links or Users.
func renderACLink(n *node, acc *accumulator) string {
	if ri := n.firstChild("ri", "page"); ri != nil {
		return renderPageLink(n, ri, acc)
	}
	if ri := n.firstChild("ri", "user"); ri != nil {
		return renderUserLink(n, ri, acc)
	}
	if ri := n.firstChild("ri", "attachment"); ri != nil {
		return renderAttachmentLink(n, ri, acc)
	}
	return linkBodyText(n, acc)
}

func linkBodyText(n *node, acc *accumulator) string {
	if body := n.firstChild("", "plain-text-link-body"); body != nil {
		return body.textContent()
	}
	if body := n.firstChild("", "link-body"); body != nil {
		return renderInlineChildren(body, acc)
	}
	return ""
}

func renderPageLink(n, ri *node, acc *accumulator) string {
	title := ri.attr("ri", "content-title")
	spaceKey := ri.attr("ri", "space-key")
	contentID := ri.attr("ri", "content-id")

	text := linkBodyText(n, acc)
	if text == "" {
		text = title
	}

	var href string
	if contentID != "" {
		acc.discover(contentID)
		href = fmt.Sprintf("/pages/%s/%s", contentID, title)
	} else if spaceKey != "" && title != "" {
		href = fmt.Sprintf("/display/%s/%s", spaceKey, title)
	} else {
		href = "#" + title
	}

	acc.links = append(acc.links, Link{PageID: contentID, Title: title, Href: href})
	return fmt.Sprintf("[%s](%s)", text, href)
}

func renderUserLink(n, ri *node, acc *accumulator) string {
	username := ri.attr("ri", "username")
	userKey := ri.attr("ri", "userkey")

	text := linkBodyText(n, acc)
	token := "@" + username
	if token == "@" {
		token = "@" + userKey
	}
	if text == "" {
		text = token
	}

	acc.users = append(acc.users, UserRef{Username: username, UserKey: userKey, Token: token})
	return text
}

func renderAttachmentLink(n, ri *node, acc *accumulator) string {
	filename := ri.attr("ri", "filename")
	text := linkBodyText(n, acc)
	if text == "" {
		text = filename
	}
	acc.attach = append(acc.attach, Attachment{Filename: filename, PageID: acc.pageID})
	return fmt.Sprintf("[%s](attachments/%s)", text, filename)
}

// renderACImage renders <ac:image><ri:attachment .../></ac:image> as a
// Markdown image pointing at the co-located attachments directory.
func renderACImage(n *node, acc *accumulator) string {
	if ri := n.firstChild("ri", "attachment"); ri != nil {
		filename := ri.attr("ri", "filename")
		acc.attach = append(acc.attach, Attachment{Filename: filename, PageID: acc.pageID})
		return fmt.Sprintf("![%s](attachments/%s)", filename, filename)
	}
	if ri := n.firstChild("ri", "url"); ri != nil {
		url := ri.attr("ri", "value")
		return fmt.Sprintf("![](%s)", url)
	}
	return ""
}

// pageIDPatterns matches the Confluence URL forms enumerated in spec
// §6 that carry an explicit numeric page id.
var pageIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/pages/(\d+)(?:/|$)`),
	regexp.MustCompile(`[?&]pageId=(\d+)`),
}

// extractPageIDFromURL extracts a numeric page id from href if one of
// the recognized Confluence URL forms matches, matching the id exactly
// rather than by substring containment (spec §9 fuzzy-match fix).
func extractPageIDFromURL(href string) string {
	for _, re := range pageIDPatterns {
		if m := re.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	return ""
}
