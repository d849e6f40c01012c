package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransformHeadingAndParagraph(t *testing.T) {
	test := assert.New(t)

	page := Page{
		ID:          "42",
		Title:       "Overview",
		BodyStorage: `<h1>Overview</h1><p>Hello <strong>world</strong>, see <em>below</em>.</p>`,
	}

	result, err := Transform(page, Context{SpaceKey: "ENG"})
	test.NoError(err)
	test.True(strings.HasPrefix(result.Content, "---\n"))
	test.Contains(result.Content, "title: Overview")
	test.Contains(result.Content, `id: "42"`)
	test.Contains(result.Content, "# Overview\n\n")
	test.Contains(result.Content, "Hello **world**, see *below*.")
}

func TestTransformList(t *testing.T) {
	test := assert.New(t)

	page := Page{
		ID:    "1",
		Title: "List",
		BodyStorage: `<ul><li>first</li><li>second<ul><li>nested</li></ul></li></ul>`,
	}

	result, err := Transform(page, Context{})
	test.NoError(err)
	test.Contains(result.Content, "- first")
	test.Contains(result.Content, "- second")
	test.Contains(result.Content, "  - nested")
}

func TestTransformTable(t *testing.T) {
	test := assert.New(t)

	page := Page{
		ID:    "2",
		Title: "Table",
		BodyStorage: `<table><tbody>` +
			`<tr><th>Name</th><th>Status</th></tr>` +
			`<tr><td>alpha</td><td>done</td></tr>` +
			`</tbody></table>`,
	}

	result, err := Transform(page, Context{})
	test.NoError(err)
	test.Contains(result.Content, "| Name | Status |")
	test.Contains(result.Content, "| --- | --- |")
	test.Contains(result.Content, "| alpha | done |")
}

func TestTransformDiscoversPageLink(t *testing.T) {
	test := assert.New(t)

	page := Page{
		ID:    "1",
		Title: "Home",
		BodyStorage: `<p><ac:link><ri:page ri:content-title="Roadmap" ri:content-id="555" /></ac:link></p>`,
	}

	result, err := Transform(page, Context{})
	test.NoError(err)
	test.Contains(result.DiscoveredPageIDs, "555")
	test.Len(result.Links, 1)
	test.Equal("555", result.Links[0].PageID)
	test.Contains(result.Content, "/pages/555/Roadmap")
}

func TestTransformCodeMacro(t *testing.T) {
	test := assert.New(t)

	page := Page{
		ID:    "1",
		Title: "Snippet",
		BodyStorage: `<ac:structured-macro ac:name="code">` +
			`<ac:parameter ac:name="language">go</ac:parameter>` +
			`<ac:plain-text-body>fmt.Println("hi")</ac:plain-text-body>` +
			`</ac:structured-macro>`,
	}

	result, err := Transform(page, Context{})
	test.NoError(err)
	test.Contains(result.Content, "```go\nfmt.Println(\"hi\")\n```")
	test.Len(result.MacroExpansions, 1)
	test.Equal(MacroExpansion{Type: "code", Action: "expanded"}, result.MacroExpansions[0])
}

func TestTransformUnsupportedMacroWithBodyPassesThrough(t *testing.T) {
	test := assert.New(t)

	page := Page{
		ID:    "1",
		Title: "Weird",
		BodyStorage: `<ac:structured-macro ac:name="mystery">` +
			`<ac:rich-text-body><p>kept text</p></ac:rich-text-body>` +
			`</ac:structured-macro>`,
	}

	result, err := Transform(page, Context{})
	test.NoError(err)
	test.Contains(result.Content, "kept text")
	test.Equal("passthrough", result.MacroExpansions[0].Action)
}

func TestTransformUnsupportedMacroWithoutBodyIsRemoved(t *testing.T) {
	test := assert.New(t)

	page := Page{
		ID:          "1",
		Title:       "Weird",
		BodyStorage: `<ac:structured-macro ac:name="mystery" />`,
	}

	result, err := Transform(page, Context{})
	test.NoError(err)
	test.Equal("removed", result.MacroExpansions[0].Action)
}

func TestResolveUsersReplacesTokens(t *testing.T) {
	test := assert.New(t)

	content := "assigned to @jdoe for review"
	users := []UserRef{{Username: "jdoe", Token: "@jdoe"}}

	resolved := ResolveUsers(content, users, func(u UserRef) (string, bool) {
		return "Jane Doe", true
	})

	test.Equal("assigned to Jane Doe for review", resolved)
}

func TestResolveUsersLeavesUnresolvedTokensAlone(t *testing.T) {
	test := assert.New(t)

	content := "assigned to @jdoe"
	users := []UserRef{{Username: "jdoe", Token: "@jdoe"}}

	resolved := ResolveUsers(content, users, func(u UserRef) (string, bool) {
		return "", false
	})

	test.Equal(content, resolved)
}
