package transform

import (
	"strings"

	"github.com/reconquest/karma-go"
	yaml "gopkg.in/yaml.v2"
)

// Transform converts page's storage-format body into Markdown,
// returning discovered links/attachments/users/macros alongside the
// emitted content (spec §4.5). It is pure given (page, ctx): no
// network or filesystem access happens here.
func Transform(page Page, ctx Context) (Result, error) {
	root, err := parseFragment(page.BodyStorage)
	if err != nil {
		return Result{}, karma.Describe("pageId", page.ID).Format(err, "parse storage format")
	}

	acc := newAccumulator(page.ID)
	content := renderDocument(root, acc)

	fm := FrontMatter{
		Title:    page.Title,
		ID:       page.ID,
		Version:  page.Version,
		ParentID: page.ParentID,
	}

	frontMatterBlock, err := yaml.Marshal(fm)
	if err != nil {
		return Result{}, karma.Describe("pageId", page.ID).Format(err, "marshal front matter")
	}

	var out strings.Builder
	out.WriteString("---\n")
	out.Write(frontMatterBlock)
	out.WriteString("---\n\n")
	out.WriteString(content)

	return Result{
		Content:           out.String(),
		FrontMatter:       fm,
		Links:             acc.links,
		Attachments:       acc.attach,
		Users:             acc.users,
		MacroExpansions:   acc.macros,
		DiscoveredPageIDs: acc.discoveredIDs(),
	}, nil
}
