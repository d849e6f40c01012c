package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testResolver() *Resolver {
	return NewResolver([]Entry{
		{ID: "100", Title: "Overview", Path: "space/overview.md", Status: "exported"},
		{ID: "123", Title: "Deep Dive", Path: "space/guides/deep-dive.md", Status: "exported"},
		{ID: "999", Title: "Archived Page", Path: "space/archived.md", Status: "denied"},
	})
}

func TestRewriteExactPageIDPattern(t *testing.T) {
	test := assert.New(t)

	r := testResolver()
	res := r.Rewrite("space/overview.md", "see [deep dive](/pages/123/Deep+Dive) for details")

	test.Equal(0, res.BrokenLinks)
	test.Contains(res.Content, "(guides/deep-dive.md)")
}

func TestRewriteQueryParamForm(t *testing.T) {
	test := assert.New(t)

	r := testResolver()
	res := r.Rewrite("space/overview.md", "[link](/pages/viewpage.action?pageId=123)")

	test.Equal(0, res.BrokenLinks)
	test.Contains(res.Content, "guides/deep-dive.md")
}

func TestRewriteDoesNotMatchSimilarID(t *testing.T) {
	test := assert.New(t)

	r := testResolver()
	res := r.Rewrite("space/overview.md", "[link](/pages/12)")

	test.Equal(1, res.BrokenLinks)
	test.Contains(res.Content, "/pages/12)")
}

func TestRewriteSkipsExternalLinks(t *testing.T) {
	test := assert.New(t)

	r := testResolver()
	res := r.Rewrite("space/overview.md", "[external](https://example.com/docs)")

	test.Equal(0, res.BrokenLinks)
	test.Contains(res.Content, "https://example.com/docs")
}

func TestRewriteExcludesNonExportedEntries(t *testing.T) {
	test := assert.New(t)

	r := testResolver()
	res := r.Rewrite("space/overview.md", "[archived](/pages/999)")

	test.Equal(1, res.BrokenLinks)
}

func TestRewriteComputesRelativePathAcrossDirectories(t *testing.T) {
	test := assert.New(t)

	r := testResolver()
	res := r.Rewrite("space/guides/other.md", "[overview](/pages/100)")

	test.Equal(0, res.BrokenLinks)
	test.Contains(res.Content, "(../overview.md)")
}
