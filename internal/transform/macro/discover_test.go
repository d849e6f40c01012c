package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscoverChildrenMacro(t *testing.T) {
	test := assert.New(t)

	body := `<p>intro</p><ac:structured-macro ac:name="children"></ac:structured-macro>`
	found := Discover("100", body)

	test.Len(found, 1)
	test.Equal(ActionFetchChildren, found[0].Action)
	test.Equal("100", found[0].SourcePage)
}

func TestDiscoverChildrenDisplayMacro(t *testing.T) {
	test := assert.New(t)

	body := `<ac:structured-macro ac:name="children-display"></ac:structured-macro>`
	found := Discover("100", body)

	test.Len(found, 1)
	test.Equal(ActionFetchChildren, found[0].Action)
}

func TestDiscoverContentByLabelMacro(t *testing.T) {
	test := assert.New(t)

	body := `<ac:structured-macro ac:name="content-by-label">` +
		`<ac:parameter ac:name="label">roadmap</ac:parameter>` +
		`</ac:structured-macro>`
	found := Discover("100", body)

	test.Len(found, 1)
	test.Equal(ActionSearchLabel, found[0].Action)
	test.Equal(`label = "roadmap"`, found[0].CQL)
	test.Contains(found[0].SyntheticID, "label-")
}

func TestDiscoverContentByLabelWithoutLabelIsSkipped(t *testing.T) {
	test := assert.New(t)

	body := `<ac:structured-macro ac:name="content-by-label"></ac:structured-macro>`
	found := Discover("100", body)

	test.Len(found, 0)
}

func TestDiscoverIgnoresUnrelatedMacros(t *testing.T) {
	test := assert.New(t)

	body := `<ac:structured-macro ac:name="code"><ac:plain-text-body>x</ac:plain-text-body></ac:structured-macro>`
	found := Discover("100", body)

	test.Len(found, 0)
}

func TestDiscoverMultipleMacrosEachProduceADiscovery(t *testing.T) {
	test := assert.New(t)

	body := `<ac:structured-macro ac:name="children"></ac:structured-macro>` +
		`<ac:structured-macro ac:name="content-by-label">` +
		`<ac:parameter ac:name="label">x</ac:parameter>` +
		`</ac:structured-macro>`
	found := Discover("100", body)

	test.Len(found, 2)
}
