package cleanup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPipelineRunsDefaultRulesInOrder(t *testing.T) {
	test := assert.New(t)

	p := NewPipeline(DefaultRules())
	res, err := p.Run("##Title\n\n\n\nbody   \n", Context{})

	test.NoError(err)
	test.True(res.Changed)
	test.Equal("## Title\n\nbody\n", res.Content)
}

func TestPipelineLeavesCodeFencesUntouched(t *testing.T) {
	test := assert.New(t)

	p := NewPipeline(DefaultRules())
	input := "text \"quoted\"\n\n```go\nvar s = \"literal\"   \n##not a heading\n```\n"
	res, err := p.Run(input, Context{})

	test.NoError(err)
	test.Contains(res.Content, "var s = \"literal\"   \n##not a heading")
}

func TestPipelineOrdersRulesByPriority(t *testing.T) {
	test := assert.New(t)

	var order []string
	rules := []Rule{
		{Name: "second", Priority: 20, Process: func(c string, ctx Context) (Result, error) {
			order = append(order, "second")
			return Result{Content: c}, nil
		}},
		{Name: "first", Priority: 10, Process: func(c string, ctx Context) (Result, error) {
			order = append(order, "first")
			return Result{Content: c}, nil
		}},
	}

	p := NewPipeline(rules)
	_, err := p.Run("content", Context{})

	test.NoError(err)
	test.Equal([]string{"first", "second"}, order)
}

func TestHeadingNormalizeRule(t *testing.T) {
	test := assert.New(t)

	rule := headingNormalizeRule()
	res, err := rule.Process("###Heading\ntext", Context{})

	test.NoError(err)
	test.True(res.Changed)
	test.Equal("### Heading\ntext", res.Content)
}

func TestSplitFrontMatterSeparatesYAMLBlock(t *testing.T) {
	test := assert.New(t)

	input := "---\nid: \"100\"\ntitle: Notes\n---\n\n# Notes\n"
	front, body := SplitFrontMatter(input)

	test.Equal("---\nid: \"100\"\ntitle: Notes\n---\n\n", front)
	test.Equal("# Notes\n", body)
}

func TestSplitFrontMatterWithoutBlockReturnsWholeBodyUnchanged(t *testing.T) {
	test := assert.New(t)

	front, body := SplitFrontMatter("# Notes\n\nno front matter here")

	test.Equal("", front)
	test.Equal("# Notes\n\nno front matter here", body)
}

func TestSmartTypographyRule(t *testing.T) {
	test := assert.New(t)

	rule := smartTypographyRule()
	res, err := rule.Process(`"hello" and it's... done`, Context{})

	test.NoError(err)
	test.True(res.Changed)
	test.Equal("“hello” and it’s… done", res.Content)
}
