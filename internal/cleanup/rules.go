package cleanup

import "regexp"

// DefaultRules is the built-in rule set the orchestrator runs after
// transform and before the final link rewrite (SPEC_FULL.md §16),
// mirroring the teacher's own "compile then post-process" sequencing.
func DefaultRules() []Rule {
	return []Rule{
		headingNormalizeRule(),
		whitespaceCollapseRule(),
		smartTypographyRule(),
	}
}

var multipleHashPattern = regexp.MustCompile(`(?m)^(#{1,6})([^# \n])`)

func headingNormalizeRule() Rule {
	return Rule{
		Name:     "heading-normalize",
		Version:  "1.0",
		Priority: 10,
		Process: func(content string, ctx Context) (Result, error) {
			fixed := multipleHashPattern.ReplaceAllString(content, "$1 $2")
			return Result{Content: fixed, Changed: fixed != content}, nil
		},
	}
}

var trailingWhitespacePattern = regexp.MustCompile(`(?m)[ \t]+$`)
var blankRunPattern = regexp.MustCompile(`\n{3,}`)

func whitespaceCollapseRule() Rule {
	return Rule{
		Name:     "whitespace-collapse",
		Version:  "1.0",
		Priority: 20,
		Process: func(content string, ctx Context) (Result, error) {
			fixed := trailingWhitespacePattern.ReplaceAllString(content, "")
			fixed = blankRunPattern.ReplaceAllString(fixed, "\n\n")
			return Result{Content: fixed, Changed: fixed != content}, nil
		},
	}
}

var straightDoubleQuotePattern = regexp.MustCompile(`"([^"]*)"`)
var straightApostrophePattern = regexp.MustCompile(`(\w)'(\w)`)
var ellipsisPattern = regexp.MustCompile(`\.\.\.`)

func smartTypographyRule() Rule {
	return Rule{
		Name:     "smart-typography",
		Version:  "1.0",
		Priority: 30,
		Process: func(content string, ctx Context) (Result, error) {
			fixed := straightDoubleQuotePattern.ReplaceAllString(content, "“$1”")
			fixed = straightApostrophePattern.ReplaceAllString(fixed, "$1’$2")
			fixed = ellipsisPattern.ReplaceAllString(fixed, "…")
			return Result{Content: fixed, Changed: fixed != content}, nil
		},
	}
}
