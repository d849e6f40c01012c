// Package cleanup implements the cosmetic Markdown cleanup pipeline
// (spec §3, §9, component boundary only — "do not contain the
// system's hard engineering"). Rather than a subclass hierarchy, rules
// are plain values; the engine sorts once by priority, extracts
// code-fenced regions into placeholders before the rules run, and
// restores them after the last one.
package cleanup

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Context is passed to every rule; currently empty but kept as a
// distinct type so rule signatures don't change if per-run options are
// added later.
type Context struct{}

// Result is what a rule returns.
type Result struct {
	Content string
	Changed bool
	Issues  []string
}

// Rule is a single cosmetic pass over already-produced Markdown.
type Rule struct {
	Name     string
	Version  string
	Priority int
	Process  func(content string, ctx Context) (Result, error)
}

// Pipeline runs an ordered set of Rules over Markdown content.
type Pipeline struct {
	rules []Rule
}

// NewPipeline sorts rules by Priority once (ascending; lower runs
// first) and returns a ready-to-run Pipeline.
func NewPipeline(rules []Rule) *Pipeline {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return &Pipeline{rules: sorted}
}

var codeFencePattern = regexp.MustCompile("(?s)```.*?```")

// Run extracts fenced code regions into placeholders, runs every rule
// in priority order over the remaining text, then re-inlines the
// fences, so rules never rewrite code block contents.
func (p *Pipeline) Run(content string, ctx Context) (Result, error) {
	extracted, placeholders := extractCodeFences(content)

	changed := false
	var issues []string

	current := extracted
	for _, rule := range p.rules {
		res, err := rule.Process(current, ctx)
		if err != nil {
			return Result{}, fmt.Errorf("cleanup rule %q: %w", rule.Name, err)
		}
		current = res.Content
		if res.Changed {
			changed = true
		}
		issues = append(issues, res.Issues...)
	}

	final := restoreCodeFences(current, placeholders)

	return Result{Content: final, Changed: changed, Issues: issues}, nil
}

// SplitFrontMatter separates a leading YAML front-matter block (if any)
// from the Markdown body beneath it. transform.Transform always emits
// front matter as "---\n" + yaml + "---\n\n", so the body starts right
// after the blank line following the closing delimiter. Cleanup rules
// (quote-curling in particular) must never see the front matter: it's
// machine-readable yaml.v2 output, not prose.
func SplitFrontMatter(content string) (front, body string) {
	const open = "---\n"
	if !strings.HasPrefix(content, open) {
		return "", content
	}

	rest := content[len(open):]
	idx := strings.Index(rest, "\n---\n\n")
	if idx < 0 {
		return "", content
	}

	end := len(open) + idx + len("\n---\n\n")
	return content[:end], content[end:]
}

func extractCodeFences(content string) (string, []string) {
	var placeholders []string
	result := codeFencePattern.ReplaceAllStringFunc(content, func(match string) string {
		idx := len(placeholders)
		placeholders = append(placeholders, match)
		return fmt.Sprintf("\x00FENCE%d\x00", idx)
	})
	return result, placeholders
}

var placeholderPattern = regexp.MustCompile(`\x00FENCE(\d+)\x00`)

func restoreCodeFences(content string, placeholders []string) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		var idx int
		fmt.Sscanf(sub[1], "%d", &idx)
		if idx < 0 || idx >= len(placeholders) {
			return match
		}
		return placeholders[idx]
	})
}
