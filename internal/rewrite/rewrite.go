// Package rewrite implements the final link-rewriting pass (spec
// §4.6): a second pass over emitted Markdown that resolves Confluence
// URLs to relative local paths using the finished manifest.
package rewrite

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Entry is the subset of manifest.Entry the rewriter consumes.
// Declared locally so this package doesn't import internal/manifest,
// keeping it a leaf consumer of plain data.
type Entry struct {
	ID     string
	Title  string
	Path   string
	Status string
}

// Resolver builds the two lookup maps described in spec §4.6 from
// manifest entries with status in {exported, unchanged}.
type Resolver struct {
	byID  map[string]string
	byURL map[string]string
}

// NewResolver builds a Resolver from the final manifest entries.
func NewResolver(entries []Entry) *Resolver {
	r := &Resolver{
		byID:  make(map[string]string),
		byURL: make(map[string]string),
	}
	for _, e := range entries {
		if e.Status != "exported" && e.Status != "unchanged" {
			continue
		}
		if e.ID != "" {
			r.byID[e.ID] = e.Path
			for _, form := range urlFormsFor(e.ID, e.Title) {
				r.byURL[form] = e.Path
			}
		}
	}
	return r
}

// urlFormsFor enumerates the Confluence URL forms recognized for link
// rewriting (spec §6) that a given page id/title can be written as.
func urlFormsFor(id, title string) []string {
	forms := []string{
		"/pages/" + id,
		"?pageId=" + id,
	}
	if title != "" {
		forms = append(forms, "/pages/"+id+"/"+title)
	}
	return forms
}

var linkPattern = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)

// pageIDPatterns mirrors the forms enumerated in spec §6, each
// capturing the numeric page id.
var pageIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/pages/(\d+)(?:/|$)`),
	regexp.MustCompile(`[?&]pageId=(\d+)`),
}

// Result is the outcome of rewriting one file's content.
type Result struct {
	Content     string
	BrokenLinks int
}

// Rewrite scans Markdown links in content (the file at fromPath,
// forward-slash relative to outputDir) and rewrites each href that
// resolves to a known page, in the order: exact URL match, pageId
// pattern match, normalized fuzzy match. Unresolvable candidates are
// left unchanged and counted as broken.
func (r *Resolver) Rewrite(fromPath, content string) Result {
	broken := 0

	rewritten := linkPattern.ReplaceAllStringFunc(content, func(match string) string {
		sub := linkPattern.FindStringSubmatch(match)
		text, href := sub[1], sub[2]

		if !shouldConsider(href) {
			return match
		}

		target, ok := r.resolve(href)
		if !ok {
			// An absolute URL that carries no Confluence page id is an
			// external link: left as is and not counted as broken.
			if strings.Contains(href, "://") && extractPageID(href) == "" {
				return match
			}
			broken++
			return match
		}

		rel := relativePath(fromPath, target)
		return "[" + text + "](" + rel + ")"
	})

	return Result{Content: rewritten, BrokenLinks: broken}
}

// shouldConsider reports whether href is a candidate for rewriting at
// all (spec §4.6: external unmapped http(s), fragments, already
// relative links, and non-http(s)/file schemes are skipped).
func shouldConsider(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	if strings.Contains(href, "://") {
		scheme := strings.SplitN(href, "://", 2)[0]
		return scheme == "http" || scheme == "https" || scheme == "file"
	}
	return strings.HasPrefix(href, "/")
}

// resolve tries exact URL match, then pageId pattern match, then a
// normalized fuzzy match, in that order.
func (r *Resolver) resolve(href string) (string, bool) {
	if target, ok := r.byURL[href]; ok {
		return target, true
	}

	if id := extractPageID(href); id != "" {
		if target, ok := r.byID[id]; ok {
			return target, true
		}
	}

	return r.fuzzyResolve(href)
}

// fuzzyResolve compares the extracted integer page id exactly against
// known ids, never via substring containment — the fix for the
// source's over-matching fuzzy search (spec §9: "/pages/12" must not
// match "/pages/123").
func (r *Resolver) fuzzyResolve(href string) (string, bool) {
	normalized := strings.TrimSuffix(strings.ToLower(href), "/")
	id := extractPageID(normalized)
	if id == "" {
		return "", false
	}
	want, err := strconv.Atoi(id)
	if err != nil {
		return "", false
	}

	for knownID, target := range r.byID {
		got, err := strconv.Atoi(knownID)
		if err != nil {
			continue
		}
		if got == want {
			return target, true
		}
	}
	return "", false
}

func extractPageID(href string) string {
	for _, re := range pageIDPatterns {
		if m := re.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	return ""
}

// relativePath computes the POSIX-relative path from the directory
// containing fromPath to targetPath, forward-slashed regardless of
// host OS.
func relativePath(fromPath, targetPath string) string {
	fromDir := path.Dir(path.Clean(fromPath))
	target := path.Clean(targetPath)

	if fromDir == "." {
		return target
	}

	fromParts := strings.Split(fromDir, "/")
	targetParts := strings.Split(target, "/")

	common := 0
	for common < len(fromParts) && common < len(targetParts)-1 && fromParts[common] == targetParts[common] {
		common++
	}

	ups := len(fromParts) - common
	rel := strings.Repeat("../", ups) + strings.Join(targetParts[common:], "/")
	if rel == "" {
		rel = "./" + path.Base(target)
	}
	return rel
}
