// Package macro implements macro discovery (spec §4.5, §9, component
// 10): scanning a page's storage format for children, children-display
// and content-by-label macros and synthesizing follow-up discovery
// actions the orchestrator resolves against the Confluence API.
//
// This is deliberately independent of internal/transform's Markdown
// rendering — it re-scans the same storage format for a different
// purpose, matching the teacher's pattern of small, single-purpose
// collaborators rather than a monolithic transformer.
package macro

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Action is the kind of follow-up the orchestrator should take for a
// discovered macro.
type Action string

const (
	ActionFetchChildren Action = "fetch_children"
	ActionSearchLabel   Action = "search_label"
)

// Discovery is one follow-up action derived from a macro found in a
// page's storage format.
type Discovery struct {
	Action      Action
	SourcePage  string
	CQL         string
	SyntheticID string
}

var macroBlockPattern = regexp.MustCompile(`(?s)<ac:structured-macro\s+ac:name="([^"]+)"[^>]*>(.*?)</ac:structured-macro>`)
var labelParamPattern = regexp.MustCompile(`(?s)<ac:parameter\s+ac:name="label"[^>]*>(.*?)</ac:parameter>`)

// Discover scans bodyStorage for supported discovery macros belonging
// to sourcePage and returns the follow-up actions they imply. A
// content-by-label macro has no natural page id of its own — it
// expands into a *set* of pages resolved via CQL search — so its
// Discovery carries a uuid-derived SyntheticID naming the group. The
// orchestrator runs the search as soon as the Discovery is returned and
// enqueues the real page ids; the synthetic id is never added to the
// queue.
func Discover(sourcePage, bodyStorage string) []Discovery {
	var out []Discovery

	for _, m := range macroBlockPattern.FindAllStringSubmatch(bodyStorage, -1) {
		name, body := m[1], m[2]

		switch name {
		case "children", "children-display":
			out = append(out, Discovery{
				Action:     ActionFetchChildren,
				SourcePage: sourcePage,
			})

		case "content-by-label":
			label := ""
			if lm := labelParamPattern.FindStringSubmatch(body); lm != nil {
				label = lm[1]
			}
			if label == "" {
				continue
			}
			out = append(out, Discovery{
				Action:      ActionSearchLabel,
				SourcePage:  sourcePage,
				CQL:         fmt.Sprintf(`label = "%s"`, label),
				SyntheticID: "label-" + uuid.NewString(),
			})
		}
	}

	return out
}
