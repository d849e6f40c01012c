// Package slug turns Confluence page titles into filesystem-safe,
// deterministic path segments, and resolves collisions within a
// directory the same way on every platform.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxLength is the soft truncation boundary applied when no
// explicit length is requested.
const DefaultMaxLength = 80

// Slugify normalizes title into a lowercase, hyphen-separated slug:
// Unicode compatibility decomposition, lowercasing, whitespace and
// punctuation/symbols (a fixed class plus Unicode P* and S*) → "-",
// runs of "-" collapsed, trimmed, and truncated at a soft word
// boundary below maxLength.
func Slugify(title string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	decomposed := norm.NFKD.String(title)

	var b strings.Builder
	b.Grow(len(decomposed))

	lastWasHyphen := false
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// drop combining marks produced by decomposition
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastWasHyphen = false
		case unicode.IsSpace(r), isPunctForHyphen(r):
			if !lastWasHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastWasHyphen = true
			}
		default:
			// drop anything else (e.g. control characters) outright
		}
	}

	out := strings.Trim(b.String(), "-")
	out = collapseHyphens(out)

	if len(out) > maxLength {
		out = truncateAtWordBoundary(out, maxLength)
	}

	if out == "" {
		out = "untitled"
	}

	return out
}

func isPunctForHyphen(r rune) bool {
	switch r {
	case '-', '_', '/', '\\', ':', '.', ',', ';', '!', '?', '"', '\'',
		'(', ')', '[', ']', '{', '}', '<', '>', '*', '|', '+', '=', '~', '`', '@', '#', '$', '%', '^', '&':
		return true
	}
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func collapseHyphens(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastWasHyphen := false
	for _, r := range s {
		if r == '-' {
			if lastWasHyphen {
				continue
			}
			lastWasHyphen = true
		} else {
			lastWasHyphen = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncateAtWordBoundary(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}

	cut := s[:maxLength]
	if idx := strings.LastIndexByte(cut, '-'); idx > 0 {
		cut = cut[:idx]
	}

	return strings.Trim(cut, "-")
}

// Collision resolves duplicate slugs within a single directory
// deterministically: the first occurrence of a slug keeps the base
// form; each subsequent collision appends "-N" starting at 1. Ids are
// used only as a last-resort tiebreaker when the numeric suffix space
// itself collides with an already-assigned path (documented in
// SPEC_FULL.md / spec.md §9).
type Collision struct {
	seen map[string]int
	used map[string]string // assigned path -> owning id
}

// NewCollision creates an empty collision resolver for one directory.
func NewCollision() *Collision {
	return &Collision{
		seen: make(map[string]int),
		used: make(map[string]string),
	}
}

// Resolve returns the final slug to use for id within this directory,
// given its base (pre-collision) slug.
func (c *Collision) Resolve(id, base string) string {
	if base == "" {
		base = "untitled"
	}

	candidate := base
	n := c.seen[base]
	for {
		if owner, exists := c.used[candidate]; !exists || owner == id {
			c.used[candidate] = id
			c.seen[base]++
			return candidate
		}

		candidate = base + "-" + itoa(n)

		// Numeric suffix space exhausted or pathologically colliding
		// with another id's slug: fall back to the id as a tiebreaker.
		if n > 10000 {
			candidate = base + "-" + id
		}
		n++
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		digits[i] = '-'
	}
	return string(digits[i:])
}
