package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	test := assert.New(t)

	cases := []struct {
		title    string
		expected string
	}{
		{"Release Notes", "release-notes"},
		{"Q3 Roadmap (Draft)", "q3-roadmap-draft"},
		{"  leading and trailing  ", "leading-and-trailing"},
		{"Café Münster", "cafe-munster"},
		{"!!!", "untitled"},
		{"", "untitled"},
	}

	for _, c := range cases {
		test.Equal(c.expected, Slugify(c.title, DefaultMaxLength), c.title)
	}
}

func TestSlugifyTruncatesAtWordBoundary(t *testing.T) {
	test := assert.New(t)

	title := "this is a very long page title that should be truncated somewhere sensible"
	got := Slugify(title, 20)

	test.LessOrEqual(len(got), 20)
	test.NotEqual(byte('-'), got[len(got)-1])
}

func TestCollisionResolveFirstOccurrenceKeepsBase(t *testing.T) {
	test := assert.New(t)

	c := NewCollision()
	test.Equal("notes", c.Resolve("1", "notes"))
}

func TestCollisionResolveAppendsSuffixOnConflict(t *testing.T) {
	test := assert.New(t)

	c := NewCollision()
	test.Equal("notes", c.Resolve("1", "notes"))
	test.Equal("notes-1", c.Resolve("2", "notes"))
	test.Equal("notes-2", c.Resolve("3", "notes"))
}

func TestCollisionResolveSameIDIsIdempotent(t *testing.T) {
	test := assert.New(t)

	c := NewCollision()
	first := c.Resolve("1", "notes")
	second := c.Resolve("1", "notes")
	test.Equal(first, second)
}
