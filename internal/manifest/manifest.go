// Package manifest tracks the authoritative end-of-run listing of
// exported pages, keyed by Confluence page id, and supports diffing
// two manifests into added/modified/deleted/unchanged sets.
package manifest

import (
	"github.com/reconquest/karma-go"

	"github.com/bonovoxly/confluence-exporter/internal/atomicfile"
)

// Status values for a ManifestEntry.
const (
	StatusExported  = "exported"
	StatusUnchanged = "unchanged"
	StatusDenied    = "denied"
	StatusRemoved   = "removed"
	StatusSkipped   = "skipped"
)

// Entry is one page's record in the manifest.
type Entry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Path     string `json:"path"`
	Hash     string `json:"hash"`
	Status   string `json:"status"`
	Version  int    `json:"version,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

// Validate enforces the ManifestEntry invariants from spec §3:
// status=exported ⇒ path≠"" ∧ hash≠""; status ∈ {denied,removed,skipped}
// ⇒ path="" ∧ hash="".
func (e Entry) Validate() error {
	switch e.Status {
	case StatusExported, StatusUnchanged:
		if e.Path == "" || e.Hash == "" {
			return karma.Describe("id", e.ID).Reason(
				"exported/unchanged entry must have non-empty path and hash",
			)
		}
	case StatusDenied, StatusRemoved, StatusSkipped:
		if e.Path != "" || e.Hash != "" {
			return karma.Describe("id", e.ID).Reason(
				"denied/removed/skipped entry must have empty path and hash",
			)
		}
	default:
		return karma.Describe("id", e.ID).Describe("status", e.Status).Reason(
			"unknown manifest entry status",
		)
	}
	return nil
}

// Manifest is the versioned, end-of-run page listing for one space.
type Manifest struct {
	Version   int     `json:"version"`
	Timestamp int64   `json:"timestamp"`
	SpaceKey  string  `json:"spaceKey"`
	Entries   []Entry `json:"entries"`
}

// CurrentVersion is the manifest schema version written by this
// implementation.
const CurrentVersion = 1

// New creates an empty manifest for spaceKey.
func New(spaceKey string, timestamp int64) *Manifest {
	return &Manifest{
		Version:   CurrentVersion,
		Timestamp: timestamp,
		SpaceKey:  spaceKey,
		Entries:   []Entry{},
	}
}

// ByID indexes the manifest's entries by page id.
func (m *Manifest) ByID() map[string]Entry {
	out := make(map[string]Entry, len(m.Entries))
	for _, e := range m.Entries {
		out[e.ID] = e
	}
	return out
}

// Upsert replaces any existing entry with the same id, preserving
// uniqueness (spec §8 invariant 1).
func (m *Manifest) Upsert(e Entry) {
	for i, existing := range m.Entries {
		if existing.ID == e.ID {
			m.Entries[i] = e
			return
		}
	}
	m.Entries = append(m.Entries, e)
}

// Load reads a manifest from path.
func Load(path string) (*Manifest, error) {
	var m Manifest
	if _, err := atomicfile.ReadJSON(path, &m); err != nil {
		return nil, karma.Describe("path", path).Reason(err)
	}
	return &m, nil
}

// Save writes the manifest to path as canonical pretty JSON (spec §6:
// "manifest.json — canonical pretty JSON").
func (m *Manifest) Save(path string) error {
	return atomicfile.WriteJSONPretty(path, m)
}

// Diff computes {Added, Modified, Deleted, Unchanged} between old and
// new manifests, keyed by page id, satisfying the laws in spec §8:
//
//	diff(A, A) = {added:∅, modified:∅, deleted:∅, unchanged:A}
//	diff(A, B).added ∪ unchanged ∪ modified = entries(B)
//	diff(A, B).deleted ∪ unchanged ∪ modified = entries(A)
type Diff struct {
	Added     []Entry
	Modified  []Entry
	Deleted   []Entry
	Unchanged []Entry
}

// ComputeDiff diffs old against new.
func ComputeDiff(old, new *Manifest) Diff {
	oldByID := old.ByID()
	newByID := new.ByID()

	var d Diff

	for id, newEntry := range newByID {
		oldEntry, existed := oldByID[id]
		if !existed {
			d.Added = append(d.Added, newEntry)
			continue
		}
		if oldEntry != newEntry {
			d.Modified = append(d.Modified, newEntry)
		} else {
			d.Unchanged = append(d.Unchanged, newEntry)
		}
	}

	for id, oldEntry := range oldByID {
		if _, stillExists := newByID[id]; !stillExists {
			d.Deleted = append(d.Deleted, oldEntry)
		}
	}

	return d
}
