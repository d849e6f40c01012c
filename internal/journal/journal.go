// Package journal records per-item pipeline status transitions so an
// interrupted export can resume without reprocessing completed work,
// and so a finished export can be diagnosed after the fact.
package journal

import (
	"sync"

	"github.com/reconquest/karma-go"

	"github.com/bonovoxly/confluence-exporter/internal/atomicfile"
)

// Entry types.
const (
	TypePage       = "page"
	TypeAttachment = "attachment"
)

// Entry statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Entry is one journal record.
type Entry struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Path      string `json:"path,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// wireFormat is the on-disk shape: entries as a sorted slice so JSON
// output is deterministic, matching the queue snapshot's canonical
// style even though the journal itself carries no checksum.
type wireFormat struct {
	SpaceKey string  `json:"spaceKey"`
	Entries  []Entry `json:"entries"`
}

// Journal is the in-memory, mutex-guarded per-space entry log.
type Journal struct {
	mu       sync.Mutex
	SpaceKey string
	entries  map[string]Entry
}

// New creates an empty journal for spaceKey.
func New(spaceKey string) *Journal {
	return &Journal{
		SpaceKey: spaceKey,
		entries:  make(map[string]Entry),
	}
}

// Set records or overwrites the entry for id.
func (j *Journal) Set(e Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries[e.ID] = e
}

// Get returns the entry for id, if any.
func (j *Journal) Get(id string) (Entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[id]
	return e, ok
}

// Entries returns a snapshot slice of all entries, sorted by id for
// determinism.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Entry, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e)
	}
	sortEntriesByID(out)
	return out
}

func sortEntriesByID(entries []Entry) {
	for i := 1; i < len(entries); i++ {
		for k := i; k > 0 && entries[k-1].ID > entries[k].ID; k-- {
			entries[k-1], entries[k] = entries[k], entries[k-1]
		}
	}
}

// Save persists the journal atomically to path.
func (j *Journal) Save(path string) error {
	entries := j.Entries()
	wire := wireFormat{SpaceKey: j.SpaceKey, Entries: entries}

	if err := atomicfile.WriteJSON(path, wire); err != nil {
		return karma.Describe("path", path).Reason(err)
	}
	return nil
}

// Load reads a journal back from path.
func Load(path string) (*Journal, error) {
	var wire wireFormat
	if _, err := atomicfile.ReadJSON(path, &wire); err != nil {
		return nil, karma.Describe("path", path).Reason(err)
	}

	j := New(wire.SpaceKey)
	for _, e := range wire.Entries {
		j.entries[e.ID] = e
	}
	return j, nil
}
