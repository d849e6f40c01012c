// Package queue implements the persistent download queue: a FIFO set
// of QueueItems with a processed-set, metrics, atomic snapshotting with
// checksum, rolling backups, and crash recovery (spec §3, §4.1, §8).
package queue

// SourceType records why a page was discovered.
type SourceType string

const (
	SourceInitial   SourceType = "initial"
	SourceMacro     SourceType = "macro"
	SourceReference SourceType = "reference"
	SourceUser      SourceType = "user"
)

// Status is a QueueItem's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Item is one unit of discovery/processing work.
type Item struct {
	PageID             string     `json:"pageId"`
	SourceType         SourceType `json:"sourceType"`
	DiscoveryTimestamp int64      `json:"discoveryTimestamp"`
	RetryCount         int        `json:"retryCount"`
	ParentPageID       string     `json:"parentPageId,omitempty"`
	Status             Status     `json:"status"`

	// insertionSeq breaks ties between items discovered at the same
	// timestamp, giving FIFO a total order without relying on map
	// iteration order.
	insertionSeq uint64
}
