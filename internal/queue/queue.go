package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/reconquest/karma-go"
)

// State is the coarse lifecycle state of the queue as a whole.
type State string

const (
	StateEmpty       State = "empty"
	StatePopulated   State = "populated"
	StateProcessing  State = "processing"
	StateDrained     State = "drained"
	StateFailed      State = "failed"
	StateInterrupted State = "interrupted"
)

// ErrQueueFull is returned by Add when the soft limit is crossed.
var ErrQueueFull = karma.Reason("QUEUE_FULL")

// Clock is injectable for deterministic tests.
type Clock func() time.Time

// Queue is the persistent download queue (spec §3, §4.1). All state
// lives behind a single mutex; Next()+transition is atomic; persistence
// writes happen outside the critical section on a cloned snapshot.
type Queue struct {
	mu sync.Mutex

	items           map[string]*Item
	processingOrder []string // pageIds, oldest-first
	processedPages  map[string]struct{}
	metrics         Metrics

	maxQueueSize         int
	persistenceThreshold int
	maxRetries           int

	changesSinceLastPersist int
	interrupted             bool

	clock        Clock
	nextSeq      uint64
}

// Config configures a new Queue.
type Config struct {
	MaxQueueSize         int
	PersistenceThreshold int
	MaxRetries           int
	Clock                Clock
}

// New creates an empty queue.
func New(cfg Config) *Queue {
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100000
	}
	if cfg.PersistenceThreshold <= 0 {
		cfg.PersistenceThreshold = 25
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Queue{
		items:                make(map[string]*Item),
		processedPages:       make(map[string]struct{}),
		maxQueueSize:         cfg.MaxQueueSize,
		persistenceThreshold: cfg.PersistenceThreshold,
		maxRetries:           cfg.MaxRetries,
		clock:                cfg.Clock,
	}
}

// activeCountLocked returns the number of items in {pending, processing}
// state, must be called with mu held.
func (q *Queue) activeCountLocked() int {
	n := 0
	for _, it := range q.items {
		if it.Status == StatusPending || it.Status == StatusProcessing {
			n++
		}
	}
	return n
}

// Add enqueues item, or each of items. Re-adding an id already present
// in items is rejected (unique invariant); re-adding an id already in
// processedPages is silently ignored (spec: "re-discovery of an id
// already in the processed-set is a no-op").
func (q *Queue) Add(items ...Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range items {
		if _, processed := q.processedPages[item.PageID]; processed {
			continue
		}

		if _, exists := q.items[item.PageID]; exists {
			continue
		}

		if q.activeCountLocked() >= q.maxQueueSize {
			return karma.Describe("pageId", item.PageID).Reason(ErrQueueFull)
		}

		item.Status = StatusPending
		item.insertionSeq = q.nextSeq
		q.nextSeq++
		if item.DiscoveryTimestamp == 0 {
			item.DiscoveryTimestamp = q.clock().Unix()
		}

		stored := item
		q.items[item.PageID] = &stored
		q.processingOrder = append(q.processingOrder, item.PageID)
		q.metrics.TotalDiscovered++
		q.metrics.CurrentQueueSize = q.activeCountLocked()
	}

	return nil
}

// Next returns the oldest pending item (FIFO on DiscoveryTimestamp,
// then insertion order), atomically marking it processing. Returns
// false if no pending item is available.
func (q *Queue) Next() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *Item
	for _, id := range q.processingOrder {
		it, ok := q.items[id]
		if !ok || it.Status != StatusPending {
			continue
		}
		if best == nil ||
			it.DiscoveryTimestamp < best.DiscoveryTimestamp ||
			(it.DiscoveryTimestamp == best.DiscoveryTimestamp && it.insertionSeq < best.insertionSeq) {
			best = it
		}
	}

	if best == nil {
		return Item{}, false
	}

	best.Status = StatusProcessing
	q.metrics.CurrentQueueSize = q.activeCountLocked()

	return *best, true
}

// MarkProcessed transitions id from processing to completed.
func (q *Queue) MarkProcessed(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.items[id]
	if !ok {
		return
	}

	it.Status = StatusCompleted
	q.processedPages[id] = struct{}{}
	q.removeFromOrderLocked(id)

	q.metrics.TotalProcessed++
	q.metrics.CurrentQueueSize = q.activeCountLocked()
	q.metrics.recordSample(q.clock())

	q.changesSinceLastPersist++
}

// MarkFailed records a failure for id. If retryCount < maxRetries and
// retryable is true, the item is re-queued (tail, pending); otherwise
// it becomes terminally failed.
func (q *Queue) MarkFailed(id string, retryable bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.items[id]
	if !ok {
		return
	}

	it.RetryCount++
	q.metrics.TotalRetries++

	if retryable && it.RetryCount < q.maxRetries {
		it.Status = StatusPending
		it.DiscoveryTimestamp = q.clock().Unix()
		it.insertionSeq = q.nextSeq
		q.nextSeq++
		// re-queue at tail: move to end of processingOrder
		q.removeFromOrderLocked(id)
		q.processingOrder = append(q.processingOrder, id)
	} else {
		it.Status = StatusFailed
		q.metrics.TotalFailed++
		q.removeFromOrderLocked(id)
	}

	q.metrics.CurrentQueueSize = q.activeCountLocked()
	q.changesSinceLastPersist++
}

func (q *Queue) removeFromOrderLocked(id string) {
	for i, existing := range q.processingOrder {
		if existing == id {
			q.processingOrder = append(q.processingOrder[:i], q.processingOrder[i+1:]...)
			return
		}
	}
}

// Size returns the number of active (pending+processing) items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeCountLocked()
}

// IsEmpty reports whether there are no active items.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// GetMetrics returns a snapshot of the queue's metrics.
func (q *Queue) GetMetrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.metrics.Clone()
}

// ShouldPersist reports whether enough state changes have accumulated
// to warrant a Persist() call (spec: "triggered every
// persistenceThreshold state changes").
func (q *Queue) ShouldPersist() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changesSinceLastPersist >= q.persistenceThreshold
}

// ResetPersistCounter clears the change counter after a successful
// persist.
func (q *Queue) ResetPersistCounter() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.changesSinceLastPersist = 0
}

// MarkInterrupted flags the queue as having been interrupted, reported
// by GetState.
func (q *Queue) MarkInterrupted() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.interrupted = true
}

// GetState classifies the queue's overall lifecycle state.
func (q *Queue) GetState() State {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.interrupted {
		return StateInterrupted
	}

	total := len(q.items)
	if total == 0 {
		return StateEmpty
	}

	active := q.activeCountLocked()
	allFailed := true
	anyProcessing := false
	for _, it := range q.items {
		if it.Status != StatusFailed {
			allFailed = false
		}
		if it.Status == StatusProcessing {
			anyProcessing = true
		}
	}

	switch {
	case allFailed:
		return StateFailed
	case active == 0:
		return StateDrained
	case anyProcessing:
		return StateProcessing
	default:
		return StatePopulated
	}
}

// snapshotItemsLocked returns a sorted-by-pageId copy of all items,
// for canonical persistence.
func (q *Queue) snapshotItemsLocked() []Item {
	out := make([]Item, 0, len(q.items))
	for _, it := range q.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	return out
}

func (q *Queue) snapshotProcessedLocked() []string {
	out := make([]string, 0, len(q.processedPages))
	for id := range q.processedPages {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
