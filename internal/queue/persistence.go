package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/reconquest/karma-go"
	"github.com/reconquest/pkg/log"

	"github.com/bonovoxly/confluence-exporter/internal/atomicfile"
	"github.com/bonovoxly/confluence-exporter/internal/checksum"
)

// SnapshotVersion is the on-disk schema version.
const SnapshotVersion = 1

// Snapshot is the canonical, checksummed on-disk representation of the
// queue (spec §3 "QueuePersistence snapshot").
type Snapshot struct {
	Version          int      `json:"version"`
	Timestamp        int64    `json:"timestamp"`
	SpaceKey         string   `json:"spaceKey"`
	QueueItems       []Item   `json:"queueItems"`
	ProcessedPageIDs []string `json:"processedPageIds"`
	Metrics          Metrics  `json:"metrics"`
	Checksum         string   `json:"checksum"`
}

// checksumOf computes the checksum over the canonical encoding of s
// with Checksum nulled out, per spec: "checksum covers a canonical
// (sorted) serialization of everything except the checksum field".
func checksumOf(s Snapshot) (string, error) {
	s.Checksum = ""
	canonical, err := checksum.Canonical(s)
	if err != nil {
		return "", err
	}
	return checksum.SHA256Hex(canonical), nil
}

// BackupRetention is the number of rolling backups kept.
const BackupRetention = 5

// Persist writes a snapshot of the queue to path atomically, rotates a
// backup of the previous snapshot (if any) into "<path>.backup.<ts>",
// and prunes backups beyond BackupRetention. Persist clones state
// inside the critical section and performs I/O outside it.
func (q *Queue) Persist(path, spaceKey string) error {
	q.mu.Lock()
	snap := Snapshot{
		Version:          SnapshotVersion,
		Timestamp:        q.clock().Unix(),
		SpaceKey:         spaceKey,
		QueueItems:       q.snapshotItemsLocked(),
		ProcessedPageIDs: q.snapshotProcessedLocked(),
		Metrics:          q.metrics.Clone(),
	}
	q.mu.Unlock()

	sum, err := checksumOf(snap)
	if err != nil {
		return karma.Reason(err)
	}
	snap.Checksum = sum

	if atomicfile.Exists(path) {
		if err := rotateBackup(path); err != nil {
			// Backup rotation failures are non-fatal per spec §7
			// ("queue persistence errors: logged, operation continues").
			log.Warningf(err, "unable to rotate queue snapshot backup for %s", path)
		}
	}

	if err := atomicfile.WriteJSON(path, snap); err != nil {
		return karma.Describe("path", path).Reason(err)
	}

	pruneBackups(path, BackupRetention)

	q.ResetPersistCounter()

	return nil
}

func rotateBackup(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	backupPath := path + ".backup." + strconv.FormatInt(time.Now().UnixNano(), 10)
	return atomicfile.WriteFile(backupPath, data, 0o644)
}

func listBackups(path string) []string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var backups []string
	prefix := base + ".backup."
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}

	// newest first, by the numeric suffix
	sort.Slice(backups, func(i, j int) bool {
		return backupTimestamp(backups[i]) > backupTimestamp(backups[j])
	})

	return backups
}

func backupTimestamp(path string) int64 {
	idx := strings.LastIndex(path, ".backup.")
	if idx < 0 {
		return 0
	}
	n, _ := strconv.ParseInt(path[idx+len(".backup."):], 10, 64)
	return n
}

func pruneBackups(path string, keep int) {
	backups := listBackups(path)
	for i := keep; i < len(backups); i++ {
		os.Remove(backups[i])
	}
}

// RestoreResult reports which recovery path was taken.
type RestoreResult struct {
	Recovered     bool
	Source        string // "direct", "auto-repair", "backup", "fresh"
	DroppedItems  int
	BackupPath    string
}

// Restore loads the latest snapshot from path, verifying its checksum.
// If the primary snapshot is missing, corrupted, or fails checksum
// verification, it runs the recovery sequence from spec §4.1: direct
// (n/a, this is a fresh load) -> auto-repair -> backup recovery ->
// fresh.
func Restore(path string, cfg Config) (*Queue, RestoreResult, error) {
	snap, err := loadAndVerify(path)
	if err == nil {
		q := fromSnapshot(snap, cfg)
		return q, RestoreResult{Recovered: true, Source: "direct"}, nil
	}

	if repaired, dropped, repairErr := attemptAutoRepair(path); repairErr == nil {
		q := fromSnapshot(repaired, cfg)
		return q, RestoreResult{Recovered: true, Source: "auto-repair", DroppedItems: dropped}, nil
	}

	for _, backupPath := range listBackups(path) {
		snap, err := loadAndVerifyFile(backupPath)
		if err != nil {
			continue
		}
		q := fromSnapshot(snap, cfg)
		return q, RestoreResult{Recovered: true, Source: "backup", BackupPath: backupPath}, nil
	}

	// Fresh: best-effort preserve processedPages from whatever
	// corrupted state we could parse.
	q := New(cfg)
	processed, dropped := bestEffortProcessedPages(path)
	for _, id := range processed {
		q.processedPages[id] = struct{}{}
	}

	return q, RestoreResult{Recovered: false, Source: "fresh", DroppedItems: dropped}, nil
}

func loadAndVerify(path string) (Snapshot, error) {
	return loadAndVerifyFile(path)
}

func loadAndVerifyFile(path string) (Snapshot, error) {
	var snap Snapshot
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, karma.Describe("path", path).Reason(err)
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, karma.Describe("path", path).Format(err, "unable to parse snapshot")
	}

	want := snap.Checksum
	got, err := checksumOf(snap)
	if err != nil {
		return Snapshot{}, err
	}
	if got != want {
		return Snapshot{}, karma.
			Describe("path", path).
			Describe("expected", want).
			Describe("actual", got).
			Reason("snapshot checksum mismatch")
	}

	if snap.Version != SnapshotVersion {
		return Snapshot{}, karma.Describe("version", snap.Version).Reason("unsupported snapshot version")
	}

	return snap, nil
}

// attemptAutoRepair coerces missing fields to defaults, drops items
// failing per-item validation, rebuilds processingOrder to intersect
// with items, and recomputes currentQueueSize.
func attemptAutoRepair(path string) (Snapshot, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, 0, err
	}

	var loose struct {
		Version          int             `json:"version"`
		Timestamp        int64           `json:"timestamp"`
		SpaceKey         string          `json:"spaceKey"`
		QueueItems       []json.RawMessage `json:"queueItems"`
		ProcessedPageIDs []string        `json:"processedPageIds"`
		Metrics          Metrics         `json:"metrics"`
	}

	if err := json.Unmarshal(raw, &loose); err != nil {
		return Snapshot{}, 0, karma.Reason(err)
	}

	dropped := 0
	var validItems []Item
	for _, rawItem := range loose.QueueItems {
		var it Item
		if err := json.Unmarshal(rawItem, &it); err != nil {
			dropped++
			continue
		}
		if it.PageID == "" {
			dropped++
			continue
		}
		if it.Status == "" {
			it.Status = StatusPending
		}
		validItems = append(validItems, it)
	}

	active := 0
	for _, it := range validItems {
		if it.Status == StatusPending || it.Status == StatusProcessing {
			active++
		}
	}
	loose.Metrics.CurrentQueueSize = active

	snap := Snapshot{
		Version:          SnapshotVersion,
		Timestamp:         loose.Timestamp,
		SpaceKey:          loose.SpaceKey,
		QueueItems:        validItems,
		ProcessedPageIDs:  loose.ProcessedPageIDs,
		Metrics:           loose.Metrics,
	}

	if len(validItems) == 0 && len(loose.ProcessedPageIDs) == 0 {
		return Snapshot{}, dropped, karma.Reason("nothing recoverable by auto-repair")
	}

	return snap, dropped, nil
}

// bestEffortProcessedPages tries to salvage the processedPageIds array
// out of a corrupted snapshot file, even if the rest is unparseable.
func bestEffortProcessedPages(path string) ([]string, int) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0
	}

	var loose struct {
		ProcessedPageIDs []string `json:"processedPageIds"`
	}
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, 1
	}

	return loose.ProcessedPageIDs, 0
}

func fromSnapshot(snap Snapshot, cfg Config) *Queue {
	q := New(cfg)

	for _, id := range snap.ProcessedPageIDs {
		q.processedPages[id] = struct{}{}
	}

	for _, item := range snap.QueueItems {
		stored := item
		// Items mid-processing at the time of the crash are treated as
		// pending again: no worker is actually still running them.
		if stored.Status == StatusProcessing {
			stored.Status = StatusPending
		}
		q.items[stored.PageID] = &stored
		if stored.Status == StatusPending {
			q.processingOrder = append(q.processingOrder, stored.PageID)
		}
	}

	q.metrics = snap.Metrics
	q.metrics.CurrentQueueSize = q.activeCountLocked()

	return q
}
