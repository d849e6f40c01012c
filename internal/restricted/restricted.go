// Package restricted implements the restricted-page handler and
// failure-threshold evaluation (spec §4.7).
package restricted

import "fmt"

// Classification is the outcome of classifying a fetch failure.
type Classification string

const (
	PermissionDenied Classification = "permission_denied"
	NotFound         Classification = "not_found"
	Archived         Classification = "archived"
	Deleted          Classification = "deleted"
	RestrictedSpace  Classification = "restricted_space"
	APIError         Classification = "api_error"
	Transient        Classification = "transient"
)

// terminal reports whether a classification never emits a Markdown
// file and is non-retryable (spec §4.7: "the first five never emit a
// Markdown file").
func (c Classification) terminal() bool {
	switch c {
	case PermissionDenied, NotFound, Archived, Deleted, RestrictedSpace:
		return true
	default:
		return false
	}
}

// ManifestStatus returns the manifest status a terminal classification
// should be recorded with, or "" if c is retryable and should not
// produce a manifest entry itself.
func (c Classification) ManifestStatus() string {
	switch c {
	case PermissionDenied, RestrictedSpace:
		return "denied"
	case NotFound, Archived, Deleted:
		return "removed"
	default:
		return ""
	}
}

// Classify maps an HTTP status (and a best-effort archived/deleted
// hint from the page metadata, when available) to a Classification.
func Classify(httpStatus int, archived, deleted bool) Classification {
	switch {
	case archived:
		return Archived
	case deleted:
		return Deleted
	case httpStatus == 401 || httpStatus == 403:
		return PermissionDenied
	case httpStatus == 404:
		return NotFound
	case httpStatus == 429 || httpStatus >= 500:
		return Transient
	case httpStatus >= 400:
		return APIError
	default:
		return Transient
	}
}

// Record is one restricted-page observation accumulated over a run.
type Record struct {
	PageID         string
	Classification Classification
}

// Thresholds configures when accumulated failures should fail the run
// (spec §4.7).
type Thresholds struct {
	MaxPageFailures                int
	MaxAttachmentFailures          int
	MaxAttachmentFailurePercentage float64
	AllowRestrictedPages           bool
}

// Summary is the restricted-page/failure-threshold evaluation result.
type Summary struct {
	PageFailures       int
	AttachmentFailures int
	AttachmentTotal    int
	ByClassification   map[Classification]int
	ThresholdExceeded  bool
	Reason             string
}

// Evaluator accumulates Records and attachment counts over a run and
// evaluates them against Thresholds at completion.
type Evaluator struct {
	thresholds         Thresholds
	pageRecords        []Record
	attachmentFailures int
	attachmentTotal    int
}

// NewEvaluator creates an Evaluator for the given thresholds.
func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{thresholds: t}
}

// RecordPageFailure accumulates a page-level restricted/failed
// observation. Transient/api_error classifications that exhausted
// retries are also recorded here as terminal failures by the caller.
func (e *Evaluator) RecordPageFailure(pageID string, c Classification) {
	e.pageRecords = append(e.pageRecords, Record{PageID: pageID, Classification: c})
}

// RecordAttachmentOutcome accumulates one attachment download attempt.
func (e *Evaluator) RecordAttachmentOutcome(failed bool) {
	e.attachmentTotal++
	if failed {
		e.attachmentFailures++
	}
}

// Evaluate produces the final Summary (spec §4.7: "Evaluated at
// completion; exceeding any threshold produces a content-failure exit
// regardless of how many pages succeeded.").
func (e *Evaluator) Evaluate() Summary {
	byClass := make(map[Classification]int)
	restrictedCount := 0
	for _, r := range e.pageRecords {
		byClass[r.Classification]++
		if r.Classification.terminal() {
			restrictedCount++
		}
	}

	countedFailures := len(e.pageRecords)
	if e.thresholds.AllowRestrictedPages {
		countedFailures -= restrictedCount
		if countedFailures < 0 {
			countedFailures = 0
		}
	}

	summary := Summary{
		PageFailures:       countedFailures,
		AttachmentFailures: e.attachmentFailures,
		AttachmentTotal:    e.attachmentTotal,
		ByClassification:   byClass,
	}

	if e.thresholds.MaxPageFailures > 0 && countedFailures > e.thresholds.MaxPageFailures {
		summary.ThresholdExceeded = true
		summary.Reason = fmt.Sprintf("page failures %d exceed threshold %d", countedFailures, e.thresholds.MaxPageFailures)
		return summary
	}

	if e.thresholds.MaxAttachmentFailures > 0 && e.attachmentFailures > e.thresholds.MaxAttachmentFailures {
		summary.ThresholdExceeded = true
		summary.Reason = fmt.Sprintf("attachment failures %d exceed threshold %d", e.attachmentFailures, e.thresholds.MaxAttachmentFailures)
		return summary
	}

	if e.thresholds.MaxAttachmentFailurePercentage > 0 && e.attachmentTotal > 0 {
		pct := float64(e.attachmentFailures) / float64(e.attachmentTotal) * 100
		if pct > e.thresholds.MaxAttachmentFailurePercentage {
			summary.ThresholdExceeded = true
			summary.Reason = fmt.Sprintf("attachment failure rate %.1f%% exceeds threshold %.1f%%", pct, e.thresholds.MaxAttachmentFailurePercentage)
			return summary
		}
	}

	return summary
}
