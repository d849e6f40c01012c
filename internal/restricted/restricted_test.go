package restricted

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	test := assert.New(t)

	cases := []struct {
		name     string
		status   int
		archived bool
		deleted  bool
		expected Classification
	}{
		{"archived hint wins", 200, true, false, Archived},
		{"deleted hint wins", 200, false, true, Deleted},
		{"401 is permission denied", 401, false, false, PermissionDenied},
		{"403 is permission denied", 403, false, false, PermissionDenied},
		{"404 is not found", 404, false, false, NotFound},
		{"429 is transient", 429, false, false, Transient},
		{"500 is transient", 500, false, false, Transient},
		{"400 is api error", 400, false, false, APIError},
		{"200 is transient default", 200, false, false, Transient},
	}

	for _, c := range cases {
		test.Equal(c.expected, Classify(c.status, c.archived, c.deleted), c.name)
	}
}

func TestClassificationManifestStatus(t *testing.T) {
	test := assert.New(t)

	test.Equal("denied", PermissionDenied.ManifestStatus())
	test.Equal("denied", RestrictedSpace.ManifestStatus())
	test.Equal("removed", NotFound.ManifestStatus())
	test.Equal("removed", Archived.ManifestStatus())
	test.Equal("removed", Deleted.ManifestStatus())
	test.Equal("", APIError.ManifestStatus())
	test.Equal("", Transient.ManifestStatus())
}

func TestEvaluatorPageFailureThreshold(t *testing.T) {
	test := assert.New(t)

	eval := NewEvaluator(Thresholds{MaxPageFailures: 2})
	eval.RecordPageFailure("1", NotFound)
	eval.RecordPageFailure("2", PermissionDenied)

	summary := eval.Evaluate()
	test.False(summary.ThresholdExceeded)

	eval.RecordPageFailure("3", APIError)
	summary = eval.Evaluate()
	test.True(summary.ThresholdExceeded)
	test.Contains(summary.Reason, "page failures")
}

func TestEvaluatorAllowRestrictedPagesExcludesTerminal(t *testing.T) {
	test := assert.New(t)

	eval := NewEvaluator(Thresholds{MaxPageFailures: 0, AllowRestrictedPages: true})
	eval.RecordPageFailure("1", NotFound)
	eval.RecordPageFailure("2", PermissionDenied)

	summary := eval.Evaluate()
	test.Equal(0, summary.PageFailures)
	test.False(summary.ThresholdExceeded)
}

func TestEvaluatorAttachmentFailurePercentage(t *testing.T) {
	test := assert.New(t)

	eval := NewEvaluator(Thresholds{MaxAttachmentFailurePercentage: 50})
	eval.RecordAttachmentOutcome(true)
	eval.RecordAttachmentOutcome(false)
	eval.RecordAttachmentOutcome(true)

	summary := eval.Evaluate()
	test.True(summary.ThresholdExceeded)
	test.Contains(summary.Reason, "attachment failure rate")
}

func TestEvaluatorNoThresholdsNeverExceeds(t *testing.T) {
	test := assert.New(t)

	eval := NewEvaluator(Thresholds{})
	for i := 0; i < 50; i++ {
		eval.RecordPageFailure("x", APIError)
	}

	summary := eval.Evaluate()
	test.False(summary.ThresholdExceeded)
}
