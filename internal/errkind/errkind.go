// Package errkind classifies errors observed by the core into the
// kinds enumerated in spec §7, each carrying a retryable flag and a
// severity. Kinds are attached to karma-wrapped errors as context
// rather than via a bespoke error struct, matching the teacher's
// karma-go idiom of describing errors with key/value context.
package errkind

import "github.com/reconquest/karma-go"

// Kind is one of the error kinds observable by the core.
type Kind string

const (
	Network       Kind = "network"
	Timeout       Kind = "timeout"
	RateLimit     Kind = "rate_limit"
	Authentication Kind = "authentication"
	Authorization Kind = "authorization"
	NotFound      Kind = "not_found"
	Content       Kind = "content"
	Filesystem    Kind = "filesystem"
	Configuration Kind = "configuration"
	Validation    Kind = "validation"
	Unknown       Kind = "unknown"
)

// Severity is the severity of an error kind.
type Severity string

const (
	Low    Severity = "low"
	Medium Severity = "medium"
	High   Severity = "high"
)

// properties describes the fixed retryable/severity mapping for each
// kind, per spec §7.
var properties = map[Kind]struct {
	Retryable bool
	Severity  Severity
}{
	Network:       {Retryable: true, Severity: Medium},
	Timeout:       {Retryable: true, Severity: Medium},
	RateLimit:     {Retryable: true, Severity: Low},
	Authentication: {Retryable: false, Severity: High},
	Authorization: {Retryable: false, Severity: High},
	NotFound:      {Retryable: false, Severity: Medium},
	Content:       {Retryable: false, Severity: Medium},
	Filesystem:    {Retryable: false, Severity: High},
	Configuration: {Retryable: false, Severity: High},
	Validation:    {Retryable: false, Severity: High},
	Unknown:       {Retryable: false, Severity: Medium},
}

// Retryable reports whether errors of kind k should be retried.
func (k Kind) Retryable() bool {
	return properties[k].Retryable
}

// SeverityOf returns the severity associated with kind k.
func (k Kind) SeverityOf() Severity {
	return properties[k].Severity
}

// Wrap attaches kind as karma context on err, describing both the kind
// and its derived retryable/severity properties so downstream summary
// code (spec §7 "structured summary with per-kind counts") can read
// them back out without re-classifying.
func Wrap(err error, k Kind) error {
	if err == nil {
		return nil
	}
	return karma.
		Describe("kind", string(k)).
		Describe("retryable", k.Retryable()).
		Describe("severity", string(k.SeverityOf())).
		Reason(err)
}

// FromHTTPStatus maps an HTTP status code to an error kind, the basis
// for classifying Confluence API adapter failures (spec §4.7, §7).
func FromHTTPStatus(status int) Kind {
	switch status {
	case 401:
		return Authentication
	case 403:
		return Authorization
	case 404:
		return NotFound
	case 429:
		return RateLimit
	}

	if status == 0 || status >= 500 {
		return Network
	}

	return Unknown
}
