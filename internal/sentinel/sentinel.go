// Package sentinel manages the small JSON marker files whose existence
// signals export state: ".export-in-progress" written at
// start and removed on clean exit, ".export-completed" written on
// success.
package sentinel

import (
	"github.com/reconquest/karma-go"

	"github.com/bonovoxly/confluence-exporter/internal/atomicfile"
)

// InProgressName and CompletedName are the conventional filenames
// (spec §6, under outputDir/).
const (
	InProgressName = ".export-in-progress"
	CompletedName  = ".export-completed"
)

// InProgress is the payload of the in-progress sentinel.
type InProgress struct {
	Timestamp int64  `json:"timestamp"`
	Signal    string `json:"signal,omitempty"`
	Message   string `json:"message,omitempty"`
	SpaceKey  string `json:"spaceKey"`
}

// Completed is the payload of the completed sentinel.
type Completed struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

// WriteInProgress writes the in-progress sentinel at start of export.
func WriteInProgress(path string, rec InProgress) error {
	if err := atomicfile.WriteJSON(path, rec); err != nil {
		return karma.Describe("path", path).Reason(err)
	}
	return nil
}

// ReadInProgress reads the in-progress sentinel, if present.
func ReadInProgress(path string) (*InProgress, error) {
	if !atomicfile.Exists(path) {
		return nil, nil
	}
	var rec InProgress
	if _, err := atomicfile.ReadJSON(path, &rec); err != nil {
		return nil, karma.Describe("path", path).Reason(err)
	}
	return &rec, nil
}

// RemoveInProgress deletes the in-progress sentinel on clean exit.
func RemoveInProgress(path string) error {
	return atomicfile.Remove(path)
}

// WriteCompleted writes the completed sentinel on success.
func WriteCompleted(path string, rec Completed) error {
	if err := atomicfile.WriteJSON(path, rec); err != nil {
		return karma.Describe("path", path).Reason(err)
	}
	return nil
}

// Exists reports whether the given sentinel file is present.
func Exists(path string) bool {
	return atomicfile.Exists(path)
}
