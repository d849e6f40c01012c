// Package resume implements the resume guard: it classifies prior
// export state from sentinel files and enforces that the user
// explicitly choose --resume or --fresh whenever prior state exists.
package resume

import (
	"path/filepath"

	"github.com/reconquest/karma-go"

	"github.com/bonovoxly/confluence-exporter/internal/atomicfile"
	"github.com/bonovoxly/confluence-exporter/internal/sentinel"
)

// State is the classification of prior export state (spec §4.3).
type State string

const (
	StateFresh          State = "fresh"
	StateInterrupted    State = "interrupted"
	StateCompletedPrior State = "completed-prior"
)

// Mode is the mode the export should run in.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeResume Mode = "resume"
	ModeFresh  Mode = "fresh"
)

// Config is the portion of CLI flags relevant to resume decisions.
type Config struct {
	OutputDir string
	Resume    bool
	Fresh     bool
}

// Decision is the result of Validate.
type Decision struct {
	Valid       bool
	Mode        Mode
	ShouldAbort bool
	Message     string
	State       State
}

// Classify inspects the sentinel files under cfg.OutputDir and returns
// the prior state, per the table in spec §4.3.
func Classify(outputDir string) (State, error) {
	inProgressPath := filepath.Join(outputDir, sentinel.InProgressName)
	completedPath := filepath.Join(outputDir, sentinel.CompletedName)

	hasInProgress := atomicfile.Exists(inProgressPath)
	hasCompleted := atomicfile.Exists(completedPath)

	switch {
	case !hasInProgress && !hasCompleted:
		return StateFresh, nil
	case hasInProgress && !hasCompleted:
		return StateInterrupted, nil
	case hasInProgress && hasCompleted:
		return StateCompletedPrior, nil
	default:
		// Completed without in-progress sentinel: the state a clean
		// run leaves behind, since it writes the completed marker and
		// then removes the in-progress sentinel.
		return StateCompletedPrior, nil
	}
}

// Validate computes the resume decision for cfg.
func Validate(cfg Config) (Decision, error) {
	if cfg.Resume && cfg.Fresh {
		return Decision{}, karma.Reason("--resume and --fresh are mutually exclusive")
	}

	state, err := Classify(cfg.OutputDir)
	if err != nil {
		return Decision{}, err
	}

	switch state {
	case StateFresh:
		return Decision{Valid: true, Mode: ModeNormal, State: state}, nil

	case StateInterrupted:
		switch {
		case cfg.Fresh:
			return Decision{Valid: true, Mode: ModeFresh, State: state}, nil
		case cfg.Resume:
			return Decision{Valid: true, Mode: ModeResume, State: state}, nil
		default:
			return Decision{
				Valid:       false,
				ShouldAbort: true,
				State:       state,
				Message: "a previous export was interrupted; specify --resume to " +
					"continue it or --fresh to start over",
			}, nil
		}

	case StateCompletedPrior:
		switch {
		case cfg.Fresh:
			return Decision{Valid: true, Mode: ModeFresh, State: state}, nil
		case cfg.Resume:
			return Decision{
				Valid:       false,
				ShouldAbort: true,
				State:       state,
				Message:     "the previous export already completed; --resume is not valid, use --fresh to re-export",
			}, nil
		default:
			return Decision{
				Valid:       true,
				Mode:        ModeNormal,
				State:       state,
				Message:     "the previous export already completed; nothing to do",
			}, nil
		}
	}

	return Decision{}, karma.Describe("state", string(state)).Reason("unreachable resume state")
}

// ClearPriorState removes sentinel, journal and queue snapshot files
// ahead of a --fresh run (spec §4.3: "--fresh always clears sentinel +
// completed and any journal/queue snapshot before the export begins").
func ClearPriorState(outputDir, journalPath, queueSnapshotPath string) error {
	paths := []string{
		filepath.Join(outputDir, sentinel.InProgressName),
		filepath.Join(outputDir, sentinel.CompletedName),
		journalPath,
		queueSnapshotPath,
	}

	for _, p := range paths {
		if err := atomicfile.Remove(p); err != nil {
			return karma.Describe("path", p).Reason(err)
		}
	}

	return nil
}
