package bitwatch

import (
	"fmt"
	"time"
)

// RunOutcome classifies a node visited during a run
type RunOutcome int

const (
	OutcomeUnchanged RunOutcome = iota
	OutcomeModified
	OutcomeNew
	OutcomeDeleted
	OutcomeExcluded
	OutcomeError
)

// String returns the lower-case outcome name
func (o RunOutcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeModified:
		return "modified"
	case OutcomeNew:
		return "new"
	case OutcomeDeleted:
		return "deleted"
	case OutcomeExcluded:
		return "excluded"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Code returns the one-letter status code used in human output
func (o RunOutcome) Code() string {
	switch o {
	case OutcomeUnchanged:
		return " "
	case OutcomeModified:
		return "M"
	case OutcomeNew:
		return "A"
	case OutcomeDeleted:
		return "D"
	case OutcomeExcluded:
		return "X"
	case OutcomeError:
		return "E"
	default:
		return "?"
	}
}

// MarshalText implements encoding.TextMarshaler
func (o RunOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// NodeOutcome is one per-node event of a run
type NodeOutcome struct {
	RootID       RootID     `json:"root_id" yaml:"root_id"`
	RelativePath string     `json:"relative_path" yaml:"relative_path"`
	AbsolutePath string     `json:"absolute_path" yaml:"absolute_path"`
	Kind         NodeKind   `json:"kind" yaml:"kind"`
	Status       RunOutcome `json:"status" yaml:"status"`
	Hash         string     `json:"hash,omitempty" yaml:"hash,omitempty"`
	PreviousHash string     `json:"previous_hash,omitempty" yaml:"previous_hash,omitempty"`
	Algorithm    Algorithm  `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
	Detail       string     `json:"detail,omitempty" yaml:"detail,omitempty"`
	Err          error      `json:"-" yaml:"-"`
}

// RunSummary counts the outcomes of a run
type RunSummary struct {
	Added        int       `json:"added" yaml:"added"`
	Modified     int       `json:"modified" yaml:"modified"`
	Deleted      int       `json:"deleted" yaml:"deleted"`
	Errors       int       `json:"errors" yaml:"errors"`
	Unchanged    int       `json:"unchanged" yaml:"unchanged"`
	Excluded     int       `json:"excluded" yaml:"excluded"`
	RootsRetired int       `json:"roots_retired" yaml:"roots_retired"`
	Started      time.Time `json:"started" yaml:"started"`
	Finished     time.Time `json:"finished" yaml:"finished"`
}

// Record counts one outcome
func (s *RunSummary) Record(o RunOutcome) {
	switch o {
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeModified:
		s.Modified++
	case OutcomeNew:
		s.Added++
	case OutcomeDeleted:
		s.Deleted++
	case OutcomeExcluded:
		s.Excluded++
	case OutcomeError:
		s.Errors++
	}
}

// Merge adds the counts of other into s and widens the time range
func (s *RunSummary) Merge(other RunSummary) {
	s.Added += other.Added
	s.Modified += other.Modified
	s.Deleted += other.Deleted
	s.Errors += other.Errors
	s.Unchanged += other.Unchanged
	s.Excluded += other.Excluded
	s.RootsRetired += other.RootsRetired
	if s.Started.IsZero() || (!other.Started.IsZero() && other.Started.Before(s.Started)) {
		s.Started = other.Started
	}
	if other.Finished.After(s.Finished) {
		s.Finished = other.Finished
	}
}

// HasChanges returns true if there are any additions, modifications or deletions
func (s RunSummary) HasChanges() bool {
	return s.Added > 0 || s.Modified > 0 || s.Deleted > 0
}

// TotalChanges returns the number of added, modified and deleted nodes
func (s RunSummary) TotalChanges() int {
	return s.Added + s.Modified + s.Deleted
}

// Duration returns how long the run took
func (s RunSummary) Duration() time.Duration {
	if s.Started.IsZero() || s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}

// Event is one element of a run's stream. Every event but the last carries
// an Outcome; the last carries the Summary and the error that ended the run,
// if any.
type Event struct {
	Outcome *NodeOutcome
	Summary *RunSummary
	Err     error
}

// StructureEntry describes one node seen by a structural refresh
type StructureEntry struct {
	RootID       RootID   `json:"root_id" yaml:"root_id"`
	RelativePath string   `json:"relative_path" yaml:"relative_path"`
	Kind         NodeKind `json:"kind" yaml:"kind"`
	Excluded     bool     `json:"excluded" yaml:"excluded"`
	Known        bool     `json:"known" yaml:"known"` // A snapshot record exists
	Err          error    `json:"-" yaml:"-"`
}

// StructureEvent is one element of a refresh stream, shaped like Event
type StructureEvent struct {
	Entry *StructureEntry
	Done  bool
	Err   error
}
