package bitwatch

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the engine
var (
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
	ErrScopeBusy            = errors.New("a run is already in progress for this scope")
	ErrRootNotFound         = errors.New("root not found")
	ErrPathOutsideRoots     = errors.New("path is not under any watched root")
	ErrNotDirectory         = errors.New("not a directory")
)

// NodeError describes a failure confined to a single node: a permission
// problem, an I/O error, or a file that vanished between stat and open.
// It becomes an OutcomeError event and never aborts the run.
type NodeError struct {
	Path string // Absolute path of the node
	Op   string // "stat", "list" or "hash"
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// RepositoryError wraps a failure of the snapshot repository. It aborts the
// enclosing run; nodes already upserted stay committed.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// repoErr wraps err as a RepositoryError unless it is nil or already one
func repoErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RepositoryError
	if errors.As(err, &re) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}
