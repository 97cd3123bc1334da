package bitwatch

import (
	"sync"
)

// Mode selects what a run does with what it finds
type Mode struct {
	// Verify compares against the snapshot without writing to it
	Verify bool
	// Prune deletes nodes that vanished from disk and retires vanished roots
	Prune bool
	// RefreshOnly enumerates the structure without hashing or persistence
	RefreshOnly bool
}

// String returns a short label used in logs and metrics
func (m Mode) String() string {
	var name string
	switch {
	case m.RefreshOnly:
		return "refresh"
	case m.Verify:
		name = "verify"
	default:
		name = "hash"
	}
	if m.Prune {
		name += "+prune"
	}
	return name
}

// Scope is the portion of a root a run covers. An empty or "." relative
// path covers the whole root.
type Scope struct {
	RootID       RootID `json:"root_id" yaml:"root_id"`
	RelativePath string `json:"relative_path" yaml:"relative_path"`
}

// WholeRoot returns the scope covering every node of a root
func WholeRoot(id RootID) Scope {
	return Scope{RootID: id, RelativePath: RootRelativePath}
}

// normalised returns the scope with its relative path normalised
func (s Scope) normalised() Scope {
	return Scope{RootID: s.RootID, RelativePath: NormaliseRelPath(s.RelativePath)}
}

// IsWholeRoot reports whether the scope covers the whole root
func (s Scope) IsWholeRoot() bool {
	return NormaliseRelPath(s.RelativePath) == RootRelativePath
}

// Overlaps reports whether the two scopes share any node: same root, and one
// path equal to or beneath the other
func (s Scope) Overlaps(other Scope) bool {
	if s.RootID != other.RootID {
		return false
	}
	a := NormaliseRelPath(s.RelativePath)
	b := NormaliseRelPath(other.RelativePath)
	return IsUnderOrEqual(a, b) || IsUnderOrEqual(b, a)
}

// scopeLocks is the table of scopes with a run in flight. Acquisition is
// non-blocking: an overlapping request is rejected.
type scopeLocks struct {
	mu     sync.Mutex
	active map[uint64]Scope
	nextID uint64
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{active: make(map[uint64]Scope)}
}

// acquire claims scope and returns a release function, or ErrScopeBusy if an
// overlapping scope is already held
func (l *scopeLocks) acquire(scope Scope) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, held := range l.active {
		if held.Overlaps(scope) {
			return nil, ErrScopeBusy
		}
	}

	l.nextID++
	id := l.nextID
	l.active[id] = scope

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.active, id)
			l.mu.Unlock()
		})
	}, nil
}

// held returns the number of scopes currently claimed
func (l *scopeLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}
