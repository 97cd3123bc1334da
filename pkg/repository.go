package bitwatch

import (
	"context"
	"fmt"
	"time"
)

// RootID identifies a watched root in the repository
type RootID int64

// Root is a directory registered for watching. Path is absolute and cleaned
// and acts as the identity key: a moved directory is a different root.
type Root struct {
	ID      RootID    `json:"id" yaml:"id"`
	Path    string    `json:"path" yaml:"path"`
	AddedAt time.Time `json:"added_at" yaml:"added_at"`
}

// NodeKind tells files and directories apart
type NodeKind int

const (
	KindFile NodeKind = iota
	KindDirectory
)

// String returns the persisted name of the kind
func (k NodeKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// ParseNodeKind parses a persisted kind name
func ParseNodeKind(s string) (NodeKind, error) {
	switch s {
	case "file":
		return KindFile, nil
	case "directory":
		return KindDirectory, nil
	default:
		return 0, fmt.Errorf("unknown node kind: %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Node is a persisted fingerprint of a file or directory under a root.
// (RootID, RelativePath) is unique. ContentHash is empty when no hash has
// been recorded.
type Node struct {
	RootID        RootID    `json:"root_id" yaml:"root_id"`
	RelativePath  string    `json:"relative_path" yaml:"relative_path"`
	Kind          NodeKind  `json:"kind" yaml:"kind"`
	ContentHash   string    `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
	HashAlgorithm string    `json:"hash_algorithm,omitempty" yaml:"hash_algorithm,omitempty"`
	LastCheckedAt time.Time `json:"last_checked_at" yaml:"last_checked_at"`
}

// ExclusionRule excludes RelativePath and everything beneath it from
// hashing and from deletion detection
type ExclusionRule struct {
	RootID       RootID `json:"root_id" yaml:"root_id"`
	RelativePath string `json:"relative_path" yaml:"relative_path"`
}

// Repository is the persistence collaborator consumed by the engine. Every
// call is an independent operation; the engine never holds a transaction
// across a walk. Implementations must make UpsertNode idempotent by
// (RootID, RelativePath) and make RemoveRoot remove the root's nodes and
// exclusion rules.
type Repository interface {
	ListRoots(ctx context.Context) ([]Root, error)
	AddRoot(ctx context.Context, path string) (Root, error)
	RemoveRoot(ctx context.Context, id RootID) error

	GetNodes(ctx context.Context, rootID RootID) ([]Node, error)
	UpsertNode(ctx context.Context, node Node) error
	DeleteNodes(ctx context.Context, nodes []Node) error

	GetExclusionRules(ctx context.Context, rootID RootID) ([]ExclusionRule, error)
	AddExclusionRule(ctx context.Context, rule ExclusionRule) error
	RemoveExclusionRule(ctx context.Context, rule ExclusionRule) error

	// GetSetting returns ok=false when the key has never been saved
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)
	SaveSetting(ctx context.Context, key, value string) error
}
