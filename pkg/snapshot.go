package bitwatch

import (
	"path"
	"strings"

	zcsl "github.com/mattkeenan/zerocopyskiplist"
)

// snapshotEntry is one prior node held by the snapshot index
type snapshotEntry struct {
	node Node
}

// snapshotIndex holds the repository's nodes for one root as they were when
// a run started, ordered by relative path. The skiplist context of each
// entry records whether the walk has seen it on disk (FoundContext) or not
// (PriorContext); whatever is still PriorContext after the walk is deleted.
//
// The index is owned by a single run goroutine and is not safe for
// concurrent use.
type snapshotIndex struct {
	skiplist *zcsl.ZeroCopySkiplist[snapshotEntry, string, string]
	count    int
}

// newSnapshotIndex builds an index from the nodes returned by the repository
func newSnapshotIndex(nodes []Node) *snapshotIndex {
	getKeyFromItem := func(e *snapshotEntry) string {
		return e.node.RelativePath
	}
	getItemSize := func(e *snapshotEntry) int {
		return len(e.node.RelativePath) + len(e.node.ContentHash) + len(e.node.HashAlgorithm)
	}

	s := &snapshotIndex{
		skiplist: zcsl.MakeZeroCopySkiplist[snapshotEntry, string, string](
			16,
			getKeyFromItem,
			getItemSize,
			strings.Compare,
		),
	}

	for i := range nodes {
		entry := &snapshotEntry{node: nodes[i]}
		entry.node.RelativePath = NormaliseRelPath(entry.node.RelativePath)
		if item, _ := s.skiplist.Find(entry.node.RelativePath); item != nil {
			continue // First record wins
		}
		s.skiplist.Insert(entry, PriorContext)
		s.count++
	}
	return s
}

// Len returns the number of prior nodes
func (s *snapshotIndex) Len() int {
	return s.count
}

// find returns the prior node recorded for relPath
func (s *snapshotIndex) find(relPath string) (Node, bool) {
	item, _ := s.skiplist.Find(relPath)
	if item == nil {
		return Node{}, false
	}
	entry := item.Item()
	return entry.node, true
}

// markFound records that relPath exists on disk. Paths without a prior
// node are ignored; only prior nodes take part in deletion detection.
func (s *snapshotIndex) markFound(relPath string) {
	s.skiplist.UpdateContext(relPath, FoundContext)
}

// markSubtreeFound marks relPath and every prior node beneath it as found
func (s *snapshotIndex) markSubtreeFound(relPath string) {
	s.scanUnder(relPath, func(item *snapshotItem) {
		item.SetContext(FoundContext)
	})
}

// descendants returns the prior nodes strictly beneath relPath, in order
func (s *snapshotIndex) descendants(relPath string) []Node {
	var nodes []Node
	s.scanUnder(relPath, func(item *snapshotItem) {
		if item.Key() != relPath {
			nodes = append(nodes, item.Item().node)
		}
	})
	return nodes
}

// unfound returns the prior nodes at or beneath scope that the walk never
// marked found, in path order
func (s *snapshotIndex) unfound(scope string) []Node {
	var nodes []Node
	s.scanUnder(scope, func(item *snapshotItem) {
		if item.Context() == PriorContext {
			nodes = append(nodes, item.Item().node)
		}
	})
	return nodes
}

type snapshotItem = zcsl.ItemPtr[snapshotEntry, string, string]

// scanUnder calls fn for relPath and every prior node beneath it, in path
// order. Entries under relPath are contiguous, but siblings such as "a.txt"
// sort between "a" and "a/b", so the scan starts at the closest recorded
// ancestor and stops at the first key past the "relPath/" range.
func (s *snapshotIndex) scanUnder(relPath string, fn func(item *snapshotItem)) {
	if relPath == RootRelativePath {
		for current := s.skiplist.First(); current != nil; current = current.Next() {
			fn(current)
		}
		return
	}

	prefix := relPath + PathSeparator
	for current := s.seek(relPath); current != nil; current = current.Next() {
		key := current.Key()
		switch {
		case key == relPath || strings.HasPrefix(key, prefix):
			fn(current)
		case key > prefix:
			return
		}
	}
}

// seek returns the entry for relPath or its nearest recorded ancestor below
// the root, falling back to the first entry. "." is not a lower bound since
// names like "-x" sort before it.
func (s *snapshotIndex) seek(relPath string) *snapshotItem {
	for p := relPath; p != RootRelativePath; p = path.Dir(p) {
		if item := s.skiplist.FindItem(p); item != nil {
			return item
		}
	}
	return s.skiplist.First()
}
