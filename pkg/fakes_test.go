package bitwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"
)

// memRepository is an in-memory Repository for engine tests
type memRepository struct {
	mu         sync.Mutex
	nextID     RootID
	roots      map[RootID]Root
	nodes      map[RootID]map[string]Node
	exclusions map[RootID]map[string]bool
	settings   map[string]string

	upserts        int
	failUpsertFrom int // Fail every upsert after this many succeed; 0 disables
	failGetNodes   error
}

func newMemRepository() *memRepository {
	return &memRepository{
		roots:      make(map[RootID]Root),
		nodes:      make(map[RootID]map[string]Node),
		exclusions: make(map[RootID]map[string]bool),
		settings:   make(map[string]string),
	}
}

var errRepoDown = errors.New("repository unavailable")

func (r *memRepository) ListRoots(ctx context.Context) ([]Root, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := make([]Root, 0, len(r.roots))
	for _, root := range r.roots {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Path < roots[j].Path })
	return roots, nil
}

func (r *memRepository) AddRoot(ctx context.Context, path string) (Root, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, root := range r.roots {
		if root.Path == path {
			return root, nil
		}
	}
	r.nextID++
	root := Root{ID: r.nextID, Path: path, AddedAt: time.Unix(1700000000, 0)}
	r.roots[root.ID] = root
	return root, nil
}

func (r *memRepository) RemoveRoot(ctx context.Context, id RootID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roots[id]; !ok {
		return fmt.Errorf("%w: %d", ErrRootNotFound, id)
	}
	delete(r.roots, id)
	delete(r.nodes, id)
	delete(r.exclusions, id)
	return nil
}

func (r *memRepository) GetNodes(ctx context.Context, rootID RootID) ([]Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGetNodes != nil {
		return nil, r.failGetNodes
	}
	var nodes []Node
	for _, node := range r.nodes[rootID] {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].RelativePath < nodes[j].RelativePath })
	return nodes, nil
}

func (r *memRepository) UpsertNode(ctx context.Context, node Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpsertFrom > 0 && r.upserts >= r.failUpsertFrom {
		return errRepoDown
	}
	r.upserts++
	if r.nodes[node.RootID] == nil {
		r.nodes[node.RootID] = make(map[string]Node)
	}
	r.nodes[node.RootID][node.RelativePath] = node
	return nil
}

func (r *memRepository) DeleteNodes(ctx context.Context, nodes []Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, node := range nodes {
		delete(r.nodes[node.RootID], node.RelativePath)
	}
	return nil
}

func (r *memRepository) GetExclusionRules(ctx context.Context, rootID RootID) ([]ExclusionRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rules []ExclusionRule
	for path := range r.exclusions[rootID] {
		rules = append(rules, ExclusionRule{RootID: rootID, RelativePath: path})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].RelativePath < rules[j].RelativePath })
	return rules, nil
}

func (r *memRepository) AddExclusionRule(ctx context.Context, rule ExclusionRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exclusions[rule.RootID] == nil {
		r.exclusions[rule.RootID] = make(map[string]bool)
	}
	r.exclusions[rule.RootID][NormaliseRelPath(rule.RelativePath)] = true
	return nil
}

func (r *memRepository) RemoveExclusionRule(ctx context.Context, rule ExclusionRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exclusions[rule.RootID], NormaliseRelPath(rule.RelativePath))
	return nil
}

func (r *memRepository) GetSetting(ctx context.Context, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.settings[key]
	return value, ok, nil
}

func (r *memRepository) SaveSetting(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = value
	return nil
}

// node returns the stored node for a path
func (r *memRepository) node(rootID RootID, relPath string) (Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[rootID][relPath]
	return node, ok
}

// nodeCount returns the number of stored nodes of a root
func (r *memRepository) nodeCount(rootID RootID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes[rootID])
}

// memFilesystem is an in-memory Filesystem. Listings come back in a
// shuffled order so results cannot depend on enumeration order.
type memFilesystem struct {
	mu       sync.Mutex
	dirs     map[string]bool
	files    map[string][]byte
	statErr  map[string]error
	listErr  map[string]error
	openErr  map[string]error
	rng      *rand.Rand
	onOpen   func(path string) // Called before every open
	openedMu sync.Mutex
	opened   []string
}

func newMemFilesystem(seed int64) *memFilesystem {
	return &memFilesystem{
		dirs:    make(map[string]bool),
		files:   make(map[string][]byte),
		statErr: make(map[string]error),
		listErr: make(map[string]error),
		openErr: make(map[string]error),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// mkdir creates a directory and its parents
func (f *memFilesystem) mkdir(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for p := filepath.Clean(path); ; p = filepath.Dir(p) {
		f.dirs[p] = true
		if p == "/" || p == "." {
			return
		}
	}
}

// write creates a file and its parent directories
func (f *memFilesystem) write(path, content string) {
	f.mkdir(filepath.Dir(path))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[filepath.Clean(path)] = []byte(content)
}

// remove deletes a file or a directory with everything beneath it
func (f *memFilesystem) remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = filepath.Clean(path)
	prefix := path + "/"
	for p := range f.files {
		if p == path || len(p) > len(prefix) && p[:len(prefix)] == prefix {
			delete(f.files, p)
		}
	}
	for p := range f.dirs {
		if p == path || len(p) > len(prefix) && p[:len(prefix)] == prefix {
			delete(f.dirs, p)
		}
	}
}

func (f *memFilesystem) Exists(path string) (NodeKind, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = filepath.Clean(path)
	if err := f.statErr[path]; err != nil {
		return 0, false, err
	}
	if f.dirs[path] {
		return KindDirectory, true, nil
	}
	if _, ok := f.files[path]; ok {
		return KindFile, true, nil
	}
	return 0, false, nil
}

func (f *memFilesystem) ListChildren(path string) ([]string, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = filepath.Clean(path)
	if err := f.listErr[path]; err != nil {
		return nil, nil, err
	}
	if !f.dirs[path] {
		return nil, nil, fmt.Errorf("list %s: not a directory", path)
	}

	var dirs, files []string
	for p := range f.dirs {
		if p != path && filepath.Dir(p) == path {
			dirs = append(dirs, filepath.Base(p))
		}
	}
	for p := range f.files {
		if filepath.Dir(p) == path {
			files = append(files, filepath.Base(p))
		}
	}
	f.rng.Shuffle(len(dirs), func(i, j int) { dirs[i], dirs[j] = dirs[j], dirs[i] })
	f.rng.Shuffle(len(files), func(i, j int) { files[i], files[j] = files[j], files[i] })
	return dirs, files, nil
}

func (f *memFilesystem) OpenReadStream(path string) (io.ReadCloser, error) {
	path = filepath.Clean(path)
	if f.onOpen != nil {
		f.onOpen(path)
	}

	f.openedMu.Lock()
	f.opened = append(f.opened, path)
	f.openedMu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.openErr[path]; err != nil {
		return nil, err
	}
	content, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, errNotExistForTest)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// openedPaths returns every path opened so far
func (f *memFilesystem) openedPaths() []string {
	f.openedMu.Lock()
	defer f.openedMu.Unlock()
	return append([]string(nil), f.opened...)
}

var errNotExistForTest = errors.New("file does not exist")

// fixedClock returns a clock that always reports the same instant
func fixedClock() func() time.Time {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

// newTestEngine builds an engine over the fakes
func newTestEngine(t *testing.T, repo Repository, fs Filesystem) *Engine {
	t.Helper()
	engine, err := NewEngine(Options{
		Repository:     repo,
		Filesystem:     fs,
		Clock:          fixedClock(),
		HashBufferSize: 7, // Small buffer so reads span several calls
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

// runOutcomes performs a run and returns its outcomes keyed by relative path
func runOutcomes(t *testing.T, engine *Engine, scope Scope, mode Mode) (map[string]NodeOutcome, RunSummary) {
	t.Helper()
	outcomes := make(map[string]NodeOutcome)
	summary, err := engine.Run(context.Background(), scope, mode, func(event Event) {
		if event.Outcome == nil {
			return
		}
		if prev, dup := outcomes[event.Outcome.RelativePath]; dup {
			t.Errorf("Path %s reported twice: %s then %s", event.Outcome.RelativePath, prev.Status, event.Outcome.Status)
		}
		outcomes[event.Outcome.RelativePath] = *event.Outcome
	})
	if err != nil {
		t.Fatalf("Run(%+v) error = %v", mode, err)
	}
	return outcomes, summary
}

// mustDigest hashes s or fails the test
func mustDigest(t *testing.T, s string, alg Algorithm) string {
	t.Helper()
	h, err := DigestString(s, alg)
	if err != nil {
		t.Fatalf("DigestString() error = %v", err)
	}
	return h
}
