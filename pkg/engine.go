package bitwatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Options configures an Engine. Only Repository is required.
type Options struct {
	Repository Repository
	Filesystem Filesystem  // Defaults to NewOSFilesystem(SymlinkModeNone)
	Logger     *zap.Logger // Defaults to zap.NewNop()
	Metrics    *Metrics    // Nil records nothing
	// Defaults are the settings used when the repository holds no value,
	// normally Config.Defaults(). The zero value means BuiltinSettings().
	Defaults       Settings
	HashBufferSize int              // Bytes per read while hashing; 0 means 2MB
	Clock          func() time.Time // Timestamp source for LastCheckedAt
	EventBuffer    int              // Capacity of event channels; 0 means DefaultEventBuffer
}

// Engine orchestrates hashing, verification and structural refresh runs
// over the roots held by a repository
type Engine struct {
	repo        Repository
	fs          Filesystem
	logger      *zap.Logger
	metrics     *Metrics
	defaults    Settings
	hasher      *Hasher
	clock       func() time.Time
	eventBuffer int
	locks       *scopeLocks
}

// NewEngine creates an engine from options
func NewEngine(opts Options) (*Engine, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("engine requires a repository")
	}

	e := &Engine{
		repo:        opts.Repository,
		fs:          opts.Filesystem,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		defaults:    opts.Defaults,
		hasher:      NewHasher(opts.HashBufferSize),
		clock:       opts.Clock,
		eventBuffer: opts.EventBuffer,
		locks:       newScopeLocks(),
	}
	if e.fs == nil {
		e.fs = NewOSFilesystem(SymlinkModeNone)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.defaults == (Settings{}) {
		e.defaults = BuiltinSettings()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.eventBuffer <= 0 {
		e.eventBuffer = DefaultEventBuffer
	}
	return e, nil
}

// RunAsync starts a hashing (or, with mode.Verify, verification) run over
// scope and returns its event stream. Every event but the last carries one
// NodeOutcome; the last carries the RunSummary and the error that ended the
// run. The channel is closed after the last event. Once ctx is cancelled the
// last event is dropped if the channel has no room for it, so a caller that
// stops reading must cancel ctx.
//
// ErrScopeBusy is returned immediately when an overlapping scope is running.
func (e *Engine) RunAsync(ctx context.Context, scope Scope, mode Mode) (<-chan Event, error) {
	if mode.RefreshOnly {
		return nil, errRefreshOnly
	}
	root, scope, release, err := e.begin(ctx, scope)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, e.eventBuffer)
	go func() {
		defer close(events)

		summary, runErr := e.run(ctx, root, scope, mode, func(outcome NodeOutcome) error {
			select {
			case events <- Event{Outcome: &outcome}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		release()
		sendLast(ctx, events, Event{Summary: &summary, Err: runErr})
	}()
	return events, nil
}

// Run performs a run synchronously, passing every event to fn (which may be
// nil), and returns the summary and terminal error
func (e *Engine) Run(ctx context.Context, scope Scope, mode Mode, fn func(Event)) (RunSummary, error) {
	if mode.RefreshOnly {
		return RunSummary{}, errRefreshOnly
	}
	root, scope, release, err := e.begin(ctx, scope)
	if err != nil {
		return RunSummary{}, err
	}
	defer release()

	summary, runErr := e.run(ctx, root, scope, mode, func(outcome NodeOutcome) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if fn != nil {
			fn(Event{Outcome: &outcome})
		}
		return nil
	})
	if fn != nil {
		fn(Event{Summary: &summary, Err: runErr})
	}
	return summary, runErr
}

var errRefreshOnly = errors.New("refresh-only runs produce structure events, use RefreshStructureAsync")

// begin claims scope and resolves its root. The caller must call release.
func (e *Engine) begin(ctx context.Context, scope Scope) (Root, Scope, func(), error) {
	scope = scope.normalised()
	release, err := e.locks.acquire(scope)
	if err != nil {
		return Root{}, scope, nil, err
	}

	root, err := e.findRoot(ctx, scope.RootID)
	if err != nil {
		release()
		return Root{}, scope, nil, err
	}
	return root, scope, release, nil
}

// sendLast delivers the terminal event of a stream. It is sent at once when
// the channel has room; otherwise it waits for a reader or for ctx to end.
func sendLast[T any](ctx context.Context, events chan<- T, last T) {
	select {
	case events <- last:
		return
	default:
	}
	select {
	case events <- last:
	case <-ctx.Done():
	}
}

// RunAll runs mode over every registered root in turn and returns the merged
// summary. Roots busy with another run are skipped. Cancellation and
// repository failures stop the sequence.
func (e *Engine) RunAll(ctx context.Context, mode Mode, fn func(Event)) (RunSummary, error) {
	roots, err := e.Roots(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	var total RunSummary
	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		summary, err := e.Run(ctx, WholeRoot(root.ID), mode, fn)
		switch {
		case errors.Is(err, ErrScopeBusy):
			e.logger.Warn("Skipping root with a run in progress", rootField(root))
			continue
		case errors.Is(err, ErrRootNotFound):
			e.logger.Warn("Skipping root removed during run", rootField(root))
			continue
		}
		total.Merge(summary)
		if err != nil {
			if isFatal(err) {
				return total, err
			}
			e.logger.Warn("Run failed", rootField(root), zap.Error(err))
		}
	}
	return total, nil
}

// run performs the walk and reconciliation for one root
func (e *Engine) run(ctx context.Context, root Root, scope Scope, mode Mode, send func(NodeOutcome) error) (RunSummary, error) {
	summary := RunSummary{Started: e.clock()}
	e.metrics.runStarted()
	finish := func(err error) (RunSummary, error) {
		summary.Finished = e.clock()
		e.metrics.runFinished(mode, summary.Duration(), err)
		if err != nil {
			e.logger.Warn("Run ended with error", rootField(root), zap.String("mode", mode.String()), zap.Error(err))
		} else {
			e.logger.Info("Run finished",
				rootField(root),
				zap.String("scope", scope.RelativePath),
				zap.String("mode", mode.String()),
				zap.Int("added", summary.Added),
				zap.Int("modified", summary.Modified),
				zap.Int("deleted", summary.Deleted),
				zap.Int("errors", summary.Errors),
				zap.Duration("elapsed", summary.Duration()))
		}
		return summary, err
	}

	e.logger.Info("Run started", rootField(root), zap.String("scope", scope.RelativePath), zap.String("mode", mode.String()))

	settings, err := LoadSettings(ctx, e.repo, e.defaults)
	if err != nil {
		return finish(err)
	}
	exclusions, prior, err := e.loadRunState(ctx, root.ID)
	if err != nil {
		return finish(err)
	}

	emit := func(outcome NodeOutcome) error {
		summary.Record(outcome.Status)
		e.metrics.observeOutcome(outcome.Status)
		e.logger.Debug("Node checked",
			zap.String("path", outcome.RelativePath),
			zap.String("status", outcome.Status.String()),
			zap.String("hash", outcome.Hash))
		return send(outcome)
	}

	w := &walker{
		root:       root,
		mode:       mode,
		repo:       e.repo,
		fs:         e.fs,
		hasher:     e.hasher,
		exclusions: exclusions,
		prior:      prior,
		algorithm:  settings.DefaultHashAlgorithm,
		checkedAt:  summary.Started,
		logger:     e.logger,
		metrics:    e.metrics,
		emit:       emit,
	}
	if _, _, err := w.visit(ctx, scope.RelativePath); err != nil {
		return finish(err)
	}
	if err := ctx.Err(); err != nil {
		return finish(err)
	}

	r := &reconciler{
		root:    root,
		mode:    mode,
		repo:    e.repo,
		prior:   prior,
		logger:  e.logger,
		metrics: e.metrics,
		emit:    emit,
	}
	retired, err := r.reconcile(ctx, scope.RelativePath)
	if retired {
		summary.RootsRetired++
	}
	return finish(err)
}

// loadRunState reads the exclusion rules and prior snapshot of a root
func (e *Engine) loadRunState(ctx context.Context, rootID RootID) (*ExclusionIndex, *snapshotIndex, error) {
	rules, err := e.repo.GetExclusionRules(ctx, rootID)
	if err != nil {
		return nil, nil, repoErr("get exclusion rules", err)
	}

	nodes, err := e.repo.GetNodes(ctx, rootID)
	if err != nil {
		return nil, nil, repoErr("get nodes", err)
	}
	return NewExclusionIndex(rules), newSnapshotIndex(nodes), nil
}

// RefreshStructureAsync enumerates scope without hashing, classification or
// persistence. The stream ends with an event whose Done is true, delivered
// on the same terms as the RunAsync summary.
func (e *Engine) RefreshStructureAsync(ctx context.Context, scope Scope) (<-chan StructureEvent, error) {
	root, scope, release, err := e.begin(ctx, scope)
	if err != nil {
		return nil, err
	}

	events := make(chan StructureEvent, e.eventBuffer)
	go func() {
		defer close(events)

		err := e.refresh(ctx, root, scope, func(entry StructureEntry) error {
			select {
			case events <- StructureEvent{Entry: &entry}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		release()
		sendLast(ctx, events, StructureEvent{Done: true, Err: err})
	}()
	return events, nil
}

func (e *Engine) refresh(ctx context.Context, root Root, scope Scope, emit func(StructureEntry) error) error {
	exclusions, prior, err := e.loadRunState(ctx, root.ID)
	if err != nil {
		return err
	}
	w := &walker{
		root:       root,
		mode:       Mode{RefreshOnly: true},
		fs:         e.fs,
		exclusions: exclusions,
		prior:      prior,
		logger:     e.logger,
	}
	return w.refresh(ctx, scope.RelativePath, emit)
}

// AddRoot registers an existing directory for watching. Adding a path that
// is already registered returns the existing root.
func (e *Engine) AddRoot(ctx context.Context, path string) (Root, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Root{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	abs = filepath.Clean(abs)

	kind, exists, err := e.fs.Exists(abs)
	if err != nil {
		return Root{}, fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if !exists || kind != KindDirectory {
		return Root{}, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	root, err := e.repo.AddRoot(ctx, abs)
	if err != nil {
		return Root{}, repoErr("add root", err)
	}
	e.logger.Info("Root added", rootField(root), zap.Int64("id", int64(root.ID)))
	return root, nil
}

// RemoveRoot unregisters a root along with its nodes and exclusion rules.
// It fails with ErrScopeBusy while any run over the root is in flight.
func (e *Engine) RemoveRoot(ctx context.Context, id RootID) error {
	release, err := e.locks.acquire(WholeRoot(id))
	if err != nil {
		return err
	}
	defer release()

	root, err := e.findRoot(ctx, id)
	if err != nil {
		return err
	}
	if err := e.repo.RemoveRoot(ctx, id); err != nil {
		return repoErr("remove root", err)
	}
	e.logger.Info("Root removed", rootField(root))
	return nil
}

// Roots lists the registered roots
func (e *Engine) Roots(ctx context.Context) ([]Root, error) {
	roots, err := e.repo.ListRoots(ctx)
	if err != nil {
		return nil, repoErr("list roots", err)
	}
	return roots, nil
}

// Exclude adds an exclusion rule for scope. Takes effect from the next
// visited node of any run.
func (e *Engine) Exclude(ctx context.Context, scope Scope) error {
	scope = scope.normalised()
	if _, err := e.findRoot(ctx, scope.RootID); err != nil {
		return err
	}
	rule := ExclusionRule{RootID: scope.RootID, RelativePath: scope.RelativePath}
	return repoErr("add exclusion rule", e.repo.AddExclusionRule(ctx, rule))
}

// Include removes the exclusion rule for scope, if any
func (e *Engine) Include(ctx context.Context, scope Scope) error {
	scope = scope.normalised()
	if _, err := e.findRoot(ctx, scope.RootID); err != nil {
		return err
	}
	rule := ExclusionRule{RootID: scope.RootID, RelativePath: scope.RelativePath}
	return repoErr("remove exclusion rule", e.repo.RemoveExclusionRule(ctx, rule))
}

// Exclusions lists the exclusion rules of a root
func (e *Engine) Exclusions(ctx context.Context, id RootID) ([]ExclusionRule, error) {
	if _, err := e.findRoot(ctx, id); err != nil {
		return nil, err
	}
	rules, err := e.repo.GetExclusionRules(ctx, id)
	if err != nil {
		return nil, repoErr("get exclusion rules", err)
	}
	return rules, nil
}

// Snapshot returns the persisted nodes of a root
func (e *Engine) Snapshot(ctx context.Context, id RootID) ([]Node, error) {
	if _, err := e.findRoot(ctx, id); err != nil {
		return nil, err
	}
	nodes, err := e.repo.GetNodes(ctx, id)
	if err != nil {
		return nil, repoErr("get nodes", err)
	}
	return nodes, nil
}

// Duplicates groups identical recorded files across the given roots, or
// across every root when ids is empty
func (e *Engine) Duplicates(ctx context.Context, ids []RootID) ([]DuplicateGroup, error) {
	if len(ids) == 0 {
		roots, err := e.Roots(ctx)
		if err != nil {
			return nil, err
		}
		for _, root := range roots {
			ids = append(ids, root.ID)
		}
	}
	for _, id := range ids {
		if _, err := e.findRoot(ctx, id); err != nil {
			return nil, err
		}
	}
	return FindDuplicates(ctx, e.repo, ids)
}

// Settings resolves the current settings
func (e *Engine) Settings(ctx context.Context) (Settings, error) {
	return LoadSettings(ctx, e.repo, e.defaults)
}

// SaveSetting validates and persists one setting
func (e *Engine) SaveSetting(ctx context.Context, key, value string) error {
	return SaveSetting(ctx, e.repo, key, value)
}

// ResolvePath maps an absolute filesystem path onto the scope of the
// registered root that contains it most closely
func (e *Engine) ResolvePath(ctx context.Context, path string) (Scope, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Scope{}, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	roots, err := e.Roots(ctx)
	if err != nil {
		return Scope{}, err
	}

	var best Root
	var bestRel string
	found := false
	for _, root := range roots {
		rel, ok := RelativeTo(root.Path, abs)
		if !ok {
			continue
		}
		if !found || len(root.Path) > len(best.Path) {
			best, bestRel, found = root, rel, true
		}
	}
	if !found {
		return Scope{}, fmt.Errorf("%w: %s", ErrPathOutsideRoots, abs)
	}
	return Scope{RootID: best.ID, RelativePath: bestRel}, nil
}

// findRoot looks a root up by id
func (e *Engine) findRoot(ctx context.Context, id RootID) (Root, error) {
	roots, err := e.Roots(ctx)
	if err != nil {
		return Root{}, err
	}
	for _, root := range roots {
		if root.ID == id {
			return root, nil
		}
	}
	return Root{}, fmt.Errorf("%w: %d", ErrRootNotFound, id)
}
