package bitwatch

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// walker performs one recursive visit of a scope below a root. It is built
// per run and used by a single goroutine.
type walker struct {
	root       Root
	mode       Mode
	repo       Repository
	fs         Filesystem
	hasher     *Hasher
	exclusions *ExclusionIndex
	prior      *snapshotIndex
	algorithm  Algorithm // Run default
	checkedAt  time.Time
	logger     *zap.Logger
	metrics    *Metrics
	emit       func(NodeOutcome) error
}

// visit processes relPath and everything beneath it. It returns the node's
// hash when one was produced. A non-nil error is fatal to the run
// (cancellation or repository failure); per-node problems are emitted as
// OutcomeError and reported as ok=false.
func (w *walker) visit(ctx context.Context, relPath string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	abs := absPath(w.root.Path, relPath)
	prior, hasPrior := w.prior.find(relPath)

	kind, exists, err := w.fs.Exists(abs)
	if err != nil {
		w.prior.markSubtreeFound(relPath)
		errKind := KindFile
		if hasPrior {
			errKind = prior.Kind
		}
		return "", false, w.nodeError(relPath, abs, errKind, prior, &NodeError{Path: abs, Op: "stat", Err: err})
	}
	if !exists {
		// Left unmarked; reconciliation reports it and its prior descendants
		return "", false, nil
	}

	w.prior.markFound(relPath)

	if w.exclusions.IsExcluded(relPath) {
		return "", false, w.excluded(relPath, abs, kind, prior, hasPrior)
	}

	algorithm := w.selectAlgorithm(prior, hasPrior)

	var hash string
	var ok bool
	if kind == KindDirectory {
		hash, ok, err = w.hashDirectory(ctx, relPath, abs, algorithm, prior)
	} else {
		hash, ok, err = w.hashFile(ctx, relPath, abs, algorithm, prior)
	}
	if err != nil || !ok {
		return "", false, err
	}

	outcome := NodeOutcome{
		RootID:       w.root.ID,
		RelativePath: relPath,
		AbsolutePath: abs,
		Kind:         kind,
		Hash:         hash,
		Algorithm:    algorithm,
	}
	w.classify(&outcome, prior, hasPrior)

	if !w.mode.Verify {
		node := Node{
			RootID:        w.root.ID,
			RelativePath:  relPath,
			Kind:          kind,
			ContentHash:   hash,
			HashAlgorithm: string(algorithm),
			LastCheckedAt: w.checkedAt,
		}
		if err := w.repo.UpsertNode(ctx, node); err != nil {
			return "", false, repoErr("upsert node", err)
		}
	}

	if err := w.emit(outcome); err != nil {
		return "", false, err
	}
	return hash, true, nil
}

// selectAlgorithm picks the algorithm for a node: verify runs reuse the
// algorithm recorded for the node when it is still supported
func (w *walker) selectAlgorithm(prior Node, hasPrior bool) Algorithm {
	if w.mode.Verify && hasPrior && prior.HashAlgorithm != "" {
		if alg, err := ParseAlgorithm(prior.HashAlgorithm); err == nil {
			return alg
		}
	}
	return w.algorithm
}

// classify sets the status of a hashed node against its prior record
func (w *walker) classify(outcome *NodeOutcome, prior Node, hasPrior bool) {
	if !hasPrior || prior.ContentHash == "" {
		outcome.Status = OutcomeNew
		return
	}
	outcome.PreviousHash = prior.ContentHash

	if !w.mode.Verify {
		if priorAlg, err := ParseAlgorithm(prior.HashAlgorithm); err != nil || priorAlg != outcome.Algorithm {
			outcome.Status = OutcomeModified
			outcome.Detail = "rehashed"
			return
		}
	}

	if prior.ContentHash != outcome.Hash {
		outcome.Status = OutcomeModified
	} else {
		outcome.Status = OutcomeUnchanged
	}
}

// hashDirectory enumerates and visits the children of a directory, then
// aggregates the hashes they produced
func (w *walker) hashDirectory(ctx context.Context, relPath, abs string, algorithm Algorithm, prior Node) (string, bool, error) {
	dirs, files, err := w.fs.ListChildren(abs)
	if err != nil {
		w.prior.markSubtreeFound(relPath)
		return "", false, w.nodeError(relPath, abs, KindDirectory, prior, &NodeError{Path: abs, Op: "list", Err: err})
	}

	parts := make([]string, 0, len(dirs)+len(files))
	for _, names := range [][]string{dirs, files} {
		for _, name := range names {
			childHash, ok, err := w.visit(ctx, joinRelPath(relPath, name))
			if err != nil {
				return "", false, err
			}
			if ok {
				parts = append(parts, name+AggregatePairSep+childHash)
			}
		}
	}

	hash, err := aggregateHash(parts, algorithm)
	if err != nil {
		return "", false, w.nodeError(relPath, abs, KindDirectory, prior, &NodeError{Path: abs, Op: "hash", Err: err})
	}
	return hash, true, nil
}

// aggregateHash sorts "name:hash" pairs and hashes their joined form. The
// sort makes the result independent of enumeration order.
func aggregateHash(parts []string, algorithm Algorithm) (string, error) {
	sorted := make([]string, len(parts))
	copy(sorted, parts)
	sort.Strings(sorted)
	return DigestString(strings.Join(sorted, AggregateJoiner), algorithm)
}

// hashFile streams a file's content through the algorithm
func (w *walker) hashFile(ctx context.Context, relPath, abs string, algorithm Algorithm, prior Node) (string, bool, error) {
	stream, err := w.fs.OpenReadStream(abs)
	if err != nil {
		return "", false, w.nodeError(relPath, abs, KindFile, prior, &NodeError{Path: abs, Op: "open", Err: err})
	}
	defer stream.Close()

	counter := &countingReader{r: stream}
	hash, err := w.hasher.Digest(ctx, counter, algorithm)
	w.metrics.addHashedBytes(counter.n)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, ctxErr
		}
		return "", false, w.nodeError(relPath, abs, KindFile, prior, &NodeError{Path: abs, Op: "hash", Err: err})
	}
	return hash, true, nil
}

// excluded emits the outcome of an excluded node and marks its prior
// descendants that still exist as found
func (w *walker) excluded(relPath, abs string, kind NodeKind, prior Node, hasPrior bool) error {
	outcome := NodeOutcome{
		RootID:       w.root.ID,
		RelativePath: relPath,
		AbsolutePath: abs,
		Kind:         kind,
		Status:       OutcomeExcluded,
	}
	if rule, ok := w.exclusions.Covering(relPath); ok {
		outcome.Detail = "excluded by " + rule
	}
	if hasPrior {
		outcome.PreviousHash = prior.ContentHash
		if w.mode.Verify {
			outcome.Hash = prior.ContentHash
			outcome.Algorithm = Algorithm(prior.HashAlgorithm)
		}
	}

	if kind == KindDirectory {
		for _, descendant := range w.prior.descendants(relPath) {
			_, exists, err := w.fs.Exists(absPath(w.root.Path, descendant.RelativePath))
			if err != nil || exists {
				w.prior.markFound(descendant.RelativePath)
			}
		}
	}

	return w.emit(outcome)
}

// nodeError emits an OutcomeError for a failure confined to one node
func (w *walker) nodeError(relPath, abs string, kind NodeKind, prior Node, nodeErr *NodeError) error {
	w.logger.Warn("Node could not be checked",
		rootField(w.root),
		zap.String("path", relPath),
		zap.String("op", nodeErr.Op),
		zap.Error(nodeErr.Err))

	return w.emit(NodeOutcome{
		RootID:       w.root.ID,
		RelativePath: relPath,
		AbsolutePath: abs,
		Kind:         kind,
		Status:       OutcomeError,
		PreviousHash: prior.ContentHash,
		Detail:       describeFSError(nodeErr.Err),
		Err:          nodeErr,
	})
}

// refresh walks the structure below relPath without hashing, classification
// or persistence
func (w *walker) refresh(ctx context.Context, relPath string, emit func(StructureEntry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	abs := absPath(w.root.Path, relPath)
	_, known := w.prior.find(relPath)

	kind, exists, err := w.fs.Exists(abs)
	if err != nil {
		return emit(StructureEntry{RootID: w.root.ID, RelativePath: relPath, Known: known, Err: &NodeError{Path: abs, Op: "stat", Err: err}})
	}
	if !exists {
		return nil
	}

	entry := StructureEntry{
		RootID:       w.root.ID,
		RelativePath: relPath,
		Kind:         kind,
		Known:        known,
		Excluded:     w.exclusions.IsExcluded(relPath),
	}
	if entry.Excluded || kind != KindDirectory {
		return emit(entry)
	}

	dirs, files, err := w.fs.ListChildren(abs)
	if err != nil {
		entry.Err = &NodeError{Path: abs, Op: "list", Err: err}
		return emit(entry)
	}
	if err := emit(entry); err != nil {
		return err
	}

	for _, names := range [][]string{dirs, files} {
		for _, name := range names {
			if err := w.refresh(ctx, joinRelPath(relPath, name), emit); err != nil {
				return err
			}
		}
	}
	return nil
}

// countingReader counts the bytes read through it
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// isFatal reports whether a walk error ends the run
func isFatal(err error) bool {
	var re *RepositoryError
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &re)
}
