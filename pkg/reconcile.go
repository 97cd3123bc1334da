package bitwatch

import (
	"context"

	"go.uber.org/zap"
)

// reconciler reports prior nodes the walk did not find and, when pruning,
// removes them from the repository
type reconciler struct {
	root    Root
	mode    Mode
	repo    Repository
	prior   *snapshotIndex
	logger  *zap.Logger
	metrics *Metrics
	emit    func(NodeOutcome) error
}

// reconcile emits one OutcomeDeleted per unfound prior node within scope,
// in path order. It returns true when the root itself was retired.
func (r *reconciler) reconcile(ctx context.Context, scope string) (bool, error) {
	deleted := r.prior.unfound(scope)
	if len(deleted) == 0 {
		return false, nil
	}

	rootDeleted := false
	for _, node := range deleted {
		if node.RelativePath == RootRelativePath {
			rootDeleted = true
		}
		outcome := NodeOutcome{
			RootID:       r.root.ID,
			RelativePath: node.RelativePath,
			AbsolutePath: absPath(r.root.Path, node.RelativePath),
			Kind:         node.Kind,
			Status:       OutcomeDeleted,
			PreviousHash: node.ContentHash,
			Algorithm:    Algorithm(node.HashAlgorithm),
		}
		if err := r.emit(outcome); err != nil {
			return false, err
		}
	}

	if !r.mode.Prune {
		return false, nil
	}

	if err := r.repo.DeleteNodes(ctx, deleted); err != nil {
		return false, repoErr("delete nodes", err)
	}
	r.logger.Info("Pruned deleted nodes", rootField(r.root), zap.Int("count", len(deleted)))

	if !rootDeleted {
		return false, nil
	}
	if err := r.repo.RemoveRoot(ctx, r.root.ID); err != nil {
		return false, repoErr("remove root", err)
	}
	r.metrics.rootRetired()
	r.logger.Info("Retired vanished root", rootField(r.root))
	return true, nil
}
