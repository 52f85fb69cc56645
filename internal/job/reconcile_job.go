package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/bizdir/internal/model"
	"github.com/xxxsen/bizdir/internal/queue"
)

type businessLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

type completedLister interface {
	ListCompletedIDs(ctx context.Context, version string) ([]string, error)
}

// ReconcileJob re-enqueues every business without a completed embedding for
// the current version. It is the only recovery path after a restart: the
// queue's in-memory state is gone and the mirror is not replayed.
type ReconcileJob struct {
	queue      *queue.Service
	businesses businessLister
	statuses   completedLister
	version    string
}

func NewReconcileJob(q *queue.Service, businesses businessLister, statuses completedLister, version string) *ReconcileJob {
	return &ReconcileJob{queue: q, businesses: businesses, statuses: statuses, version: version}
}

func (j *ReconcileJob) Name() string {
	return "embedding_reconcile"
}

func (j *ReconcileJob) Run(ctx context.Context) error {
	allIDs, err := j.businesses.ListIDs(ctx)
	if err != nil {
		return err
	}
	completedIDs, err := j.statuses.ListCompletedIDs(ctx, j.version)
	if err != nil {
		return err
	}
	completed := make(map[string]struct{}, len(completedIDs))
	for _, id := range completedIDs {
		completed[id] = struct{}{}
	}
	missing := 0
	for _, id := range allIDs {
		if _, ok := completed[id]; ok {
			continue
		}
		missing++
		if err := j.queue.Enqueue(ctx, id, queue.EnqueueOptions{
			Version:  j.version,
			Priority: model.PriorityCreate,
		}); err != nil {
			logutil.GetLogger(ctx).Warn("reconcile enqueue failed",
				zap.String("business_id", id), zap.Error(err))
		}
	}
	if missing > 0 {
		logutil.GetLogger(ctx).Info("reconcile pass enqueued missing embeddings",
			zap.Int("missing", missing), zap.Int("total", len(allIDs)))
	}
	return nil
}
