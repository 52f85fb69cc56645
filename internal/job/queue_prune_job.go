package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/bizdir/internal/queue"
)

const pruneAfter = 6 * time.Hour

// QueuePruneJob bounds the in-memory job arena by dropping terminal jobs
// that nobody will look at again.
type QueuePruneJob struct {
	queue *queue.Service
}

func NewQueuePruneJob(q *queue.Service) *QueuePruneJob {
	return &QueuePruneJob{queue: q}
}

func (j *QueuePruneJob) Name() string {
	return "queue_prune"
}

func (j *QueuePruneJob) Run(ctx context.Context) error {
	removed := j.queue.PruneTerminal(pruneAfter)
	if removed > 0 {
		logutil.GetLogger(ctx).Info("pruned terminal embedding jobs", zap.Int("removed", removed))
	}
	return nil
}
