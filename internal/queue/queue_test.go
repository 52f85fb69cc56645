package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/bizdir/internal/model"
	appErr "github.com/xxxsen/bizdir/internal/pkg/errors"
)

type fakeGenerator struct {
	mu    sync.Mutex
	calls []string
	fail  func(businessID string) error
}

func (f *fakeGenerator) GenerateForBusiness(ctx context.Context, b *model.Business) error {
	f.mu.Lock()
	f.calls = append(f.calls, b.ID)
	f.mu.Unlock()
	if f.fail != nil {
		return f.fail(b.ID)
	}
	return nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeBusinessSource struct{}

func (f *fakeBusinessSource) Get(ctx context.Context, id string) (*model.Business, error) {
	return &model.Business{ID: id, Name: "biz-" + id}, nil
}

type fakeStatusSink struct {
	mu      sync.Mutex
	records map[string]*model.EmbeddingStatus
}

func newFakeStatusSink() *fakeStatusSink {
	return &fakeStatusSink{records: make(map[string]*model.EmbeddingStatus)}
}

func (f *fakeStatusSink) key(businessID, version string) string {
	return businessID + "@" + version
}

func (f *fakeStatusSink) Upsert(ctx context.Context, st *model.EmbeddingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *st
	f.records[f.key(st.BusinessID, st.Version)] = &cp
	return nil
}

func (f *fakeStatusSink) Get(ctx context.Context, businessID, version string) (*model.EmbeddingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.records[f.key(businessID, version)]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func newTestService(t *testing.T, gen *fakeGenerator, statuses *fakeStatusSink) *Service {
	t.Helper()
	svc, err := NewService(Options{
		Version:     "v1",
		Interval:    10 * time.Second,
		BatchSize:   5,
		MaxAttempts: 3,
		RetryDelay:  30 * time.Second,
		Workers:     2,
	}, gen, &fakeBusinessSource{}, statuses, nil)
	require.NoError(t, err)
	t.Cleanup(svc.pool.Release)
	return svc
}

func TestEnqueueDuplicateKeepsHighestPriority(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &fakeGenerator{}, newFakeStatusSink())

	require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityCreate}))
	require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityRegenerate}))
	require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityCreate}))

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.jobs, 1)
	require.Equal(t, model.PriorityRegenerate, svc.jobs["b1"].Priority)
	require.Equal(t, model.EmbeddingStatusPending, svc.jobs["b1"].Status)
}

func TestEnqueueCompletedStatusIsNoop(t *testing.T) {
	ctx := context.Background()
	statuses := newFakeStatusSink()
	require.NoError(t, statuses.Upsert(ctx, &model.EmbeddingStatus{
		BusinessID:   "b1",
		Version:      "v1",
		Status:       model.EmbeddingStatusCompleted,
		HasEmbedding: true,
	}))
	gen := &fakeGenerator{}
	svc := newTestService(t, gen, statuses)

	require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityCreate}))
	svc.processDue(ctx)

	require.Zero(t, gen.callCount())
	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Empty(t, svc.jobs)
}

func TestEnqueueForceOverridesCompleted(t *testing.T) {
	ctx := context.Background()
	statuses := newFakeStatusSink()
	require.NoError(t, statuses.Upsert(ctx, &model.EmbeddingStatus{
		BusinessID:   "b1",
		Version:      "v1",
		Status:       model.EmbeddingStatusCompleted,
		HasEmbedding: true,
	}))
	gen := &fakeGenerator{}
	svc := newTestService(t, gen, statuses)

	require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityRegenerate, Force: true}))
	svc.processDue(ctx)

	require.Equal(t, 1, gen.callCount())
}

func TestRetryBackoffIsLinear(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{fail: func(string) error { return fmt.Errorf("provider down") }}
	svc := newTestService(t, gen, newFakeStatusSink())

	base := time.Unix(1_000_000, 0)
	now := base
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityCreate}))

	svc.processDue(ctx)
	svc.mu.Lock()
	job := svc.jobs["b1"]
	require.Equal(t, model.EmbeddingStatusRetrying, job.Status)
	require.Equal(t, 1, job.Attempts)
	require.Equal(t, base.Unix()+30, job.RetryAfter)
	svc.mu.Unlock()

	// Not due yet: the tick must skip it.
	now = base.Add(10 * time.Second)
	svc.processDue(ctx)
	require.Equal(t, 1, gen.callCount())

	// Second attempt doubles the delay relative to attempt count.
	now = base.Add(31 * time.Second)
	svc.processDue(ctx)
	svc.mu.Lock()
	require.Equal(t, 2, job.Attempts)
	require.Equal(t, now.Unix()+60, job.RetryAfter)
	svc.mu.Unlock()
}

func TestMaxAttemptsMarksFailedTerminally(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{fail: func(string) error { return fmt.Errorf("provider down") }}
	statuses := newFakeStatusSink()
	svc := newTestService(t, gen, statuses)

	now := time.Unix(1_000_000, 0)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityCreate}))
	for i := 0; i < 3; i++ {
		svc.processDue(ctx)
		now = now.Add(2 * time.Minute)
	}
	require.Equal(t, 3, gen.callCount())

	svc.mu.Lock()
	require.Equal(t, model.EmbeddingStatusFailed, svc.jobs["b1"].Status)
	svc.mu.Unlock()

	st, err := statuses.Get(ctx, "b1", "v1")
	require.NoError(t, err)
	require.Equal(t, model.EmbeddingStatusFailed, st.Status)
	require.NotEmpty(t, st.Error)

	// A plain enqueue must not resurrect a terminally failed job.
	require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityCreate}))
	svc.processDue(ctx)
	require.Equal(t, 3, gen.callCount())

	// An explicit forced re-enqueue does.
	require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityRegenerate, Force: true}))
	svc.processDue(ctx)
	require.Equal(t, 4, gen.callCount())
}

func TestDimensionMismatchFailsWithoutRetry(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{fail: func(string) error {
		return fmt.Errorf("model returned 1536 dims, want 3072: %w", appErr.ErrDimensionMismatch)
	}}
	svc := newTestService(t, gen, newFakeStatusSink())

	require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityCreate}))
	svc.processDue(ctx)
	svc.processDue(ctx)

	require.Equal(t, 1, gen.callCount())
	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Equal(t, model.EmbeddingStatusFailed, svc.jobs["b1"].Status)
	require.Equal(t, 1, svc.jobs["b1"].Attempts)
}

func TestForcedEnqueueDuringProcessingRunsAgain(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	svc := newTestService(t, gen, newFakeStatusSink())

	// The forced enqueue lands while the first generation is in flight,
	// after it already read the pre-update content.
	gen.fail = func(string) error {
		if gen.callCount() == 1 {
			require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityRegenerate, Force: true}))
		}
		return nil
	}

	require.NoError(t, svc.Enqueue(ctx, "b1", EnqueueOptions{Priority: model.PriorityCreate}))
	svc.processDue(ctx)

	svc.mu.Lock()
	require.Equal(t, model.EmbeddingStatusPending, svc.jobs["b1"].Status)
	require.False(t, svc.jobs["b1"].Refresh)
	svc.mu.Unlock()

	svc.processDue(ctx)
	require.Equal(t, 2, gen.callCount())
	svc.mu.Lock()
	require.Equal(t, model.EmbeddingStatusCompleted, svc.jobs["b1"].Status)
	svc.mu.Unlock()

	// Settled: the flag is one-shot, a third tick does nothing.
	svc.processDue(ctx)
	require.Equal(t, 2, gen.callCount())
}

func TestProcessDueHonorsBatchSizeAndPriority(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	svc := newTestService(t, gen, newFakeStatusSink())
	svc.opts.BatchSize = 2

	now := time.Unix(1_000_000, 0)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.Enqueue(ctx, "old-low", EnqueueOptions{Priority: model.PriorityCreate}))
	now = now.Add(time.Second)
	require.NoError(t, svc.Enqueue(ctx, "high", EnqueueOptions{Priority: model.PriorityRegenerate, Force: true}))
	now = now.Add(time.Second)
	require.NoError(t, svc.Enqueue(ctx, "new-low", EnqueueOptions{Priority: model.PriorityCreate}))

	svc.processDue(ctx)

	// With batch size 2, the youngest low-priority job waits for the next tick.
	require.Equal(t, 2, gen.callCount())
	gen.mu.Lock()
	processed := append([]string(nil), gen.calls...)
	gen.mu.Unlock()
	require.Contains(t, processed, "high")
	require.Contains(t, processed, "old-low")

	svc.processDue(ctx)
	require.Equal(t, 3, gen.callCount())
}

func TestPruneTerminalDropsOldJobs(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{}
	svc := newTestService(t, gen, newFakeStatusSink())

	now := time.Unix(1_000_000, 0)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.Enqueue(ctx, "done", EnqueueOptions{Priority: model.PriorityCreate}))
	svc.processDue(ctx)
	require.NoError(t, svc.Enqueue(ctx, "fresh", EnqueueOptions{Priority: model.PriorityCreate}))

	now = now.Add(7 * time.Hour)
	removed := svc.PruneTerminal(6 * time.Hour)
	require.Equal(t, 1, removed)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.NotContains(t, svc.jobs, "done")
	require.Contains(t, svc.jobs, "fresh")
}
