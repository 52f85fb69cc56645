package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/bizdir/internal/cache"
	"github.com/xxxsen/bizdir/internal/model"
	appErr "github.com/xxxsen/bizdir/internal/pkg/errors"
)

const mirrorTTL = 24 * time.Hour

type Generator interface {
	GenerateForBusiness(ctx context.Context, b *model.Business) error
}

type BusinessSource interface {
	Get(ctx context.Context, id string) (*model.Business, error)
}

type StatusSink interface {
	Upsert(ctx context.Context, st *model.EmbeddingStatus) error
	Get(ctx context.Context, businessID, version string) (*model.EmbeddingStatus, error)
}

type Options struct {
	Version     string
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	RetryDelay  time.Duration
	Workers     int
}

type EnqueueOptions struct {
	Version  string
	Priority int
	Force    bool
}

// Service is the embedding job queue: one instance per deployment,
// constructed at startup and injected everywhere. Job state is an owned
// in-memory map; the generic cache only mirrors snapshots for post-crash
// inspection. Recovery is the reconcile scan, never the mirror.
type Service struct {
	opts       Options
	generator  Generator
	businesses BusinessSource
	statuses   StatusSink
	mirror     cache.Cache

	mu   sync.Mutex
	jobs map[string]*model.EmbeddingJob

	// processing guards a whole tick, not a job: an overlapping slow tick
	// is skipped rather than racing the running batch.
	processing atomic.Bool

	pool *ants.Pool
	stop chan struct{}
	done chan struct{}
	now  func() time.Time
}

func NewService(opts Options, generator Generator, businesses BusinessSource,
	statuses StatusSink, mirror cache.Cache) (*Service, error) {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 30 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, err
	}
	return &Service{
		opts:       opts,
		generator:  generator,
		businesses: businesses,
		statuses:   statuses,
		mirror:     mirror,
		jobs:       make(map[string]*model.EmbeddingJob),
		pool:       pool,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		now:        time.Now,
	}, nil
}

// Enqueue registers a generation job for a business. Without force, a
// business that already has a completed embedding for the version is a
// no-op, a pending duplicate only raises its priority, and a terminally
// failed job stays failed.
func (s *Service) Enqueue(ctx context.Context, businessID string, opts EnqueueOptions) error {
	if businessID == "" {
		return appErr.ErrInvalid
	}
	version := opts.Version
	if version == "" {
		version = s.opts.Version
	}
	now := s.now().Unix()

	s.mu.Lock()
	if job, ok := s.jobs[businessID]; ok && job.Version == version {
		switch job.Status {
		case model.EmbeddingStatusPending, model.EmbeddingStatusRetrying, model.EmbeddingStatusProcessing:
			if opts.Priority > job.Priority {
				job.Priority = opts.Priority
				job.Mtime = now
			}
			// The in-flight generation read the pre-update content; a forced
			// enqueue must not be swallowed by it, so flag one more run.
			if opts.Force && job.Status == model.EmbeddingStatusProcessing {
				job.Refresh = true
				job.Mtime = now
			}
			s.mu.Unlock()
			return nil
		case model.EmbeddingStatusFailed, model.EmbeddingStatusCompleted:
			if !opts.Force {
				s.mu.Unlock()
				return nil
			}
		}
	}
	s.mu.Unlock()

	if !opts.Force {
		st, err := s.statuses.Get(ctx, businessID, version)
		if err != nil && !appErr.IsNotFound(err) {
			logutil.GetLogger(ctx).Warn("read embedding status failed, enqueueing anyway",
				zap.String("business_id", businessID), zap.Error(err))
		}
		if err == nil && st.Status == model.EmbeddingStatusCompleted && st.HasEmbedding {
			return nil
		}
	}

	job := &model.EmbeddingJob{
		BusinessID:  businessID,
		Version:     version,
		Status:      model.EmbeddingStatusPending,
		Priority:    opts.Priority,
		MaxAttempts: s.opts.MaxAttempts,
		Ctime:       now,
		Mtime:       now,
	}
	s.mu.Lock()
	s.jobs[businessID] = job
	snapshot := *job
	s.mu.Unlock()

	s.mirrorJob(ctx, &snapshot)
	s.trackStatus(ctx, &snapshot)
	return nil
}

// Start launches the ticker loop: one pass immediately, then one per
// interval until Stop.
func (s *Service) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		s.processDue(ctx)
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processDue(ctx)
			}
		}
	}()
}

func (s *Service) Stop() {
	close(s.stop)
	<-s.done
	s.pool.Release()
}

// processDue runs one tick: pick due jobs by priority, fan out over the
// worker pool, wait for the batch. All-settled: one job's failure never
// aborts its siblings.
func (s *Service) processDue(ctx context.Context) {
	if !s.processing.CompareAndSwap(false, true) {
		logutil.GetLogger(ctx).Info("queue tick skipped: previous batch still running")
		return
	}
	defer s.processing.Store(false)

	now := s.now().Unix()
	s.mu.Lock()
	var due []*model.EmbeddingJob
	for _, job := range s.jobs {
		if job.Status == model.EmbeddingStatusPending ||
			(job.Status == model.EmbeddingStatusRetrying && job.RetryAfter <= now) {
			due = append(due, job)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].Ctime < due[j].Ctime
	})
	if len(due) > s.opts.BatchSize {
		due = due[:s.opts.BatchSize]
	}
	ids := make([]string, 0, len(due))
	for _, job := range due {
		ids = append(ids, job.BusinessID)
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		businessID := id
		if err := s.pool.Submit(func() {
			defer wg.Done()
			s.processJob(ctx, businessID)
		}); err != nil {
			wg.Done()
			logutil.GetLogger(ctx).Error("submit embedding job failed",
				zap.String("business_id", businessID), zap.Error(err))
		}
	}
	wg.Wait()
}

func (s *Service) processJob(ctx context.Context, businessID string) {
	logger := logutil.GetLogger(ctx).With(zap.String("business_id", businessID))

	s.mu.Lock()
	job, ok := s.jobs[businessID]
	if !ok {
		s.mu.Unlock()
		return
	}
	job.Status = model.EmbeddingStatusProcessing
	job.Attempts++
	job.Mtime = s.now().Unix()
	snapshot := *job
	s.mu.Unlock()
	s.mirrorJob(ctx, &snapshot)
	s.trackStatus(ctx, &snapshot)

	err := s.runGeneration(ctx, businessID)

	s.mu.Lock()
	now := s.now().Unix()
	switch {
	case err == nil:
		job.Status = model.EmbeddingStatusCompleted
		job.Error = ""
	case appErr.IsDimensionMismatch(err) || appErr.IsNotFound(err):
		// Not transient: retrying a wrong-dimension model or a deleted
		// business cannot succeed.
		job.Status = model.EmbeddingStatusFailed
		job.Error = err.Error()
	case job.Attempts < job.MaxAttempts:
		job.Status = model.EmbeddingStatusRetrying
		job.Error = err.Error()
		job.RetryAfter = now + int64(s.opts.RetryDelay.Seconds())*int64(job.Attempts)
	default:
		job.Status = model.EmbeddingStatusFailed
		job.Error = err.Error()
	}
	if job.Refresh {
		job.Refresh = false
		job.Status = model.EmbeddingStatusPending
		job.Attempts = 0
		job.Error = ""
		job.RetryAfter = 0
	}
	job.Mtime = now
	snapshot = *job
	s.mu.Unlock()

	if err != nil {
		logger.Warn("embedding job attempt failed",
			zap.Int("attempts", snapshot.Attempts), zap.String("status", snapshot.Status), zap.Error(err))
	} else {
		logger.Info("embedding job completed", zap.Int("attempts", snapshot.Attempts))
	}
	s.mirrorJob(ctx, &snapshot)
	s.trackStatus(ctx, &snapshot)
}

func (s *Service) runGeneration(ctx context.Context, businessID string) error {
	b, err := s.businesses.Get(ctx, businessID)
	if err != nil {
		return err
	}
	return s.generator.GenerateForBusiness(ctx, b)
}

// Stats returns job counts by status for the in-memory arena.
func (s *Service) Stats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts
}

// PruneTerminal drops completed and failed jobs untouched for olderThan,
// bounding the arena. Returns how many were removed.
func (s *Service) PruneTerminal(olderThan time.Duration) int {
	cutoff := s.now().Add(-olderThan).Unix()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		terminal := job.Status == model.EmbeddingStatusCompleted || job.Status == model.EmbeddingStatusFailed
		if terminal && job.Mtime <= cutoff {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// mirrorJob snapshots job state into the generic cache for operational
// visibility after a crash. Failures are logged and swallowed.
func (s *Service) mirrorJob(ctx context.Context, job *model.EmbeddingJob) {
	if s.mirror == nil {
		return
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := s.mirror.Set(ctx, "ejob:"+job.BusinessID, raw, mirrorTTL); err != nil {
		logutil.GetLogger(ctx).Warn("mirror job state failed",
			zap.String("business_id", job.BusinessID), zap.Error(err))
	}
}

// trackStatus projects a job transition into the status table. The status
// record only knows the four persisted states, so retrying maps to pending.
func (s *Service) trackStatus(ctx context.Context, job *model.EmbeddingJob) {
	status := job.Status
	if status == model.EmbeddingStatusRetrying {
		status = model.EmbeddingStatusPending
	}
	st := &model.EmbeddingStatus{
		BusinessID:   job.BusinessID,
		Version:      job.Version,
		Status:       status,
		HasEmbedding: status == model.EmbeddingStatusCompleted,
		Mtime:        s.now().Unix(),
		Error:        job.Error,
		Attempts:     job.Attempts,
	}
	if status == model.EmbeddingStatusCompleted {
		st.LastGenerated = s.now().Unix()
	}
	if err := s.statuses.Upsert(ctx, st); err != nil {
		logutil.GetLogger(ctx).Warn("track embedding status failed",
			zap.String("business_id", job.BusinessID), zap.Error(err))
	}
}
