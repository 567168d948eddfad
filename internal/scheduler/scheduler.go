// Package scheduler delivers delayed jobs: fire a callback once per key
// after a delay, with cancellation up to the moment of firing. Jobs live
// in a durable Store so a restart between scheduling and the deadline
// does not drop them. Delivery is at-least-once: a job is removed only
// after its handler succeeds, and handlers must tolerate refires.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stagepass/ticketing/internal/clock"
)

// Job is a scheduled callback invocation. At most one job exists per
// key; scheduling again under the same key replaces the earlier job.
type Job struct {
	Key     string
	FireAt  time.Time
	Payload []byte
}

// Store persists pending jobs.
type Store interface {
	// Put inserts the job, replacing any existing job with the same key.
	Put(ctx context.Context, job Job) error
	// Remove deletes the job for key, reporting whether it was present.
	Remove(ctx context.Context, key string) (bool, error)
	// RemoveAt deletes the job for key only while its fire time still
	// equals fireAt, so a job rescheduled mid-delivery survives.
	RemoveAt(ctx context.Context, key string, fireAt time.Time) (bool, error)
	// Due returns up to limit jobs whose fire time is at or before now.
	Due(ctx context.Context, now time.Time, limit int) ([]Job, error)
}

// Handler processes a fired job. A non-nil error leaves the job in the
// store for a later delivery attempt.
type Handler func(ctx context.Context, key string, payload []byte) error

type Scheduler struct {
	store    Store
	clock    clock.Clock
	handler  Handler
	logger   *zap.Logger
	interval time.Duration
	batch    int
}

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

func New(store Store, clk clock.Clock, handler Handler, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		clock:    clk,
		handler:  handler,
		logger:   logger,
		interval: defaultPollInterval,
		batch:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Option func(*Scheduler)

// WithPollInterval overrides how often the delivery loop checks for due jobs.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithBatchSize overrides how many due jobs one tick delivers.
func WithBatchSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.batch = n
		}
	}
}

// Schedule registers a job to fire after delay. The newest call per key wins.
func (s *Scheduler) Schedule(ctx context.Context, key string, delay time.Duration, payload []byte) error {
	return s.store.Put(ctx, Job{
		Key:     key,
		FireAt:  s.clock.Now().Add(delay),
		Payload: payload,
	})
}

// Cancel removes a pending job. It returns false when the job already
// fired or never existed; callers treat that as a harmless race.
func (s *Scheduler) Cancel(ctx context.Context, key string) (bool, error) {
	return s.store.Remove(ctx, key)
}

// Run polls for due jobs until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler delivery loop started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler delivery loop stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", zap.Error(err))
			}
		}
	}
}

// Tick delivers one batch of due jobs. A job is removed from the store
// only after its handler returns nil; a failing handler leaves the job
// due, so the next tick retries it.
func (s *Scheduler) Tick(ctx context.Context) error {
	jobs, err := s.store.Due(ctx, s.clock.Now(), s.batch)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if err := s.handler(ctx, job.Key, job.Payload); err != nil {
			s.logger.Error("job handler failed, will retry",
				zap.String("key", job.Key),
				zap.Error(err),
			)
			continue
		}
		if _, err := s.store.RemoveAt(ctx, job.Key, job.FireAt); err != nil {
			// The job fired but still sits in the store, so it will fire
			// again. Handlers are idempotent, so this only costs a retry.
			s.logger.Error("failed to remove fired job",
				zap.String("key", job.Key),
				zap.Error(err),
			)
		}
	}
	return nil
}
