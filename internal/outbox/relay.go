// Package outbox carries durably recorded release events to the event
// bus. The order service enqueues an event in the same transaction as
// the status transition; the relay publishes pending events and marks
// them published, so a bus outage delays delivery instead of losing it.
package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/stagepass/ticketing/internal/domain"
)

// Pending is one enqueued release event awaiting publication.
type Pending struct {
	ID    int64
	Event domain.ReleaseEvent
}

// Store reads and settles enqueued events.
type Store interface {
	// Unpublished returns up to limit pending events, oldest first.
	Unpublished(ctx context.Context, limit int) ([]Pending, error)
	// MarkPublished settles one event after the bus accepted it.
	MarkPublished(ctx context.Context, id int64) error
}

// Publisher hands release events to the event bus.
type Publisher interface {
	PublishRelease(ctx context.Context, ev domain.ReleaseEvent) error
}

type Relay struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
	interval  time.Duration
	batch     int
}

const (
	defaultRelayInterval = time.Second
	defaultRelayBatch    = 100
)

func NewRelay(store Store, publisher Publisher, logger *zap.Logger, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  defaultRelayInterval,
		batch:     defaultRelayBatch,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type Option func(*Relay)

// WithInterval overrides how often the relay checks for pending events.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize overrides how many events one tick publishes.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

// Run relays pending events until ctx is canceled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.logger.Error("outbox relay tick failed", zap.Error(err))
			}
		}
	}
}

// Tick publishes one batch of pending events. An event is marked
// published only after the bus accepted it; a failed publish leaves it
// pending for the next tick. A publish that succeeds but fails to be
// marked is republished later, and the consumer's (order, reason)
// dedupe absorbs the duplicate.
func (r *Relay) Tick(ctx context.Context) error {
	pending, err := r.store.Unpublished(ctx, r.batch)
	if err != nil {
		return err
	}

	for _, p := range pending {
		if err := r.publisher.PublishRelease(ctx, p.Event); err != nil {
			r.logger.Error("publish failed, will retry",
				zap.String("order_id", p.Event.OrderID),
				zap.Error(err),
			)
			continue
		}
		if err := r.store.MarkPublished(ctx, p.ID); err != nil {
			r.logger.Error("failed to mark event published",
				zap.Int64("outbox_id", p.ID),
				zap.String("order_id", p.Event.OrderID),
				zap.Error(err),
			)
		}
	}
	return nil
}
