// Package reconciler consumes inventory-release events and hands
// reserved tickets back to inventory. It runs in its own process and
// shares nothing with the order service but the stores and the bus.
package reconciler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/stagepass/ticketing/internal/domain"
	"github.com/stagepass/ticketing/internal/metrics"
)

// ReleaseResult reports what applying an event did. Clamped lists
// ticket types whose decrement would have gone below zero.
type ReleaseResult struct {
	Applied bool
	Clamped []string
}

// ReleaseStore applies a release event durably. Applying the same
// (order, reason) twice must be a no-op with Applied=false, and the
// idempotency marker must commit atomically with the decrements.
type ReleaseStore interface {
	ApplyRelease(ctx context.Context, ev domain.ReleaseEvent) (ReleaseResult, error)
}

type Reconciler struct {
	store  ReleaseStore
	logger *zap.Logger
}

func New(store ReleaseStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// HandleRelease processes one release event. A nil return acks the
// message; an error leaves it on the bus for redelivery. Duplicates are
// acked without touching inventory.
func (r *Reconciler) HandleRelease(ctx context.Context, ev domain.ReleaseEvent) error {
	if ev.OrderID == "" || len(ev.Items) == 0 {
		return errors.New("release event missing order id or items")
	}

	res, err := r.store.ApplyRelease(ctx, ev)
	if err != nil {
		return err
	}

	if !res.Applied {
		metrics.DuplicateReleasesTotal.Inc()
		r.logger.Info("duplicate release event skipped",
			zap.String("order_id", ev.OrderID),
			zap.String("reason", string(ev.Reason)),
		)
		return nil
	}

	for _, ticketTypeID := range res.Clamped {
		// A reservation/release mismatch upstream; the decrement was
		// clamped at zero, but someone needs to go look.
		metrics.ConsistencyFaultsTotal.Inc()
		r.logger.Error("inventory release clamped at zero",
			zap.String("order_id", ev.OrderID),
			zap.String("ticket_type_id", ticketTypeID),
		)
	}

	metrics.ReleasesAppliedTotal.Inc()
	r.logger.Info("release applied",
		zap.String("order_id", ev.OrderID),
		zap.String("reason", string(ev.Reason)),
		zap.Int("items", len(ev.Items)),
	)
	return nil
}
