package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagepass/ticketing/internal/domain"
	"github.com/stagepass/ticketing/internal/reconciler"
)

// ReleaseRepository applies inventory-release events durably and
// idempotently. The (order_id, reason) marker row and the inventory
// decrement commit in one transaction, so a redelivered event either
// sees the marker and does nothing or applies the whole release again
// from scratch.
type ReleaseRepository struct {
	pool      *pgxpool.Pool
	inventory *InventoryRepository
}

func NewReleaseRepository(pool *pgxpool.Pool) *ReleaseRepository {
	return &ReleaseRepository{
		pool:      pool,
		inventory: NewInventoryRepository(pool),
	}
}

func (r *ReleaseRepository) ApplyRelease(ctx context.Context, ev domain.ReleaseEvent) (reconciler.ReleaseResult, error) {
	var res reconciler.ReleaseResult

	err := withTx(ctx, r.pool, func(txCtx context.Context) error {
		// ON CONFLICT keeps a duplicate delivery from aborting the
		// transaction; zero rows affected means an earlier delivery
		// already applied this release.
		const marker = `
INSERT INTO inventory_releases (order_id, reason)
VALUES ($1, $2)
ON CONFLICT (order_id, reason) DO NOTHING`
		tag, err := db(txCtx, r.pool).Exec(txCtx, marker, ev.OrderID, ev.Reason)
		if err != nil {
			return fmt.Errorf("record release: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		res.Applied = true

		for _, item := range ev.Items {
			clamped, err := r.inventory.Release(txCtx, item.TicketTypeID, item.Quantity)
			if err != nil {
				return err
			}
			if clamped {
				res.Clamped = append(res.Clamped, item.TicketTypeID)
			}
		}
		return nil
	})
	if err != nil {
		return reconciler.ReleaseResult{}, err
	}
	return res, nil
}
