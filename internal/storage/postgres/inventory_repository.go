package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagepass/ticketing/internal/domain"
)

type InventoryRepository struct {
	pool *pgxpool.Pool
}

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

func (r *InventoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *InventoryRepository) GetTicketType(ctx context.Context, id string) (domain.TicketType, error) {
	const query = `
SELECT id, event_id, name, unit_price, total_capacity, quantity_sold, per_user_cap
FROM ticket_types
WHERE id = $1`

	var t domain.TicketType
	err := db(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&t.ID, &t.EventID, &t.Name, &t.UnitPrice, &t.TotalCapacity, &t.QuantitySold, &t.PerUserCap,
	)
	if err != nil {
		if isInvalidUUID(err) || err == pgx.ErrNoRows {
			return domain.TicketType{}, domain.ErrTicketTypeNotFound
		}
		return domain.TicketType{}, fmt.Errorf("get ticket type: %w", err)
	}
	return t, nil
}

// Reserve increments quantity_sold by qty in a single conditional
// update. The capacity check and the increment are one statement, so
// concurrent reservations against the same ticket type serialize on the
// row and can never oversell.
func (r *InventoryRepository) Reserve(ctx context.Context, ticketTypeID string, qty int) error {
	const stmt = `
UPDATE ticket_types
SET quantity_sold = quantity_sold + $2
WHERE id = $1 AND quantity_sold + $2 <= total_capacity`

	tag, err := db(ctx, r.pool).Exec(ctx, stmt, ticketTypeID, qty)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrTicketTypeNotFound
		}
		return fmt.Errorf("reserve: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := db(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ticket_types WHERE id = $1)`, ticketTypeID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("reserve existence check: %w", err)
	}
	if !exists {
		return domain.ErrTicketTypeNotFound
	}
	return domain.ErrCapacityExceeded
}

// Release decrements quantity_sold by qty, clamped at zero. It reports
// whether clamping happened so callers can flag the consistency fault.
func (r *InventoryRepository) Release(ctx context.Context, ticketTypeID string, qty int) (clamped bool, err error) {
	err = withTx(ctx, r.pool, func(txCtx context.Context) error {
		var sold int
		err := db(txCtx, r.pool).QueryRow(txCtx,
			`SELECT quantity_sold FROM ticket_types WHERE id = $1 FOR UPDATE`, ticketTypeID,
		).Scan(&sold)
		if err != nil {
			if isInvalidUUID(err) || err == pgx.ErrNoRows {
				return domain.ErrTicketTypeNotFound
			}
			return fmt.Errorf("lock ticket type: %w", err)
		}

		next := sold - qty
		if next < 0 {
			clamped = true
			next = 0
		}

		if _, err := db(txCtx, r.pool).Exec(txCtx,
			`UPDATE ticket_types SET quantity_sold = $2 WHERE id = $1`, ticketTypeID, next,
		); err != nil {
			return fmt.Errorf("release: %w", err)
		}
		return nil
	})
	return clamped, err
}
