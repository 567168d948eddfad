package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagepass/ticketing/internal/domain"
	"github.com/stagepass/ticketing/internal/outbox"
)

// OutboxRepository stores release events awaiting publication. Enqueue
// joins the caller's transaction, so an event commits atomically with
// the status transition that caused it.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, ev domain.ReleaseEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal release event: %w", err)
	}

	// An order produces at most one release per reason; a second enqueue
	// for the same (order, reason) is a retry and must not duplicate.
	const stmt = `
INSERT INTO release_outbox (order_id, reason, payload)
VALUES ($1, $2, $3)
ON CONFLICT (order_id, reason) DO NOTHING`

	if _, err := db(ctx, r.pool).Exec(ctx, stmt, ev.OrderID, ev.Reason, payload); err != nil {
		return fmt.Errorf("enqueue release event: %w", err)
	}
	return nil
}

func (r *OutboxRepository) Unpublished(ctx context.Context, limit int) ([]outbox.Pending, error) {
	const query = `
SELECT id, payload
FROM release_outbox
WHERE published_at IS NULL
ORDER BY id
LIMIT $1`

	rows, err := db(ctx, r.pool).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	defer rows.Close()

	var pending []outbox.Pending
	for rows.Next() {
		var (
			p       outbox.Pending
			payload []byte
		)
		if err := rows.Scan(&p.ID, &payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		if err := json.Unmarshal(payload, &p.Event); err != nil {
			return nil, fmt.Errorf("unmarshal outbox payload %d: %w", p.ID, err)
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read outbox rows: %w", err)
	}
	return pending, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id int64) error {
	const stmt = `UPDATE release_outbox SET published_at = NOW() WHERE id = $1`
	if _, err := db(ctx, r.pool).Exec(ctx, stmt, id); err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}
