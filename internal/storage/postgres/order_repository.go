package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stagepass/ticketing/internal/domain"
)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// CreateOrder persists the order. When caps are given, the per-buyer
// totals are re-checked inside the insert transaction under a buyer
// advisory lock, so two concurrent orders from one buyer cannot jointly
// exceed a cap.
func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order, caps []domain.PurchaseCap) error {
	const stmt = `
INSERT INTO orders (id, code, buyer_id, buyer_name, buyer_email, buyer_phone, event_id, items, total_price, status, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	return withTx(ctx, r.pool, func(txCtx context.Context) error {
		if len(caps) > 0 {
			if _, err := db(txCtx, r.pool).Exec(txCtx,
				`SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, order.BuyerID,
			); err != nil {
				return fmt.Errorf("lock buyer: %w", err)
			}
			for _, c := range caps {
				prior, err := r.SumBuyerQuantity(txCtx, order.BuyerID, c.TicketTypeID)
				if err != nil {
					return err
				}
				requested := 0
				for _, it := range order.Items {
					if it.TicketTypeID == c.TicketTypeID {
						requested += it.Quantity
					}
				}
				if prior+requested > c.Limit {
					return domain.ErrPurchaseCapExceeded
				}
			}
		}

		_, err := db(txCtx, r.pool).Exec(txCtx, stmt,
			order.ID,
			order.Code,
			order.BuyerID,
			order.Contact.Name,
			order.Contact.Email,
			order.Contact.Phone,
			order.EventID,
			items,
			order.TotalPrice,
			order.Status,
			order.CreatedAt,
			order.ExpiresAt,
		)
		if err != nil {
			if isInvalidUUID(err) {
				return domain.ErrInvalidID
			}
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	const query = `
SELECT id, code, buyer_id, buyer_name, buyer_email, buyer_phone, event_id, items, total_price, status, created_at, expires_at
FROM orders
WHERE id = $1`

	var (
		o     domain.Order
		items []byte
	)
	err := db(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.Code,
		&o.BuyerID,
		&o.Contact.Name,
		&o.Contact.Email,
		&o.Contact.Phone,
		&o.EventID,
		&items,
		&o.TotalPrice,
		&o.Status,
		&o.CreatedAt,
		&o.ExpiresAt,
	)
	if err != nil {
		if isInvalidUUID(err) || err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal items: %w", err)
	}
	return o, nil
}

// CompareAndSetStatus transitions the order only when its current status
// matches expected. It is the sole write path for order status and the
// sole concurrency control between payment, cancellation and expiration.
func (r *OrderRepository) CompareAndSetStatus(ctx context.Context, id string, expected, next domain.OrderStatus) (bool, error) {
	const stmt = `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`

	tag, err := db(ctx, r.pool).Exec(ctx, stmt, id, expected, next)
	if err != nil {
		if isInvalidUUID(err) {
			return false, nil
		}
		return false, fmt.Errorf("compare-and-set status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SumBuyerQuantity totals the buyer's tickets of one type across orders
// that still count against inventory (pending or paid).
func (r *OrderRepository) SumBuyerQuantity(ctx context.Context, buyerID, ticketTypeID string) (int, error) {
	const query = `
SELECT COALESCE(SUM((item->>'quantity')::int), 0)
FROM orders, jsonb_array_elements(items) AS item
WHERE buyer_id = $1 AND status <> 'canceled' AND item->>'ticket_type_id' = $2`

	var total int
	if err := db(ctx, r.pool).QueryRow(ctx, query, buyerID, ticketTypeID).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("sum buyer quantity: %w", err)
	}
	return total, nil
}
