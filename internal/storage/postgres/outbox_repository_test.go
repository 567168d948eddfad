package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stagepass/ticketing/internal/domain"
	"github.com/stagepass/ticketing/internal/testutil"
)

func TestOutboxRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewOutboxRepository(pool)
	orders := NewOrderRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	newEvent := func() domain.ReleaseEvent {
		return domain.ReleaseEvent{
			OrderID: uuid.NewString(),
			Items:   []domain.ReleaseItem{{TicketTypeID: uuid.NewString(), Quantity: 2}},
			Reason:  domain.ReleaseReasonExpired,
		}
	}

	t.Run("Enqueue, Unpublished and MarkPublished round-trip", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		ev := newEvent()
		if err := repo.Enqueue(ctx, ev); err != nil {
			t.Fatalf("enqueue: %v", err)
		}

		pending, err := repo.Unpublished(ctx, 10)
		if err != nil {
			t.Fatalf("unpublished: %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("expected 1 pending event, got %d", len(pending))
		}
		got := pending[0].Event
		if got.OrderID != ev.OrderID || got.Reason != ev.Reason || len(got.Items) != 1 || got.Items[0].Quantity != 2 {
			t.Fatalf("unexpected event %+v", got)
		}

		if err := repo.MarkPublished(ctx, pending[0].ID); err != nil {
			t.Fatalf("mark published: %v", err)
		}
		pending, err = repo.Unpublished(ctx, 10)
		if err != nil {
			t.Fatalf("unpublished: %v", err)
		}
		if len(pending) != 0 {
			t.Fatalf("expected no pending events after mark, got %d", len(pending))
		}
	})

	t.Run("duplicate (order, reason) enqueue is a no-op", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		ev := newEvent()
		if err := repo.Enqueue(ctx, ev); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if err := repo.Enqueue(ctx, ev); err != nil {
			t.Fatalf("retried enqueue: %v", err)
		}

		pending, err := repo.Unpublished(ctx, 10)
		if err != nil {
			t.Fatalf("unpublished: %v", err)
		}
		if len(pending) != 1 {
			t.Fatalf("expected a single pending event, got %d", len(pending))
		}
	})

	t.Run("enqueue rolls back together with the status transition", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		order := domain.Order{
			ID:      uuid.NewString(),
			Code:    "TKT-" + uuid.NewString()[:8],
			BuyerID: uuid.NewString(),
			Contact: domain.BuyerContact{Name: "Ada", Email: "ada@example.com", Phone: "555-0100"},
			EventID: testEventID,
			Items: []domain.OrderItem{
				{TicketTypeID: uuid.NewString(), UnitPrice: 500, Quantity: 2},
			},
			TotalPrice: 1000,
			Status:     domain.OrderStatusPending,
			CreatedAt:  now,
			ExpiresAt:  now.Add(15 * time.Minute),
		}
		if err := orders.CreateOrder(ctx, order, nil); err != nil {
			t.Fatalf("create order: %v", err)
		}

		failure := errors.New("handler failed")
		err := orders.WithTx(ctx, func(txCtx context.Context) error {
			applied, err := orders.CompareAndSetStatus(txCtx, order.ID, domain.OrderStatusPending, domain.OrderStatusCanceled)
			if err != nil {
				t.Fatalf("cas in tx: %v", err)
			}
			if !applied {
				t.Fatalf("expected cas to apply inside the transaction")
			}
			if err := repo.Enqueue(txCtx, domain.ReleaseEvent{
				OrderID: order.ID,
				Items:   domain.ReleaseItems(order.Items),
				Reason:  domain.ReleaseReasonExpired,
			}); err != nil {
				t.Fatalf("enqueue in tx: %v", err)
			}
			return failure
		})
		if !errors.Is(err, failure) {
			t.Fatalf("expected the injected failure, got %v", err)
		}

		got, err := orders.GetOrder(ctx, order.ID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if got.Status != domain.OrderStatusPending {
			t.Fatalf("expected transition rolled back, got %s", got.Status)
		}
		pending, err := repo.Unpublished(ctx, 10)
		if err != nil {
			t.Fatalf("unpublished: %v", err)
		}
		if len(pending) != 0 {
			t.Fatalf("expected no event recorded after rollback, got %d", len(pending))
		}
	})
}
