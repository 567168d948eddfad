package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/stagepass/ticketing/internal/domain"
	"github.com/stagepass/ticketing/internal/testutil"
)

func TestReleaseRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewReleaseRepository(pool)
	inventory := NewInventoryRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("ApplyRelease decrements once per (order, reason)", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertTicketType(t, ctx, pool, testEventID, 500, 10, 4, 0)

		ev := domain.ReleaseEvent{
			OrderID: uuid.NewString(),
			Items:   []domain.ReleaseItem{{TicketTypeID: id, Quantity: 3}},
			Reason:  domain.ReleaseReasonExpired,
		}

		res, err := repo.ApplyRelease(ctx, ev)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if !res.Applied {
			t.Fatalf("expected first delivery to apply")
		}

		// Redelivery of the same event must not decrement again.
		res, err = repo.ApplyRelease(ctx, ev)
		if err != nil {
			t.Fatalf("reapply: %v", err)
		}
		if res.Applied {
			t.Fatalf("expected duplicate delivery to be skipped")
		}

		tt, err := inventory.GetTicketType(ctx, id)
		if err != nil {
			t.Fatalf("get ticket type: %v", err)
		}
		if tt.QuantitySold != 1 {
			t.Fatalf("expected quantity_sold 1 after a single release, got %d", tt.QuantitySold)
		}
	})

	t.Run("different reasons for one order apply separately", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertTicketType(t, ctx, pool, testEventID, 500, 10, 6, 0)

		orderID := uuid.NewString()
		expired := domain.ReleaseEvent{
			OrderID: orderID,
			Items:   []domain.ReleaseItem{{TicketTypeID: id, Quantity: 2}},
			Reason:  domain.ReleaseReasonExpired,
		}
		canceled := expired
		canceled.Reason = domain.ReleaseReasonCanceled

		if res, err := repo.ApplyRelease(ctx, expired); err != nil || !res.Applied {
			t.Fatalf("expired apply: res=%+v err=%v", res, err)
		}
		if res, err := repo.ApplyRelease(ctx, canceled); err != nil || !res.Applied {
			t.Fatalf("canceled apply: res=%+v err=%v", res, err)
		}
	})

	t.Run("over-release reports the clamped ticket type", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertTicketType(t, ctx, pool, testEventID, 500, 10, 1, 0)

		res, err := repo.ApplyRelease(ctx, domain.ReleaseEvent{
			OrderID: uuid.NewString(),
			Items:   []domain.ReleaseItem{{TicketTypeID: id, Quantity: 5}},
			Reason:  domain.ReleaseReasonCanceled,
		})
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if !res.Applied {
			t.Fatalf("expected release to apply")
		}
		if len(res.Clamped) != 1 || res.Clamped[0] != id {
			t.Fatalf("expected clamp reported for %s, got %+v", id, res.Clamped)
		}

		tt, err := inventory.GetTicketType(ctx, id)
		if err != nil {
			t.Fatalf("get ticket type: %v", err)
		}
		if tt.QuantitySold != 0 {
			t.Fatalf("expected quantity_sold 0, got %d", tt.QuantitySold)
		}
	})
}
