package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stagepass/ticketing/internal/domain"
	"github.com/stagepass/ticketing/internal/testutil"
)

const testEventID = "11111111-1111-1111-1111-111111111111"

func TestInventoryRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewInventoryRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("Reserve increments until capacity and then fails", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertTicketType(t, ctx, pool, testEventID, 500, 5, 0, 0)

		if err := repo.Reserve(ctx, id, 3); err != nil {
			t.Fatalf("expected reservation to apply, got %v", err)
		}
		if err := repo.Reserve(ctx, id, 2); err != nil {
			t.Fatalf("expected reservation to fill capacity, got %v", err)
		}
		if err := repo.Reserve(ctx, id, 1); !errors.Is(err, domain.ErrCapacityExceeded) {
			t.Fatalf("expected ErrCapacityExceeded, got %v", err)
		}

		tt, err := repo.GetTicketType(ctx, id)
		if err != nil {
			t.Fatalf("get ticket type: %v", err)
		}
		if tt.QuantitySold != 5 {
			t.Fatalf("expected quantity_sold 5, got %d", tt.QuantitySold)
		}
	})

	t.Run("Reserve on unknown ticket type returns ErrTicketTypeNotFound", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		err := repo.Reserve(ctx, "00000000-0000-0000-0000-000000000001", 1)
		if !errors.Is(err, domain.ErrTicketTypeNotFound) {
			t.Fatalf("expected ErrTicketTypeNotFound, got %v", err)
		}
		err = repo.Reserve(ctx, "not-a-uuid", 1)
		if !errors.Is(err, domain.ErrTicketTypeNotFound) {
			t.Fatalf("expected ErrTicketTypeNotFound for malformed id, got %v", err)
		}
	})

	t.Run("concurrent reservations never exceed capacity", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertTicketType(t, ctx, pool, testEventID, 500, 10, 0, 0)

		const workers = 20
		var wg sync.WaitGroup
		succeeded := make(chan struct{}, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := repo.Reserve(ctx, id, 1); err == nil {
					succeeded <- struct{}{}
				}
			}()
		}
		wg.Wait()
		close(succeeded)

		wins := 0
		for range succeeded {
			wins++
		}
		if wins != 10 {
			t.Fatalf("expected exactly 10 reservations to win, got %d", wins)
		}

		tt, err := repo.GetTicketType(ctx, id)
		if err != nil {
			t.Fatalf("get ticket type: %v", err)
		}
		if tt.QuantitySold != 10 {
			t.Fatalf("expected quantity_sold 10, got %d", tt.QuantitySold)
		}
	})

	t.Run("Release decrements and clamps at zero", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertTicketType(t, ctx, pool, testEventID, 500, 10, 3, 0)

		clamped, err := repo.Release(ctx, id, 2)
		if err != nil {
			t.Fatalf("release: %v", err)
		}
		if clamped {
			t.Fatalf("expected in-range release not to clamp")
		}

		clamped, err = repo.Release(ctx, id, 5)
		if err != nil {
			t.Fatalf("release past zero: %v", err)
		}
		if !clamped {
			t.Fatalf("expected over-release to report clamping")
		}

		tt, err := repo.GetTicketType(ctx, id)
		if err != nil {
			t.Fatalf("get ticket type: %v", err)
		}
		if tt.QuantitySold != 0 {
			t.Fatalf("expected quantity_sold clamped to 0, got %d", tt.QuantitySold)
		}
	})
}
