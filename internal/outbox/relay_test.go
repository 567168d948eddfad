package outbox

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/stagepass/ticketing/internal/domain"
)

func TestRelay_Tick(t *testing.T) {
	t.Parallel()

	event := func(orderID string) domain.ReleaseEvent {
		return domain.ReleaseEvent{
			OrderID: orderID,
			Items:   []domain.ReleaseItem{{TicketTypeID: "tt-1", Quantity: 2}},
			Reason:  domain.ReleaseReasonExpired,
		}
	}

	t.Run("publishes pending events and marks them", func(t *testing.T) {
		store := newFakeOutboxStore(
			Pending{ID: 1, Event: event("order-1")},
			Pending{ID: 2, Event: event("order-2")},
		)
		pub := &recordingPublisher{}
		r := NewRelay(store, pub, zap.NewNop())

		if err := r.Tick(context.Background()); err != nil {
			t.Fatalf("tick: %v", err)
		}
		if len(pub.published) != 2 {
			t.Fatalf("expected 2 events published, got %d", len(pub.published))
		}
		if store.pendingCount() != 0 {
			t.Fatalf("expected all events marked published, %d left", store.pendingCount())
		}
	})

	t.Run("publish failure leaves the event pending for the next tick", func(t *testing.T) {
		store := newFakeOutboxStore(Pending{ID: 1, Event: event("order-1")})
		pub := &recordingPublisher{err: errors.New("brokers unreachable")}
		r := NewRelay(store, pub, zap.NewNop())

		if err := r.Tick(context.Background()); err != nil {
			t.Fatalf("tick during outage: %v", err)
		}
		if store.pendingCount() != 1 {
			t.Fatalf("expected event to stay pending through the outage")
		}

		pub.err = nil
		if err := r.Tick(context.Background()); err != nil {
			t.Fatalf("tick after outage: %v", err)
		}
		if len(pub.published) != 1 {
			t.Fatalf("expected 1 publish after recovery, got %d", len(pub.published))
		}
		if store.pendingCount() != 0 {
			t.Fatalf("expected event marked published after recovery")
		}
	})

	t.Run("mark failure republishes rather than losing the event", func(t *testing.T) {
		store := newFakeOutboxStore(Pending{ID: 1, Event: event("order-1")})
		store.markErr = errors.New("db down")
		pub := &recordingPublisher{}
		r := NewRelay(store, pub, zap.NewNop())

		if err := r.Tick(context.Background()); err != nil {
			t.Fatalf("tick: %v", err)
		}
		if store.pendingCount() != 1 {
			t.Fatalf("expected unmarked event to stay pending")
		}

		store.markErr = nil
		if err := r.Tick(context.Background()); err != nil {
			t.Fatalf("second tick: %v", err)
		}
		// A duplicate publish is fine; the consumer dedupes. Losing the
		// event is not.
		if len(pub.published) != 2 {
			t.Fatalf("expected republish, got %d publishes", len(pub.published))
		}
		if store.pendingCount() != 0 {
			t.Fatalf("expected event settled after mark recovered")
		}
	})

	t.Run("honors the batch size", func(t *testing.T) {
		store := newFakeOutboxStore(
			Pending{ID: 1, Event: event("order-1")},
			Pending{ID: 2, Event: event("order-2")},
			Pending{ID: 3, Event: event("order-3")},
		)
		pub := &recordingPublisher{}
		r := NewRelay(store, pub, zap.NewNop(), WithBatchSize(2))

		if err := r.Tick(context.Background()); err != nil {
			t.Fatalf("tick: %v", err)
		}
		if len(pub.published) != 2 {
			t.Fatalf("expected batch of 2, got %d", len(pub.published))
		}

		if err := r.Tick(context.Background()); err != nil {
			t.Fatalf("tick: %v", err)
		}
		if len(pub.published) != 3 {
			t.Fatalf("expected all 3 published, got %d", len(pub.published))
		}
	})
}

type fakeOutboxStore struct {
	pending []Pending
	markErr error
}

func newFakeOutboxStore(pending ...Pending) *fakeOutboxStore {
	return &fakeOutboxStore{pending: pending}
}

func (f *fakeOutboxStore) Unpublished(_ context.Context, limit int) ([]Pending, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutboxStore) MarkPublished(_ context.Context, id int64) error {
	if f.markErr != nil {
		return f.markErr
	}
	kept := make([]Pending, 0, len(f.pending))
	for _, p := range f.pending {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	f.pending = kept
	return nil
}

func (f *fakeOutboxStore) pendingCount() int {
	return len(f.pending)
}

type recordingPublisher struct {
	published []domain.ReleaseEvent
	err       error
}

func (p *recordingPublisher) PublishRelease(_ context.Context, ev domain.ReleaseEvent) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, ev)
	return nil
}
