package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stagepass/ticketing/internal/clock"
	"github.com/stagepass/ticketing/internal/domain"
	"github.com/stagepass/ticketing/internal/metrics"
)

// OrderStore is the durable record of orders. CompareAndSetStatus is
// the only status write path. WithTx runs fn in one transaction; store
// calls made with fn's context join it.
type OrderStore interface {
	CreateOrder(ctx context.Context, order domain.Order, caps []domain.PurchaseCap) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	CompareAndSetStatus(ctx context.Context, id string, expected, next domain.OrderStatus) (bool, error)
	SumBuyerQuantity(ctx context.Context, buyerID, ticketTypeID string) (int, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// InventoryStore is the durable record of ticket-type capacity.
// Reserve must be atomic with respect to concurrent callers.
type InventoryStore interface {
	GetTicketType(ctx context.Context, id string) (domain.TicketType, error)
	Reserve(ctx context.Context, ticketTypeID string, qty int) error
	Release(ctx context.Context, ticketTypeID string, qty int) (clamped bool, err error)
}

// ExpirationScheduler fires a callback once per key after a delay,
// cancelable until it fires.
type ExpirationScheduler interface {
	Schedule(ctx context.Context, key string, delay time.Duration, payload []byte) error
	Cancel(ctx context.Context, key string) (bool, error)
}

// ReleaseOutbox records a release event durably. Enqueued in the same
// transaction as the status transition, the event survives a bus outage;
// the outbox relay carries it to the bus afterwards.
type ReleaseOutbox interface {
	Enqueue(ctx context.Context, ev domain.ReleaseEvent) error
}

// OrderService owns the order state machine: creation with reservation,
// payment confirmation, explicit cancellation and expiration. Exactly
// one of payment, cancellation and expiration wins any race, enforced
// by the store's compare-and-set.
type OrderService struct {
	orders    OrderStore
	inventory InventoryStore
	scheduler ExpirationScheduler
	outbox    ReleaseOutbox
	clock     clock.Clock
	logger    *zap.Logger
	orderTTL  time.Duration
}

const defaultOrderTTL = 15 * time.Minute

func NewOrderService(
	orders OrderStore,
	inventory InventoryStore,
	scheduler ExpirationScheduler,
	outbox ReleaseOutbox,
	clk clock.Clock,
	logger *zap.Logger,
	opts ...OrderServiceOption,
) *OrderService {
	svc := &OrderService{
		orders:    orders,
		inventory: inventory,
		scheduler: scheduler,
		outbox:    outbox,
		clock:     clk,
		logger:    logger,
		orderTTL:  defaultOrderTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type OrderServiceOption func(*OrderService)

// WithOrderTTL overrides how long an unpaid order holds its reservation.
func WithOrderTTL(d time.Duration) OrderServiceOption {
	return func(s *OrderService) {
		if d > 0 {
			s.orderTTL = d
		}
	}
}

type CreateOrderItem struct {
	TicketTypeID string
	Quantity     int
}

type CreateOrderInput struct {
	BuyerID string
	EventID string
	Contact domain.BuyerContact
	Items   []CreateOrderItem
}

// CreateOrder reserves inventory for every line item, persists the
// order pending with a deadline, and schedules its expiration. If any
// reservation fails, all earlier reservations in the call are released
// before the error surfaces; the inventory store is never left
// partially reserved by a failed creation.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	if len(in.Items) == 0 {
		return domain.Order{}, domain.ErrEmptyOrder
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return domain.Order{}, domain.ErrInvalidQuantity
		}
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:        uuid.NewString(),
		Code:      newOrderCode(),
		BuyerID:   in.BuyerID,
		Contact:   in.Contact,
		EventID:   in.EventID,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.orderTTL),
	}

	// Reserve line items in sequence; unwind in reverse on failure.
	var reserved []domain.OrderItem
	rollback := func() {
		for i := len(reserved) - 1; i >= 0; i-- {
			item := reserved[i]
			if _, err := s.inventory.Release(ctx, item.TicketTypeID, item.Quantity); err != nil {
				s.logger.Error("compensating release failed",
					zap.String("ticket_type_id", item.TicketTypeID),
					zap.Int("quantity", item.Quantity),
					zap.Error(err),
				)
			}
		}
	}

	var caps []domain.PurchaseCap
	for _, item := range in.Items {
		ticketType, err := s.inventory.GetTicketType(ctx, item.TicketTypeID)
		if err != nil {
			rollback()
			return domain.Order{}, err
		}
		if ticketType.EventID != in.EventID {
			rollback()
			return domain.Order{}, domain.ErrTicketTypeNotFound
		}

		// Early cap check so an over-cap order fails before reserving;
		// the store re-checks under a buyer lock when persisting.
		if ticketType.PerUserCap > 0 {
			prior, err := s.orders.SumBuyerQuantity(ctx, in.BuyerID, item.TicketTypeID)
			if err != nil {
				rollback()
				return domain.Order{}, err
			}
			if prior+item.Quantity > ticketType.PerUserCap {
				rollback()
				return domain.Order{}, domain.ErrPurchaseCapExceeded
			}
			caps = append(caps, domain.PurchaseCap{TicketTypeID: item.TicketTypeID, Limit: ticketType.PerUserCap})
		}

		if err := s.inventory.Reserve(ctx, item.TicketTypeID, item.Quantity); err != nil {
			rollback()
			return domain.Order{}, err
		}

		// Unit price is snapshotted here; the client-supplied total is
		// never trusted.
		reserved = append(reserved, domain.OrderItem{
			TicketTypeID: item.TicketTypeID,
			UnitPrice:    ticketType.UnitPrice,
			Quantity:     item.Quantity,
		})
		order.TotalPrice += ticketType.UnitPrice * int64(item.Quantity)
	}
	order.Items = reserved

	// Schedule before persisting: a job firing for an order that was
	// never persisted is a no-op, while a persisted order without a job
	// would never expire.
	payload, err := json.Marshal(ExpirationPayload{OrderID: order.ID, Items: domain.ReleaseItems(order.Items)})
	if err != nil {
		rollback()
		return domain.Order{}, fmt.Errorf("marshal expiration payload: %w", err)
	}
	if err := s.scheduler.Schedule(ctx, order.ID, s.orderTTL, payload); err != nil {
		rollback()
		return domain.Order{}, fmt.Errorf("schedule expiration: %w", err)
	}

	if err := s.orders.CreateOrder(ctx, order, caps); err != nil {
		if _, cancelErr := s.scheduler.Cancel(ctx, order.ID); cancelErr != nil {
			s.logger.Error("failed to cancel job for unpersisted order",
				zap.String("order_id", order.ID),
				zap.Error(cancelErr),
			)
		}
		rollback()
		return domain.Order{}, err
	}

	metrics.OrdersCreatedTotal.Inc()
	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_code", order.Code),
		zap.Time("expires_at", order.ExpiresAt),
	)
	return order, nil
}

// ConfirmPayment transitions pending → paid. A duplicate or late
// payment callback finds the order no longer pending and returns
// applied=false without error.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID string) (bool, error) {
	applied, err := s.orders.CompareAndSetStatus(ctx, orderID, domain.OrderStatusPending, domain.OrderStatusPaid)
	if err != nil {
		return false, err
	}
	if !applied {
		s.logger.Info("payment confirmation skipped, order not pending", zap.String("order_id", orderID))
		return false, nil
	}

	// Best effort: if the job already fired, the expiration path's
	// compare-and-set loses against this transition and does nothing.
	if _, err := s.scheduler.Cancel(ctx, orderID); err != nil {
		s.logger.Error("failed to cancel expiration job", zap.String("order_id", orderID), zap.Error(err))
	}

	metrics.OrdersPaidTotal.Inc()
	s.logger.Info("order paid", zap.String("order_id", orderID))
	return true, nil
}

// CancelOrder transitions pending → canceled on the buyer's request.
// The release event is enqueued in the same transaction as the status
// update, so a failure rolls the cancellation back and a retried cancel
// starts clean. Unlike expiration, cancellation of a non-pending order
// is a user-visible error.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (domain.Order, error) {
	var (
		applied bool
		order   domain.Order
	)
	err := s.orders.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		applied, err = s.orders.CompareAndSetStatus(txCtx, orderID, domain.OrderStatusPending, domain.OrderStatusCanceled)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		order, err = s.orders.GetOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		return s.outbox.Enqueue(txCtx, domain.ReleaseEvent{
			OrderID: order.ID,
			Items:   domain.ReleaseItems(order.Items),
			Reason:  domain.ReleaseReasonCanceled,
		})
	})
	if err != nil {
		return domain.Order{}, err
	}
	if !applied {
		if _, err := s.orders.GetOrder(ctx, orderID); err != nil {
			return domain.Order{}, err
		}
		return domain.Order{}, domain.ErrInvalidTransition
	}

	if _, err := s.scheduler.Cancel(ctx, orderID); err != nil {
		s.logger.Error("failed to cancel expiration job", zap.String("order_id", orderID), zap.Error(err))
	}

	metrics.OrdersCanceledTotal.Inc()
	s.logger.Info("order canceled", zap.String("order_id", orderID))
	return order, nil
}

// OnExpiration is invoked when the scheduled job for an order fires.
// The compare-and-set and the release enqueue commit together: a
// failure rolls both back, the job stays due, and the next delivery
// attempt starts from a pending order. If the compare-and-set loses
// because the order was paid or canceled in the meantime, nothing is
// enqueued: whichever transition won already accounted for the
// inventory.
func (s *OrderService) OnExpiration(ctx context.Context, orderID string, items []domain.ReleaseItem) error {
	var applied bool
	err := s.orders.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		applied, err = s.orders.CompareAndSetStatus(txCtx, orderID, domain.OrderStatusPending, domain.OrderStatusCanceled)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		return s.outbox.Enqueue(txCtx, domain.ReleaseEvent{
			OrderID: orderID,
			Items:   items,
			Reason:  domain.ReleaseReasonExpired,
		})
	})
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Info("expiration skipped, order not pending", zap.String("order_id", orderID))
		return nil
	}

	metrics.OrdersExpiredTotal.Inc()
	s.logger.Info("order expired", zap.String("order_id", orderID))
	return nil
}

// GetOrder reads an order back, for payment-status polling.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

// ExpirationPayload is the scheduled job body: enough to release the
// order's reservation without another read.
type ExpirationPayload struct {
	OrderID string               `json:"order_id"`
	Items   []domain.ReleaseItem `json:"items"`
}

// HandleExpiration adapts the scheduler's fire callback to
// OnExpiration. It is safe to invoke more than once per order.
func (s *OrderService) HandleExpiration(ctx context.Context, key string, payload []byte) error {
	var job ExpirationPayload
	if err := json.Unmarshal(payload, &job); err != nil {
		// We wrote this payload; a decode failure will not fix itself
		// on retry.
		s.logger.Error("dropping undecodable expiration job", zap.String("key", key), zap.Error(err))
		return nil
	}
	return s.OnExpiration(ctx, job.OrderID, job.Items)
}
