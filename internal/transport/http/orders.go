package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stagepass/ticketing/internal/app"
	"github.com/stagepass/ticketing/internal/domain"
)

// OrderCreator is the minimal interface needed to create an order.
type OrderCreator interface {
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (domain.Order, error)
}

// OrderGetter is the minimal interface needed to read an order back.
type OrderGetter interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
}

// OrderCanceler is the minimal interface needed to cancel an order.
type OrderCanceler interface {
	CancelOrder(ctx context.Context, orderID string) (domain.Order, error)
}

// HandleCreateOrder returns an HTTP handler for creating orders.
func HandleCreateOrder(svc OrderCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, err.Error())
			return
		}

		items := make([]app.CreateOrderItem, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, app.CreateOrderItem{
				TicketTypeID: it.TicketTypeID,
				Quantity:     it.Quantity,
			})
		}

		order, err := svc.CreateOrder(r.Context(), app.CreateOrderInput{
			BuyerID: req.BuyerID,
			EventID: req.EventID,
			Contact: domain.BuyerContact{
				Name:  req.Contact.Name,
				Email: req.Contact.Email,
				Phone: req.Contact.Phone,
			},
			Items: items,
		})
		if err != nil {
			writeOrderError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toOrderResponse(order))
	}
}

// HandleGetOrder returns an HTTP handler for reading one order.
func HandleGetOrder(svc OrderGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeOrderError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(toOrderResponse(order))
	}
}

// HandleCancelOrder returns an HTTP handler for buyer-initiated
// cancellation.
func HandleCancelOrder(svc OrderCanceler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.CancelOrder(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeOrderError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(toOrderResponse(order))
	}
}

func writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
	case errors.Is(err, domain.ErrTicketTypeNotFound):
		writeError(w, http.StatusNotFound, codeTicketTypeNotFound, err.Error())
	case errors.Is(err, domain.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, codeCapacityExceeded, err.Error())
	case errors.Is(err, domain.ErrPurchaseCapExceeded):
		writeError(w, http.StatusConflict, codePurchaseCapExceeded, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, codeInvalidTransition, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrEmptyOrder):
		writeError(w, http.StatusBadRequest, codeEmptyOrder, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type createOrderRequest struct {
	BuyerID string             `json:"buyer_id"`
	EventID string             `json:"event_id"`
	Contact contactPayload     `json:"contact"`
	Items   []orderItemPayload `json:"items"`
}

type contactPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type orderItemPayload struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

func (r createOrderRequest) validate() error {
	if r.BuyerID == "" || r.EventID == "" {
		return errors.New("buyer_id and event_id are required")
	}
	if len(r.Items) == 0 {
		return domain.ErrEmptyOrder
	}
	for _, it := range r.Items {
		if it.TicketTypeID == "" {
			return errors.New("ticket_type_id is required on every item")
		}
		if it.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
	}
	return nil
}

type orderResponse struct {
	ID         string              `json:"id"`
	Code       string              `json:"code"`
	EventID    string              `json:"event_id"`
	Items      []orderItemResponse `json:"items"`
	TotalPrice int64               `json:"total_price"`
	Status     string              `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	ExpiresAt  time.Time           `json:"expires_at"`
}

type orderItemResponse struct {
	TicketTypeID string `json:"ticket_type_id"`
	UnitPrice    int64  `json:"unit_price"`
	Quantity     int    `json:"quantity"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			TicketTypeID: it.TicketTypeID,
			UnitPrice:    it.UnitPrice,
			Quantity:     it.Quantity,
		})
	}
	return orderResponse{
		ID:         o.ID,
		Code:       o.Code,
		EventID:    o.EventID,
		Items:      items,
		TotalPrice: o.TotalPrice,
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		ExpiresAt:  o.ExpiresAt,
	}
}
