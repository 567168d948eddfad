package domain

import "errors"

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrTicketTypeNotFound  = errors.New("ticket type not found")
	ErrCapacityExceeded    = errors.New("ticket type capacity exceeded")
	ErrPurchaseCapExceeded = errors.New("per-user purchase cap exceeded")
	ErrInvalidTransition   = errors.New("order status does not permit this transition")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrEmptyOrder          = errors.New("order has no line items")
	ErrInvalidID           = errors.New("invalid id")
)
