package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusCanceled OrderStatus = "canceled"
)

// Terminal reports whether the status permits no further transitions.
// Once an order leaves pending it never changes again.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCanceled
}

// BuyerContact is a snapshot of the buyer's contact details taken at
// order creation. It is copied, not a live reference to the account.
type BuyerContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// OrderItem is one line of an order. UnitPrice is the price of the
// ticket type at the moment the order was created.
type OrderItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	UnitPrice    int64  `json:"unit_price"`
	Quantity     int    `json:"quantity"`
}

// Order represents a purchase attempt against one event. It is created
// pending with reserved inventory and either becomes paid or canceled;
// orders are never deleted.
type Order struct {
	ID         string
	Code       string
	BuyerID    string
	Contact    BuyerContact
	EventID    string
	Items      []OrderItem
	TotalPrice int64
	Status     OrderStatus
	CreatedAt  time.Time
	ExpiresAt  time.Time
}
