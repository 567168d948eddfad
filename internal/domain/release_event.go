package domain

type ReleaseReason string

const (
	ReleaseReasonExpired  ReleaseReason = "expired"
	ReleaseReasonCanceled ReleaseReason = "canceled"
)

// ReleaseItem names a quantity of one ticket type to hand back to
// inventory.
type ReleaseItem struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// ReleaseEvent asks inventory consumers to revert an order's
// reservation. Delivery is at-least-once: consumers dedupe on
// (OrderID, Reason).
type ReleaseEvent struct {
	OrderID string        `json:"order_id"`
	Items   []ReleaseItem `json:"items"`
	Reason  ReleaseReason `json:"reason"`
}

// ReleaseItems maps an order's line items to the quantities that a
// release of the order must hand back.
func ReleaseItems(items []OrderItem) []ReleaseItem {
	out := make([]ReleaseItem, 0, len(items))
	for _, it := range items {
		out = append(out, ReleaseItem{TicketTypeID: it.TicketTypeID, Quantity: it.Quantity})
	}
	return out
}
