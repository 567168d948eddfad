package domain

// TicketType is the unit of sellable inventory for an event.
// QuantitySold counts reserved plus confirmed tickets; it is incremented
// at reservation time and decremented only by a release, never by
// payment confirmation.
type TicketType struct {
	ID            string
	EventID       string
	Name          string
	UnitPrice     int64
	TotalCapacity int
	QuantitySold  int
	// PerUserCap limits how many tickets of this type a single buyer may
	// hold across non-canceled orders. Zero means no cap.
	PerUserCap int
}

// Available returns the remaining sellable quantity.
func (t TicketType) Available() int {
	return t.TotalCapacity - t.QuantitySold
}

// PurchaseCap is a per-buyer limit on one ticket type, checked again by
// the order store when the order is persisted.
type PurchaseCap struct {
	TicketTypeID string
	Limit        int
}
