package events

import "time"

// OrderEvent is published when an order changes status.
type OrderEvent struct {
	OrderID    string
	Medicine   string
	Quantity   int
	LocationID string
	Status     string
	Err        error
	Time       time.Time
}
