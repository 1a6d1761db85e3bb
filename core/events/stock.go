package events

import "time"

// StockOp names a stock movement.
type StockOp string

const (
	StockAdd    StockOp = "add"
	StockRemove StockOp = "remove"
)

// StockEvent reports the outcome of one add or remove call.
type StockEvent struct {
	Op         StockOp
	LocationID string
	Amount     int
	// Load is the location load after the call (unchanged when Err is set).
	Load     int
	Capacity int
	Sync     bool
	Err      error
	Time     time.Time
}
