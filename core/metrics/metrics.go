package metrics

import (
	"time"
)

// ChargingRecord is the terminal outcome of one charging request.
type ChargingRecord struct {
	AGVID     string
	StationID string
	// Outcome is "charged", "failed" or "dropped".
	Outcome string
	Failure string
	Battery int
	Wait    time.Duration
	Time    time.Time
}

// MetricsSink records charging outcomes for observability purposes.
type MetricsSink interface {
	RecordCharging(rec ChargingRecord) error
}

// StockRecord is the outcome of one stock operation.
type StockRecord struct {
	Op         string
	LocationID string
	Amount     int
	Load       int
	Capacity   int
	Sync       bool
	Error      string
	Time       time.Time
}

// StockRecorder records stock operations.
type StockRecorder interface {
	RecordStock(rec StockRecord) error
}

// OrderRecord is an order status change.
type OrderRecord struct {
	OrderID    string
	Medicine   string
	Quantity   int
	LocationID string
	Status     string
	Error      string
	Time       time.Time
}

// OrderRecorder records order status changes.
type OrderRecorder interface {
	RecordOrder(rec OrderRecord) error
}

// QueueRecorder is implemented by sinks tracking the charging backlog.
type QueueRecorder interface {
	RecordQueueDepth(depth int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordCharging(ChargingRecord) error { return nil }
func (NopSink) RecordStock(StockRecord) error       { return nil }
func (NopSink) RecordOrder(OrderRecord) error       { return nil }
func (NopSink) RecordQueueDepth(int) error          { return nil }
