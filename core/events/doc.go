// Package events defines the warehouse events emitted on the event bus.
//
// Available event types:
//   - ChargingEvent: charging request lifecycle (queued, dropped, assigned, charged, failed)
//   - StockEvent: stock movement applied to or rejected by a storage location
//   - OrderEvent: order status transition
package events
