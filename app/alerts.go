package app

import (
	"errors"

	"github.com/kilianp07/warehouse/core/charging"
	"github.com/kilianp07/warehouse/core/events"
	"github.com/kilianp07/warehouse/core/monitoring"
	"github.com/kilianp07/warehouse/core/task"
)

// reportFailures sends failed charges, refused stock operations, failed
// orders and failed tasks to the error monitor. Work interrupted by shutdown
// is expected and not reported.
func (s *Service) reportFailures() {
	forward(&s.forwarders, s.buses.Charging, func(ev events.ChargingEvent) error {
		if ev.Kind != events.ChargingFailed || ev.Failure == string(charging.FailureInterrupted) {
			return nil
		}
		monitoring.CaptureException(ev.Err, map[string]string{
			"component":  "charging",
			"agv_id":     ev.AGVID,
			"station_id": ev.StationID,
			"failure":    ev.Failure,
		})
		return nil
	}, s.log)
	forward(&s.forwarders, s.buses.Stock, func(ev events.StockEvent) error {
		monitoring.CaptureException(ev.Err, map[string]string{
			"component":   "storage",
			"location_id": ev.LocationID,
			"op":          string(ev.Op),
		})
		return nil
	}, s.log)
	forward(&s.forwarders, s.buses.Orders, func(ev events.OrderEvent) error {
		monitoring.CaptureException(ev.Err, map[string]string{
			"component": "orders",
			"order_id":  ev.OrderID,
			"status":    ev.Status,
		})
		return nil
	}, s.log)
	forward(&s.forwarders, s.taskBus, func(ev events.TaskEvent) error {
		if errors.Is(ev.Err, task.ErrInterrupted) {
			return nil
		}
		monitoring.CaptureException(ev.Err, map[string]string{
			"component": "tasks",
			"task_id":   ev.TaskID,
			"type":      ev.Type,
		})
		return nil
	}, s.log)
}
