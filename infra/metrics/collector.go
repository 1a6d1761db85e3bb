package metrics

import (
	"context"
	"sync"

	"github.com/kilianp07/warehouse/core/events"
	coremetrics "github.com/kilianp07/warehouse/core/metrics"
	"github.com/kilianp07/warehouse/infra/logger"
	"github.com/kilianp07/warehouse/internal/eventbus"
)

// Buses groups the event streams a collector listens to. Nil buses are skipped.
type Buses struct {
	Charging *eventbus.TypedBus[events.ChargingEvent]
	Stock    *eventbus.TypedBus[events.StockEvent]
	Orders   *eventbus.TypedBus[events.OrderEvent]
}

// StartEventCollector subscribes to the buses and records metrics for events.
// It stops when the context is canceled or the buses are closed; the returned
// channel is closed once every collector has returned.
func StartEventCollector(ctx context.Context, buses Buses, sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if sink == nil {
		close(done)
		return done
	}
	log := logger.New("metrics-collector")
	var wg sync.WaitGroup
	spawn := func(run func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run()
		}()
	}
	if buses.Charging != nil {
		sub := buses.Charging.Subscribe()
		spawn(func() {
			collect(ctx, sub, buses.Charging.Unsubscribe, func(ev events.ChargingEvent) error {
				if !ev.Kind.Terminal() {
					return nil
				}
				return sink.RecordCharging(ChargingRecord(ev))
			}, log)
		})
	}
	if r, ok := sink.(coremetrics.StockRecorder); ok && buses.Stock != nil {
		sub := buses.Stock.Subscribe()
		spawn(func() {
			collect(ctx, sub, buses.Stock.Unsubscribe, func(ev events.StockEvent) error {
				return r.RecordStock(StockRecord(ev))
			}, log)
		})
	}
	if r, ok := sink.(coremetrics.OrderRecorder); ok && buses.Orders != nil {
		sub := buses.Orders.Subscribe()
		spawn(func() {
			collect(ctx, sub, buses.Orders.Unsubscribe, func(ev events.OrderEvent) error {
				return r.RecordOrder(OrderRecord(ev))
			}, log)
		})
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

func collect[T any](ctx context.Context, sub <-chan T, unsubscribe func(<-chan T), record func(T) error, log logger.Logger) {
	defer unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := record(ev); err != nil {
				log.Warnf("record event: %v", err)
			}
		}
	}
}

// ChargingRecord converts a charging event.
func ChargingRecord(ev events.ChargingEvent) coremetrics.ChargingRecord {
	return coremetrics.ChargingRecord{
		AGVID:     ev.AGVID,
		StationID: ev.StationID,
		Outcome:   string(ev.Kind),
		Failure:   ev.Failure,
		Battery:   ev.Battery,
		Wait:      ev.Wait,
		Time:      ev.Time,
	}
}

// StockRecord converts a stock event.
func StockRecord(ev events.StockEvent) coremetrics.StockRecord {
	return coremetrics.StockRecord{
		Op:         string(ev.Op),
		LocationID: ev.LocationID,
		Amount:     ev.Amount,
		Load:       ev.Load,
		Capacity:   ev.Capacity,
		Sync:       ev.Sync,
		Error:      errString(ev.Err),
		Time:       ev.Time,
	}
}

// OrderRecord converts an order event.
func OrderRecord(ev events.OrderEvent) coremetrics.OrderRecord {
	return coremetrics.OrderRecord{
		OrderID:    ev.OrderID,
		Medicine:   ev.Medicine,
		Quantity:   ev.Quantity,
		LocationID: ev.LocationID,
		Status:     ev.Status,
		Error:      errString(ev.Err),
		Time:       ev.Time,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
