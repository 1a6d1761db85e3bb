package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/warehouse/core/metrics"
)

// PromSink records charging, stock and order events in Prometheus metrics.
type PromSink struct {
	charging *prometheus.CounterVec
	wait     *prometheus.HistogramVec
	stock    *prometheus.CounterVec
	orders   *prometheus.CounterVec
	depth    prometheus.Gauge
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	charging := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_charging_events_total",
		Help: "Terminal charging outcomes per AGV and station",
	}, []string{"agv_id", "station_id", "outcome"})
	wait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warehouse_charging_wait_seconds",
		Help:    "Queue wait of charging requests by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	stock := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_stock_events_total",
		Help: "Stock operations per location",
	}, []string{"location_id", "op", "ok"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warehouse_order_events_total",
		Help: "Order status transitions",
	}, []string{"status"})
	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "warehouse_fleet_charging_backlog",
		Help: "Charging requests waiting as sampled by the fleet loop",
	})

	var err error
	if charging, err = register(reg, charging); err != nil {
		return nil, err
	}
	if wait, err = register(reg, wait); err != nil {
		return nil, err
	}
	if stock, err = register(reg, stock); err != nil {
		return nil, err
	}
	if orders, err = register(reg, orders); err != nil {
		return nil, err
	}
	if depth, err = register(reg, depth); err != nil {
		return nil, err
	}
	return &PromSink{charging: charging, wait: wait, stock: stock, orders: orders, depth: depth}, nil
}

// register reuses an already registered collector of the same type.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordCharging increments the outcome counter and observes the wait.
func (s *PromSink) RecordCharging(rec coremetrics.ChargingRecord) error {
	s.charging.WithLabelValues(rec.AGVID, rec.StationID, rec.Outcome).Inc()
	s.wait.WithLabelValues(rec.Outcome).Observe(rec.Wait.Seconds())
	return nil
}

// RecordStock counts a stock operation.
func (s *PromSink) RecordStock(rec coremetrics.StockRecord) error {
	s.stock.WithLabelValues(rec.LocationID, rec.Op, strconv.FormatBool(rec.Error == "")).Inc()
	return nil
}

// RecordOrder counts an order transition.
func (s *PromSink) RecordOrder(rec coremetrics.OrderRecord) error {
	s.orders.WithLabelValues(rec.Status).Inc()
	return nil
}

// RecordQueueDepth sets the backlog gauge.
func (s *PromSink) RecordQueueDepth(depth int) error {
	s.depth.Set(float64(depth))
	return nil
}
