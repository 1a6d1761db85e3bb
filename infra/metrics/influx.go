package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/warehouse/core/metrics"
	"github.com/kilianp07/warehouse/infra/logger"
)

// InfluxSink writes warehouse events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordCharging writes a charging outcome.
func (s *InfluxSink) RecordCharging(rec coremetrics.ChargingRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("charging_event").
		AddTag("agv_id", rec.AGVID).
		AddTag("outcome", rec.Outcome).
		AddTag("component", "charging")
	if rec.StationID != "" {
		p = p.AddTag("station_id", rec.StationID)
	}
	if rec.Failure != "" {
		p = p.AddTag("failure", rec.Failure)
	}
	p = p.AddField("battery", rec.Battery).
		AddField("wait_ms", round3(rec.Wait.Seconds()*1000)).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordStock writes a stock operation.
func (s *InfluxSink) RecordStock(rec coremetrics.StockRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("stock_event").
		AddTag("location_id", rec.LocationID).
		AddTag("op", rec.Op).
		AddTag("sync", strconv.FormatBool(rec.Sync)).
		AddTag("component", "storage").
		AddField("amount", rec.Amount).
		AddField("load", rec.Load).
		AddField("capacity", rec.Capacity).
		AddField("errors", rec.Error).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordOrder writes an order transition.
func (s *InfluxSink) RecordOrder(rec coremetrics.OrderRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("order_event").
		AddTag("order_id", rec.OrderID).
		AddTag("status", rec.Status).
		AddTag("location_id", rec.LocationID).
		AddTag("component", "orders").
		AddField("medicine", rec.Medicine).
		AddField("quantity", rec.Quantity).
		AddField("errors", rec.Error).
		SetTime(rec.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the client resources.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
