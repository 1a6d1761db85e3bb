package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/warehouse/core/metrics"
)

type lineRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, strings.TrimSpace(string(data)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (l *lineRecorder) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.bodies...)
}

func TestInfluxSink_RecordCharging(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	err := sink.RecordCharging(coremetrics.ChargingRecord{
		AGVID:     "AGV-1",
		StationID: "S1",
		Outcome:   "failed",
		Failure:   "malfunction",
		Battery:   35,
		Wait:      1500 * time.Millisecond,
		Time:      now,
	})
	if err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("charging_event").
		AddTag("agv_id", "AGV-1").
		AddTag("outcome", "failed").
		AddTag("component", "charging").
		AddTag("station_id", "S1").
		AddTag("failure", "malfunction").
		AddField("battery", 35).
		AddField("wait_ms", 1500.0).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	bodies := rec.all()
	if len(bodies) != 1 || bodies[0] != expected {
		t.Errorf("unexpected bodies: %#v", bodies)
	}
}

func TestInfluxSink_RecordStockAndOrder(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)

	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	if err := sink.RecordStock(coremetrics.StockRecord{
		Op: "remove", LocationID: "A1", Amount: 3, Load: 7, Capacity: 10, Sync: true,
		Error: errString(errors.New("not enough items")), Time: now,
	}); err != nil {
		t.Fatalf("record stock: %v", err)
	}
	if err := sink.RecordOrder(coremetrics.OrderRecord{
		OrderID: "o-1", Medicine: "Aspirin", Quantity: 3, LocationID: "A1", Status: "COMPLETED", Time: now,
	}); err != nil {
		t.Fatalf("record order: %v", err)
	}
	bodies := rec.all()
	if len(bodies) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(bodies))
	}
	for _, want := range []string{"stock_event", "location_id=A1", "op=remove", "sync=true", "load=7i"} {
		if !strings.Contains(bodies[0], want) {
			t.Errorf("stock line %q misses %q", bodies[0], want)
		}
	}
	for _, want := range []string{"order_event", "status=COMPLETED", "quantity=3i", `medicine="Aspirin"`} {
		if !strings.Contains(bodies[1], want) {
			t.Errorf("order line %q misses %q", bodies[1], want)
		}
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	cfg := coremetrics.Config{
		InfluxURL:    srv.URL + "/api/v2/write",
		InfluxToken:  "tok",
		InfluxOrg:    "org",
		InfluxBucket: "bucket",
	}
	sink := NewInfluxSinkWithFallback(cfg)
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
