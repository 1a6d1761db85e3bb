package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/warehouse/config"
	"github.com/kilianp07/warehouse/core/charging"
	"github.com/kilianp07/warehouse/core/events"
	coremetrics "github.com/kilianp07/warehouse/core/metrics"
	"github.com/kilianp07/warehouse/core/model"
	"github.com/kilianp07/warehouse/core/monitoring"
	"github.com/kilianp07/warehouse/core/order"
	"github.com/kilianp07/warehouse/core/storage"
	"github.com/kilianp07/warehouse/core/task"
	"github.com/kilianp07/warehouse/infra/journal"
	"github.com/kilianp07/warehouse/infra/metrics"
	"github.com/kilianp07/warehouse/infra/mqtt"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	zero := 0.0
	cfg := &config.Config{
		Charging: charging.Config{
			Stations:         []string{"S1", "S2"},
			FailureRate:      &zero,
			ChargeStep:       100,
			ChargeIntervalMS: 1,
			AcquireTimeoutMS: 10,
		},
		Storage: storage.Config{Locations: []storage.LocationConfig{{ID: "A1", Capacity: 100, Initial: 10}}},
		Fleet: config.FleetConfig{
			AGVs:     []config.AGVConfig{{ID: "AGV-1", Battery: 25}},
			TickMS:   10,
			DrainMin: 5,
			DrainMax: 5,
		},
		Orders: config.OrdersConfig{Seed: []config.OrderSeed{
			{Medicine: "Paracetamol", Quantity: 3, LocationID: "A1", Complete: true},
			{Medicine: "Insulin", Quantity: 50, LocationID: "A1", Emergency: true, Complete: true},
		}},
		Journal: journal.Config{Enabled: true, Path: filepath.Join(t.TempDir(), "warehouse.db")},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestServiceRunChargesFleetAndPicksOrders(t *testing.T) {
	cfg := testConfig(t)
	pub := mqtt.NewMockPublisher()
	svc, err := NewWithPublisher(cfg, pub)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return slices.Contains(pub.ChargingStates("AGV-1"), events.ChargingCharged)
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, stock, orders := pub.Counts()
		return stock >= 2 && orders >= 4
	}, 2*time.Second, 10*time.Millisecond)

	list := svc.Orders.List()
	require.Len(t, list, 2)
	byMedicine := map[string]order.Order{}
	for _, o := range list {
		byMedicine[o.Medicine] = o
	}
	require.Equal(t, order.StatusCompleted, byMedicine["Paracetamol"].Status)
	require.Equal(t, order.StatusFailed, byMedicine["Insulin"].Status)
	require.True(t, byMedicine["Insulin"].Emergency)
	qty, ok := svc.Storage.Quantity("A1")
	require.True(t, ok)
	require.Equal(t, 7, qty)
	require.Equal(t, 1, svc.Storage.Arm().Cycles())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
	require.NoError(t, svc.Close())

	store, err := journal.Open(cfg.Journal.Path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	recs, err := store.QueryCharging(context.Background(), journal.ChargingQuery{AGVID: "AGV-1", Outcome: "charged"})
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	counts, err := store.CountOrders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, counts[string(order.StatusCreated)])
	require.Equal(t, 1, counts[string(order.StatusCompleted)])
	require.Equal(t, 1, counts[string(order.StatusFailed)])
}

func TestServiceRunsSeededTasks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Enabled = false
	cfg.Orders.Seed = nil
	cfg.Tasks = task.Config{Workers: 2, DurationMS: 1, Seed: []task.Seed{
		{Type: "MOVE", Source: "DOCK-1", Destination: "A1"},
		{Type: "MOVE", Source: "DOCK-2", Destination: "A1"},
	}}
	pub := mqtt.NewMockPublisher()
	svc, err := NewWithPublisher(cfg, pub)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		list := svc.Tasks.List()
		if len(list) != 2 {
			return false
		}
		for _, tk := range list {
			if tk.Status != task.StatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, svc.Close())
	for _, tk := range svc.Tasks.List() {
		require.Equal(t, []string{"PENDING", "IN_PROGRESS", "COMPLETED"}, pub.TaskStates(tk.ID))
	}

	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestServiceHandleChargeRequest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Enabled = false
	cfg.Orders.Seed = nil
	pub := mqtt.NewMockPublisher()
	svc, err := NewWithPublisher(cfg, pub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	require.Error(t, svc.HandleChargeRequest(mqtt.ChargeRequest{AGVID: "", Battery: 10}))
	require.Error(t, svc.HandleChargeRequest(mqtt.ChargeRequest{AGVID: "X", Battery: 101}))
	require.NoError(t, svc.HandleChargeRequest(mqtt.ChargeRequest{AGVID: "EXT-1", Battery: 40, Urgent: true}))

	require.Eventually(t, func() bool {
		return slices.Contains(pub.ChargingStates("EXT-1"), events.ChargingCharged)
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t,
		[]events.ChargingKind{events.ChargingQueued, events.ChargingAssigned, events.ChargingCharged},
		pub.ChargingStates("EXT-1"))
}

func TestServiceCloseRejectsRequests(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Enabled = false
	svc, err := NewWithPublisher(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	err = svc.HandleChargeRequest(mqtt.ChargeRequest{AGVID: "EXT-1", Battery: 40})
	require.ErrorIs(t, err, charging.ErrClosed)
}

func TestServiceSinkSelection(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Enabled = false
	svc, err := NewWithPublisher(cfg, nil)
	require.NoError(t, err)
	_, ok := svc.sink.(coremetrics.NopSink)
	require.True(t, ok)
	require.NoError(t, svc.Close())

	cfg = testConfig(t)
	cfg.Metrics.PrometheusEnabled = true
	svc, err = NewWithPublisher(cfg, nil)
	require.NoError(t, err)
	_, ok = svc.sink.(*metrics.MultiSink)
	require.True(t, ok)
	require.NoError(t, svc.Close())
}

func TestServiceJournalOpenError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Path = filepath.Join(t.TempDir(), "missing", "dir", "warehouse.db")
	_, err := NewWithPublisher(cfg, nil)
	require.Error(t, err)
}

func TestServiceStorageErrorStopsCoordinator(t *testing.T) {
	var built *charging.Coordinator
	orig := newCoordinator
	newCoordinator = func(stations []string, threshold time.Duration, opts charging.Options) (*charging.Coordinator, error) {
		c, err := orig(stations, threshold, opts)
		built = c
		return c, err
	}
	t.Cleanup(func() { newCoordinator = orig })

	cfg := testConfig(t)
	cfg.Storage.PoolSize = -1
	_, err := NewWithPublisher(cfg, nil)
	require.ErrorContains(t, err, "storage manager")
	require.NotNil(t, built)
	agv, err := model.NewAGV("AGV-9", 30, false)
	require.NoError(t, err)
	require.ErrorIs(t, built.Submit(agv), charging.ErrClosed)
}

type capturingMonitor struct {
	mu   sync.Mutex
	tags []map[string]string
}

func (m *capturingMonitor) CaptureException(_ error, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags = append(m.tags, tags)
}
func (m *capturingMonitor) CapturePanic(any)    {}
func (m *capturingMonitor) Flush(time.Duration) {}

func (m *capturingMonitor) components() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, t := range m.tags {
		out = append(out, t["component"])
	}
	return out
}

func TestServiceReportsFailures(t *testing.T) {
	mon := &capturingMonitor{}
	monitoring.Init(mon)
	defer monitoring.Init(monitoring.NopMonitor{})

	cfg := testConfig(t)
	cfg.Journal.Enabled = false
	cfg.Orders.Seed = nil
	one := 1.0
	cfg.Charging.FailureRate = &one
	svc, err := NewWithPublisher(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	require.NoError(t, svc.HandleChargeRequest(mqtt.ChargeRequest{AGVID: "EXT-2", Battery: 30}))
	o, err := svc.Orders.Create("Morphine", 99, "A1")
	require.NoError(t, err)
	_, err = svc.Orders.Complete(o.ID)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		got := mon.components()
		return slices.Contains(got, "charging") && slices.Contains(got, "storage") && slices.Contains(got, "orders")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServiceHandler(t *testing.T) {
	cfg := testConfig(t)
	svc, err := NewWithPublisher(cfg, nil)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	for _, path := range []string{"/api/charging", "/api/stock", "/api/orders", "/api/charging/log"} {
		rr := httptest.NewRecorder()
		svc.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rr.Code, path)
	}
}
