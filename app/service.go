package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kilianp07/warehouse/api"
	"github.com/kilianp07/warehouse/config"
	"github.com/kilianp07/warehouse/core/charging"
	"github.com/kilianp07/warehouse/core/events"
	coremetrics "github.com/kilianp07/warehouse/core/metrics"
	"github.com/kilianp07/warehouse/core/model"
	"github.com/kilianp07/warehouse/core/order"
	"github.com/kilianp07/warehouse/core/storage"
	"github.com/kilianp07/warehouse/core/task"
	"github.com/kilianp07/warehouse/infra/journal"
	"github.com/kilianp07/warehouse/infra/logger"
	"github.com/kilianp07/warehouse/infra/metrics"
	"github.com/kilianp07/warehouse/infra/mqtt"
	"github.com/kilianp07/warehouse/internal/eventbus"
)

const (
	shutdownTimeout = 5 * time.Second
	// fleetEventBuffer sizes the fleet's charging subscription.
	fleetEventBuffer = 1024
)

// Service orchestrates the charging coordinator, the storage manager, the
// order book, the transport tasks and the connectors around them.
type Service struct {
	Charging *charging.Coordinator
	Storage  *storage.Manager
	Orders   *order.Manager
	Tasks    *task.Manager
	Fleet    *Fleet

	cfg     *config.Config
	buses   metrics.Buses
	taskBus *eventbus.TypedBus[events.TaskEvent]
	sink    coremetrics.MetricsSink
	client  *mqtt.PahoClient
	journal *journal.Store
	closers []func() error
	// collectors is closed once the metrics collectors returned.
	collectors <-chan struct{}
	forwarders sync.WaitGroup
	seedOnce   sync.Once
	log        logger.Logger
}

// New creates a Service from the configuration, connecting to the MQTT
// broker when it is enabled.
func New(cfg *config.Config) (*Service, error) {
	var client *mqtt.PahoClient
	var pub mqtt.Publisher
	if cfg.MQTT.Enabled {
		c, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		client, pub = c, c
	}
	svc, err := NewWithPublisher(cfg, pub)
	if err != nil {
		if client != nil {
			client.Disconnect()
		}
		return nil, err
	}
	if client != nil {
		svc.client = client
		client.OnChargeRequest(func(req mqtt.ChargeRequest) {
			if err := svc.HandleChargeRequest(req); err != nil {
				svc.log.Warnf("charge request for %s rejected: %v", req.AGVID, err)
			}
		})
	}
	return svc, nil
}

// NewWithPublisher creates a Service forwarding its events to pub. A nil
// publisher disables forwarding.
func NewWithPublisher(cfg *config.Config, pub mqtt.Publisher) (*Service, error) {
	logg := logger.New("service")
	svc := &Service{
		cfg: cfg,
		log: logg,
		buses: metrics.Buses{
			Charging: eventbus.NewTyped[events.ChargingEvent](),
			Stock:    eventbus.NewTyped[events.StockEvent](),
			Orders:   eventbus.NewTyped[events.OrderEvent](),
		},
		taskBus: eventbus.NewTyped[events.TaskEvent](),
	}
	if err := svc.buildSink(); err != nil {
		svc.closeSinks()
		return nil, err
	}

	coord, err := newCoordinator(cfg.Charging.Stations, cfg.Charging.DropThreshold(), charging.Options{
		Logger:         logger.New("charging"),
		Bus:            svc.buses.Charging,
		Failure:        charging.NewRandomFailure(failureRate(cfg.Charging), 0),
		Profile:        cfg.Charging.Profile(),
		AcquireTimeout: time.Duration(cfg.Charging.AcquireTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		svc.closeSinks()
		return nil, fmt.Errorf("charging coordinator: %w", err)
	}
	svc.Charging = coord

	stock, err := storage.NewManager(cfg.Storage.ArmID, storage.ManagerOptions{
		PoolSize:  cfg.Storage.PoolSize,
		Logger:    logger.New("storage"),
		ArmLogger: logger.New("robotic_arm"),
		Bus:       svc.buses.Stock,
	})
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("storage manager: %w", err)
	}
	svc.Storage = stock
	if err := stock.Seed(cfg.Storage.Locations); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("seed storage: %w", err)
	}

	svc.Orders = order.NewManager(stock, logger.New("orders"), svc.buses.Orders)
	tasks, err := task.NewManager(task.Options{
		Workers: cfg.Tasks.Workers,
		Logger:  logger.New("tasks"),
		Bus:     svc.taskBus,
		Work:    task.Simulate(time.Duration(cfg.Tasks.DurationMS) * time.Millisecond),
	})
	if err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("task manager: %w", err)
	}
	svc.Tasks = tasks
	svc.Fleet = NewFleet(cfg.Fleet, coord.Submit, logger.New("fleet"), 0)
	svc.Fleet.TrackWith(coord.InFlight)

	// Collectors and forwarders run until Close shuts the buses down, so
	// every published event reaches the sinks.
	svc.collectors = metrics.StartEventCollector(context.Background(), svc.buses, svc.sink)
	if pub != nil {
		forward(&svc.forwarders, svc.buses.Charging, pub.PublishCharging, logg)
		forward(&svc.forwarders, svc.buses.Stock, pub.PublishStock, logg)
		forward(&svc.forwarders, svc.buses.Orders, pub.PublishOrder, logg)
		forward(&svc.forwarders, svc.taskBus, pub.PublishTask, logg)
	}
	svc.reportFailures()
	return svc, nil
}

var newCoordinator = charging.NewCoordinator

func failureRate(c charging.Config) float64 {
	if c.FailureRate == nil {
		return charging.DefaultFailureRate
	}
	return *c.FailureRate
}

func (s *Service) buildSink() error {
	var sinks []coremetrics.MetricsSink
	if s.cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if s.cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(s.cfg.Metrics)
		if in, ok := sink.(*metrics.InfluxSink); ok {
			s.closers = append(s.closers, func() error { in.Close(); return nil })
		}
		sinks = append(sinks, sink)
	}
	if s.cfg.Journal.Enabled {
		store, err := journal.Open(s.cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		s.journal = store
		sinks = append(sinks, store)
	}
	switch len(sinks) {
	case 0:
		s.sink = coremetrics.NopSink{}
	case 1:
		s.sink = sinks[0]
	default:
		s.sink = metrics.NewMultiSink(sinks...)
	}
	return nil
}

// HandleChargeRequest queues an AGV received from an external system.
func (s *Service) HandleChargeRequest(req mqtt.ChargeRequest) error {
	agv, err := model.NewAGV(req.AGVID, req.Battery, req.Urgent)
	if err != nil {
		return err
	}
	return s.Charging.Submit(agv)
}

// Run creates the configured orders and tasks, then drives the fleet simulation and
// blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	if s.cfg.API.Enabled {
		go func() {
			if err := api.Serve(ctx, s.cfg.API.Addr, s.Handler()); err != nil {
				s.log.Errorf("api server: %v", err)
			}
		}()
	}

	charges := s.buses.Charging.SubscribeWithBuffer(fleetEventBuffer)
	defer s.buses.Charging.Unsubscribe(charges)
	s.seedOnce.Do(func() {
		s.seedOrders()
		s.seedTasks()
	})

	ticker := time.NewTicker(time.Duration(s.cfg.Fleet.TickMS) * time.Millisecond)
	defer ticker.Stop()
	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-charges:
			if !ok {
				return nil
			}
			s.Fleet.Observe(ev)
		case <-ticker.C:
			ticks++
			s.step(ticks)
		}
	}
}

// Handler returns the HTTP API of the service.
func (s *Service) Handler() http.Handler {
	deps := api.Deps{Charging: s.Charging, Inventory: s.Storage, Orders: s.Orders, Tasks: s.Tasks}
	if s.journal != nil {
		deps.ChargingLog = s.journal
	}
	return api.NewMux(deps, s.cfg.API.Token)
}

func (s *Service) step(tick int) {
	s.Fleet.Tick()
	if r, ok := s.sink.(coremetrics.QueueRecorder); ok {
		if err := r.RecordQueueDepth(s.Charging.QueueLen()); err != nil {
			s.log.Warnf("record queue depth: %v", err)
		}
	}
	if s.Tasks.HasPending() {
		if _, err := s.Tasks.Process(); err != nil {
			s.log.Warnf("tasks: %v", err)
		}
	}
	if every := s.cfg.Fleet.InventoryEvery; every > 0 && tick%every == 0 {
		if err := s.Storage.ManageInventory(); err != nil {
			s.log.Warnf("inventory: %v", err)
		}
	}
}

func (s *Service) seedOrders() {
	for _, seed := range s.cfg.Orders.Seed {
		create := s.Orders.Create
		if seed.Emergency {
			create = s.Orders.CreateEmergency
		}
		o, err := create(seed.Medicine, seed.Quantity, seed.LocationID)
		if err != nil {
			s.log.Errorf("seed order %s: %v", seed.Medicine, err)
			continue
		}
		if !seed.Complete {
			continue
		}
		if _, err := s.Orders.Complete(o.ID); err != nil {
			s.log.Warnf("order %s could not be picked: %v", o.ID, err)
		}
	}
}

func (s *Service) seedTasks() {
	for _, seed := range s.cfg.Tasks.Seed {
		if _, err := s.Tasks.Create(seed.Type, seed.Source, seed.Destination); err != nil {
			s.log.Errorf("seed task %s: %v", seed.Type, err)
		}
	}
}

// forward publishes every event of bus until the bus is closed.
func forward[T any](wg *sync.WaitGroup, bus *eventbus.TypedBus[T], publish func(T) error, log logger.Logger) {
	sub := bus.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range sub {
			if err := publish(ev); err != nil {
				log.Warnf("publish event: %v", err)
			}
		}
	}()
}

func (s *Service) drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.forwarders.Wait()
		if s.collectors != nil {
			<-s.collectors
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event drain: %w", ctx.Err())
	}
}

func (s *Service) closeSinks() []error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errs
}

// Close stops the coordinator, the storage pool and the task workers, then
// releases the sinks and the broker connection.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var errs []error
	if s.Charging != nil {
		if err := s.Charging.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("charging: %w", err))
		}
	}
	if s.Storage != nil {
		if err := s.Storage.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.Tasks != nil {
		if err := s.Tasks.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tasks: %w", err))
		}
	}
	s.buses.Charging.Close()
	s.buses.Stock.Close()
	s.buses.Orders.Close()
	s.taskBus.Close()
	if err := s.drain(ctx); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, s.closeSinks()...)
	if s.client != nil {
		s.client.Disconnect()
	}
	return errors.Join(errs...)
}
