package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/warehouse/core/events"
	"github.com/kilianp07/warehouse/core/logger"
	"github.com/kilianp07/warehouse/internal/eventbus"
	"github.com/kilianp07/warehouse/internal/workerpool"
)

// ManagerOptions carries the optional collaborators of a Manager.
type ManagerOptions struct {
	PoolSize int
	Logger   logger.Logger
	// ArmLogger is used by the interlock. Defaults to Logger.
	ArmLogger logger.Logger
	Bus       *eventbus.TypedBus[events.StockEvent]
}

// LocationStock is one line of an inventory report.
type LocationStock struct {
	ID       string
	Load     int
	Capacity int
}

// Manager serializes stock mutations and robotic arm cycles.
type Manager struct {
	mu     sync.Mutex
	ledger *Ledger
	arm    *Interlock
	pool   *workerpool.Pool
	log    logger.Logger
	bus    *eventbus.TypedBus[events.StockEvent]
}

// NewManager creates a manager driving the arm armID.
func NewManager(armID string, opts ManagerOptions) (*Manager, error) {
	if opts.PoolSize == 0 {
		opts.PoolSize = DefaultPoolSize
	}
	log := logger.OrNop(opts.Logger)
	armLog := opts.ArmLogger
	if armLog == nil {
		armLog = log
	}
	pool, err := workerpool.New("storage", opts.PoolSize, 64, log)
	if err != nil {
		return nil, err
	}
	return &Manager{
		ledger: NewLedger(),
		arm:    NewInterlock(armID, armLog),
		pool:   pool,
		log:    log,
		bus:    opts.Bus,
	}, nil
}

// AddStorageLocation registers loc.
func (m *Manager) AddStorageLocation(loc *StorageLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ledger.Register(loc); err != nil {
		return err
	}
	locationLoad.WithLabelValues(loc.ID()).Set(float64(loc.Load()))
	m.log.Infof("New storage location added: %s", loc.ID())
	return nil
}

// Seed registers the configured locations and stores their initial stock
// without cycling the arm.
func (m *Manager) Seed(locs []LocationConfig) error {
	for _, lc := range locs {
		loc, err := NewStorageLocation(lc.ID, lc.Capacity)
		if err != nil {
			return err
		}
		if err := m.AddStorageLocation(loc); err != nil {
			return err
		}
		if lc.Initial == 0 {
			continue
		}
		m.mu.Lock()
		err = m.ledger.Apply(loc, lc.Initial)
		m.mu.Unlock()
		if err != nil {
			return fmt.Errorf("seed %s: %w", lc.ID, err)
		}
		locationLoad.WithLabelValues(loc.ID()).Set(float64(loc.Load()))
	}
	return nil
}

func (m *Manager) validate(loc *StorageLocation, amount int) error {
	if loc == nil {
		return ErrNilLocation
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	if !m.ledger.Registered(loc) {
		return fmt.Errorf("%w: %s", ErrUnknownLocation, loc.ID())
	}
	return nil
}

// AddStock validates the request and stores amount items asynchronously.
// The outcome is logged and published as a StockEvent.
func (m *Manager) AddStock(loc *StorageLocation, amount int) error {
	if err := m.validate(loc, amount); err != nil {
		return fmt.Errorf("add stock: %w", err)
	}
	return m.async(events.StockAdd, loc, amount, m.add)
}

// RemoveStock validates the request and takes amount items out
// asynchronously. The outcome is logged and published as a StockEvent.
func (m *Manager) RemoveStock(loc *StorageLocation, amount int) error {
	if err := m.validate(loc, amount); err != nil {
		return fmt.Errorf("remove stock: %w", err)
	}
	return m.async(events.StockRemove, loc, amount, m.remove)
}

// RemoveStockSync takes amount items out on the calling goroutine.
func (m *Manager) RemoveStockSync(loc *StorageLocation, amount int) error {
	if err := m.validate(loc, amount); err != nil {
		return fmt.Errorf("remove stock: %w", err)
	}
	err := m.remove(loc, amount)
	m.report(events.StockRemove, loc, amount, true, err)
	return err
}

// async runs apply on the pool. A task reached only after a forced shutdown
// changes nothing and reports ErrCancelled.
func (m *Manager) async(op events.StockOp, loc *StorageLocation, amount int, apply func(*StorageLocation, int) error) error {
	return m.submit(func(ctx context.Context) {
		if err := ctx.Err(); err != nil {
			m.report(op, loc, amount, false, fmt.Errorf("%w: %v", ErrCancelled, err))
			return
		}
		m.report(op, loc, amount, false, apply(loc, amount))
	})
}

func (m *Manager) submit(t workerpool.Task) error {
	if err := m.pool.Submit(t); err != nil {
		if errors.Is(err, workerpool.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (m *Manager) add(loc *StorageLocation, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Apply(loc, amount)
}

// remove checks the stock, then cycles the arm and picks the items while it
// is at the location. Nothing changes when either step fails.
func (m *Manager) remove(loc *StorageLocation, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ledger.Check(loc, -amount); err != nil {
		return err
	}
	return m.arm.Cycle(func() error {
		return m.ledger.Apply(loc, -amount)
	})
}

func (m *Manager) report(op events.StockOp, loc *StorageLocation, amount int, synchronous bool, err error) {
	mode := "async"
	if synchronous {
		mode = "sync"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	stockOperations.WithLabelValues(string(op), mode, result).Inc()
	locationLoad.WithLabelValues(loc.ID()).Set(float64(loc.Load()))

	if err != nil {
		m.log.Errorf("%s stock failed at %s: %v", op, loc.ID(), err)
	} else if op == events.StockAdd {
		m.log.Infof("%d items added to location %s", amount, loc.ID())
	} else {
		m.log.Infof("%d items removed from location %s", amount, loc.ID())
	}
	if m.bus != nil {
		m.bus.Publish(events.StockEvent{
			Op:         op,
			LocationID: loc.ID(),
			Amount:     amount,
			Load:       loc.Load(),
			Capacity:   loc.Capacity(),
			Sync:       synchronous,
			Err:        err,
			Time:       time.Now(),
		})
	}
}

// Quantity returns the stock held at the location id.
func (m *Manager) Quantity(id string) (int, bool) { return m.ledger.Quantity(id) }

// Location returns the registered location id.
func (m *Manager) Location(id string) (*StorageLocation, bool) { return m.ledger.Lookup(id) }

// Locations returns the registered locations in registration order.
func (m *Manager) Locations() []*StorageLocation { return m.ledger.Locations() }

// Report returns a consistent snapshot of every location.
func (m *Manager) Report() []LocationStock {
	m.mu.Lock()
	defer m.mu.Unlock()
	locs := m.ledger.Locations()
	out := make([]LocationStock, 0, len(locs))
	for _, l := range locs {
		out = append(out, LocationStock{ID: l.ID(), Load: l.Load(), Capacity: l.Capacity()})
	}
	return out
}

// ManageInventory logs an inventory report from the worker pool.
func (m *Manager) ManageInventory() error {
	return m.submit(func(ctx context.Context) {
		if ctx.Err() != nil {
			m.log.Warnf("inventory management skipped: %v", ctx.Err())
			return
		}
		m.log.Infof("Inventory management started...")
		for _, l := range m.Report() {
			m.log.Infof("Inventory at %s: %d/%d items", l.ID, l.Load, l.Capacity)
		}
		m.log.Infof("Inventory management completed.")
	})
}

// Arm exposes the robotic arm interlock.
func (m *Manager) Arm() *Interlock { return m.arm }

// Shutdown waits for queued stock operations until ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.log.Infof("Shutting down storage manager...")
	err := m.pool.Shutdown(ctx)
	if err != nil {
		m.log.Warnf("storage manager forced to stop, %d operations discarded: %v", m.pool.Skipped(), err)
	}
	m.log.Infof("Storage manager stopped.")
	return err
}
