package order

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/warehouse/core/events"
	"github.com/kilianp07/warehouse/core/logger"
	"github.com/kilianp07/warehouse/core/storage"
	"github.com/kilianp07/warehouse/internal/eventbus"
)

// Stock is the part of the storage manager orders rely on.
type Stock interface {
	Location(id string) (*storage.StorageLocation, bool)
	RemoveStockSync(loc *storage.StorageLocation, amount int) error
}

// Manager keeps orders in memory.
type Manager struct {
	mu     sync.RWMutex
	orders map[string]*Order
	stock  Stock
	log    logger.Logger
	bus    *eventbus.TypedBus[events.OrderEvent]
	now    func() time.Time
}

// NewManager returns an empty order book backed by stock.
func NewManager(stock Stock, log logger.Logger, bus *eventbus.TypedBus[events.OrderEvent]) *Manager {
	return &Manager{
		orders: make(map[string]*Order),
		stock:  stock,
		log:    logger.OrNop(log),
		bus:    bus,
		now:    time.Now,
	}
}

// Create registers a regular order.
func (m *Manager) Create(medicine string, quantity int, locationID string) (Order, error) {
	return m.create(medicine, quantity, locationID, false)
}

// CreateEmergency registers an order flagged for priority handling by operators.
func (m *Manager) CreateEmergency(medicine string, quantity int, locationID string) (Order, error) {
	return m.create(medicine, quantity, locationID, true)
}

func (m *Manager) create(medicine string, quantity int, locationID string, emergency bool) (Order, error) {
	if medicine == "" {
		return Order{}, ErrEmptyMedicine
	}
	if quantity <= 0 {
		return Order{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if _, ok := m.stock.Location(locationID); !ok {
		return Order{}, fmt.Errorf("order for %s: %w", medicine, storage.ErrUnknownLocation)
	}
	now := m.now()
	o := &Order{
		ID:         uuid.NewString(),
		Medicine:   medicine,
		Quantity:   quantity,
		LocationID: locationID,
		Emergency:  emergency,
		Status:     StatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.mu.Lock()
	m.orders[o.ID] = o
	snap := *o
	m.mu.Unlock()

	if emergency {
		m.log.Warnf("Created emergency order %s: %d x %s", o.ID, quantity, medicine)
	} else {
		m.log.Infof("Created order %s: %d x %s", o.ID, quantity, medicine)
	}
	m.publish(snap, nil)
	return snap, nil
}

// Complete picks the order from storage synchronously. A storage failure
// marks the order FAILED and is returned.
func (m *Manager) Complete(id string) (Order, error) {
	o, err := m.claim(id)
	if err != nil {
		return Order{}, err
	}
	loc, ok := m.stock.Location(o.LocationID)
	if !ok {
		err = storage.ErrUnknownLocation
	} else {
		err = m.stock.RemoveStockSync(loc, o.Quantity)
	}

	m.mu.Lock()
	o.UpdatedAt = m.now()
	if err != nil {
		o.Status = StatusFailed
		o.Failure = err.Error()
	} else {
		o.Status = StatusCompleted
	}
	snap := *o
	m.mu.Unlock()

	if err != nil {
		m.log.Errorf("Failed to complete order %s: %v", id, err)
		err = fmt.Errorf("complete order %s: %w", id, err)
	} else {
		m.log.Infof("Order %s completed successfully", id)
	}
	m.publish(snap, err)
	return snap, err
}

// claim reserves an open order for completion so concurrent Complete or
// Cancel calls cannot act on it twice.
func (m *Manager) claim(id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !o.Open() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotOpen, id, o.Status)
	}
	o.Status = statusPicking
	return o, nil
}

// Cancel withdraws an open order.
func (m *Manager) Cancel(id string) (Order, error) {
	m.mu.Lock()
	o, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !o.Open() {
		st := o.Status
		m.mu.Unlock()
		return Order{}, fmt.Errorf("%w: %s is %s", ErrNotOpen, id, st)
	}
	o.Status = StatusCancelled
	o.UpdatedAt = m.now()
	snap := *o
	m.mu.Unlock()

	m.log.Warnf("Order cancelled: %s", id)
	m.publish(snap, nil)
	return snap, nil
}

// Get returns a copy of the order id.
func (m *Manager) Get(id string) (Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// List returns copies of all orders, oldest first.
func (m *Manager) List() []Order {
	m.mu.RLock()
	out := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, *o)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) publish(o Order, err error) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.OrderEvent{
		OrderID:    o.ID,
		Medicine:   o.Medicine,
		Quantity:   o.Quantity,
		LocationID: o.LocationID,
		Status:     string(o.Status),
		Err:        err,
		Time:       o.UpdatedAt,
	})
}
