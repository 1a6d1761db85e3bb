package mqtt

import (
	"fmt"
	"sync"

	"github.com/kilianp07/warehouse/core/events"
)

// Publisher sends warehouse state changes to external consumers.
type Publisher interface {
	PublishCharging(ev events.ChargingEvent) error
	PublishStock(ev events.StockEvent) error
	PublishOrder(ev events.OrderEvent) error
	PublishTask(ev events.TaskEvent) error
}

var _ Publisher = (*PahoClient)(nil)

// MockPublisher is a simple publisher used in tests.
type MockPublisher struct {
	Charging []events.ChargingEvent
	Stock    []events.StockEvent
	Orders   []events.OrderEvent
	Tasks    []events.TaskEvent
	// FailAGVs makes PublishCharging fail for the listed AGV ids.
	FailAGVs map[string]bool
	mu       sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{FailAGVs: make(map[string]bool)}
}

// PublishCharging records the event or returns an error if configured to fail.
func (m *MockPublisher) PublishCharging(ev events.ChargingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAGVs[ev.AGVID] {
		return fmt.Errorf("publish failed")
	}
	m.Charging = append(m.Charging, ev)
	return nil
}

// PublishStock records the event.
func (m *MockPublisher) PublishStock(ev events.StockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stock = append(m.Stock, ev)
	return nil
}

// PublishOrder records the event.
func (m *MockPublisher) PublishOrder(ev events.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Orders = append(m.Orders, ev)
	return nil
}

// PublishTask records the event.
func (m *MockPublisher) PublishTask(ev events.TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tasks = append(m.Tasks, ev)
	return nil
}

// TaskStates returns the recorded statuses of taskID in order.
func (m *MockPublisher) TaskStates(taskID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.Tasks {
		if ev.TaskID == taskID {
			out = append(out, ev.Status)
		}
	}
	return out
}

// ChargingStates returns the recorded charging kinds for agvID in order.
func (m *MockPublisher) ChargingStates(agvID string) []events.ChargingKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.ChargingKind
	for _, ev := range m.Charging {
		if ev.AGVID == agvID {
			out = append(out, ev.Kind)
		}
	}
	return out
}

// Counts returns how many charging, stock and order events were recorded.
func (m *MockPublisher) Counts() (charging, stock, orders int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Charging), len(m.Stock), len(m.Orders)
}
