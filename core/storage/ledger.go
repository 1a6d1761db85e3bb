package storage

import (
	"fmt"
	"sync"
)

// Ledger tracks the registered locations. The quantity of a location is its
// load; there is no separate counter to keep in step.
type Ledger struct {
	mu    sync.RWMutex
	locs  map[string]*StorageLocation
	order []string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{locs: make(map[string]*StorageLocation)}
}

// Register adds loc to the ledger.
func (l *Ledger) Register(loc *StorageLocation) error {
	if loc == nil {
		return ErrNilLocation
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.locs[loc.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateLocation, loc.ID())
	}
	l.locs[loc.ID()] = loc
	l.order = append(l.order, loc.ID())
	return nil
}

// Registered reports whether loc itself, not only its id, is tracked.
func (l *Ledger) Registered(loc *StorageLocation) bool {
	if loc == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.locs[loc.ID()] == loc
}

// Lookup returns the location registered under id.
func (l *Ledger) Lookup(id string) (*StorageLocation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	loc, ok := l.locs[id]
	return loc, ok
}

// Quantity returns the stock held at id.
func (l *Ledger) Quantity(id string) (int, bool) {
	loc, ok := l.Lookup(id)
	if !ok {
		return 0, false
	}
	return loc.Load(), true
}

// Locations returns the registered locations in registration order.
func (l *Ledger) Locations() []*StorageLocation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*StorageLocation, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.locs[id])
	}
	return out
}

// Check reports whether delta can be applied to loc as a whole.
func (l *Ledger) Check(loc *StorageLocation, delta int) error {
	if !l.Registered(loc) {
		return ErrUnknownLocation
	}
	load := loc.Load()
	switch {
	case delta > 0 && load+delta > loc.Capacity():
		return fmt.Errorf("%w: %s holds %d of %d, cannot add %d", ErrLocationFull, loc.ID(), load, loc.Capacity(), delta)
	case delta < 0 && load+delta < 0:
		return fmt.Errorf("%w: %s holds %d, cannot remove %d", ErrInsufficientStock, loc.ID(), load, -delta)
	}
	return nil
}

// Apply checks delta and then steps loc one item at a time. Callers serialize
// Apply calls for the same location.
func (l *Ledger) Apply(loc *StorageLocation, delta int) error {
	if err := l.Check(loc, delta); err != nil {
		return err
	}
	step := loc.AddItem
	n := delta
	if delta < 0 {
		step = loc.RemoveItem
		n = -delta
	}
	for i := 0; i < n; i++ {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
