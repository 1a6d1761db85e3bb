package storage

import (
	"sync"

	"github.com/kilianp07/warehouse/core/logger"
)

// Interlock guards the robotic arm. Only an active arm may move.
type Interlock struct {
	id     string
	log    logger.Logger
	mu     sync.Mutex
	active bool
	// seq serializes whole Cycle sequences.
	seq    sync.Mutex
	cycles int
}

// NewInterlock returns an inactive arm.
func NewInterlock(id string, log logger.Logger) *Interlock {
	return &Interlock{id: id, log: logger.OrNop(log)}
}

func (a *Interlock) ID() string { return a.id }

// IsActive reports the arm state.
func (a *Interlock) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Activate powers the arm.
func (a *Interlock) Activate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		a.log.Warnf("%s: attempted to activate, but robotic arm already active", a.id)
		return ErrInterlockActive
	}
	a.active = true
	a.log.Debugf("%s: activated", a.id)
	return nil
}

// Move sends the arm to storage.
func (a *Interlock) Move() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		a.log.Errorf("%s: attempted to move, but robotic arm is inactive", a.id)
		return ErrInterlockInactive
	}
	a.log.Debugf("%s: moving to storage", a.id)
	return nil
}

// Deactivate powers the arm down.
func (a *Interlock) Deactivate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		a.log.Warnf("%s: attempted to deactivate, but robotic arm already inactive", a.id)
		return ErrInterlockInactive
	}
	a.active = false
	a.log.Debugf("%s: deactivated", a.id)
	return nil
}

// Cycle activates the arm, moves it, runs pick while it is at the
// location and deactivates it again. The arm is always deactivated once it
// was activated; the first error is returned.
func (a *Interlock) Cycle(pick func() error) error {
	a.seq.Lock()
	defer a.seq.Unlock()
	if err := a.Activate(); err != nil {
		return err
	}
	err := a.Move()
	if err == nil && pick != nil {
		err = pick()
	}
	if derr := a.Deactivate(); err == nil {
		err = derr
	}
	if err == nil {
		a.cycles++
		interlockCycles.Inc()
	}
	return err
}

// Cycles returns the number of completed cycles.
func (a *Interlock) Cycles() int {
	a.seq.Lock()
	defer a.seq.Unlock()
	return a.cycles
}
