package model

import (
	"errors"
	"fmt"
	"time"
)

// Battery bounds in percent.
const (
	MinBattery = 0
	MaxBattery = 100
)

var (
	// ErrInvalidAGVID is returned for an empty AGV identifier.
	ErrInvalidAGVID = errors.New("agv id is required")
	// ErrInvalidBattery is returned when a battery level falls outside 0..100.
	ErrInvalidBattery = errors.New("battery level must be between 0 and 100")
)

// AGV is an automated guided vehicle asking for a charging bay.
type AGV struct {
	ID string
	// Battery is the state of charge in percent.
	Battery int
	// Urgent is carried for operators; dispatch order ignores it.
	Urgent bool
	// ArrivedAt is stamped when the request enters the charging queue.
	ArrivedAt time.Time
}

// NewAGV validates the arguments and returns a vehicle ready to be queued.
func NewAGV(id string, battery int, urgent bool) (*AGV, error) {
	a := &AGV{ID: id, Battery: battery, Urgent: urgent}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the identity and battery bounds.
func (a AGV) Validate() error {
	if a.ID == "" {
		return ErrInvalidAGVID
	}
	if a.Battery < MinBattery || a.Battery > MaxBattery {
		return fmt.Errorf("%w: %d", ErrInvalidBattery, a.Battery)
	}
	return nil
}

// Depleted reports whether the battery cannot be energized without a
// bootstrap procedure.
func (a AGV) Depleted() bool { return a.Battery <= MinBattery }

// Full reports whether the battery is at its maximum.
func (a AGV) Full() bool { return a.Battery >= MaxBattery }

// ChargeStep raises the battery by step percent, capped at 100, and returns
// the new level.
func (a *AGV) ChargeStep(step int) int {
	if step <= 0 {
		return a.Battery
	}
	a.Battery += step
	if a.Battery > MaxBattery {
		a.Battery = MaxBattery
	}
	return a.Battery
}

// Drain lowers the battery by amount percent, floored at 0.
func (a *AGV) Drain(amount int) int {
	if amount <= 0 {
		return a.Battery
	}
	a.Battery -= amount
	if a.Battery < MinBattery {
		a.Battery = MinBattery
	}
	return a.Battery
}

// WaitTime returns how long the request has been queued at now.
func (a AGV) WaitTime(now time.Time) time.Duration {
	if a.ArrivedAt.IsZero() {
		return 0
	}
	return now.Sub(a.ArrivedAt)
}
