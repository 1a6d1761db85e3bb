package events

import "time"

// ChargingKind identifies a step of a charging request lifecycle.
type ChargingKind string

const (
	ChargingQueued   ChargingKind = "queued"
	ChargingDropped  ChargingKind = "dropped"
	ChargingAssigned ChargingKind = "assigned"
	ChargingCharged  ChargingKind = "charged"
	ChargingFailed   ChargingKind = "failed"
)

// Terminal reports whether no further event follows for the request.
func (k ChargingKind) Terminal() bool {
	return k == ChargingDropped || k == ChargingCharged || k == ChargingFailed
}

// ChargingEvent is published by the charging coordinator and its workers.
type ChargingEvent struct {
	Kind      ChargingKind
	AGVID     string
	StationID string
	Battery   int
	// Failure is set for ChargingFailed, e.g. "malfunction" or "invalid_state".
	Failure string
	// Wait is the time spent in the queue before the request was dropped or assigned.
	Wait time.Duration
	Err  error
	Time time.Time
}
