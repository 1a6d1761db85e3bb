package charging

import (
	"errors"
	"fmt"
)

var (
	ErrNoStations       = errors.New("charging: station list is empty")
	ErrEmptyStationID   = errors.New("charging: station id is empty")
	ErrDuplicateStation = errors.New("charging: duplicate station id")
	ErrInvalidThreshold = errors.New("charging: drop threshold must be positive")
	ErrNilAGV           = errors.New("charging: nil agv")
	ErrClosed           = errors.New("charging: coordinator is shut down")

	// ErrMalfunction marks a simulated hardware failure of a station.
	ErrMalfunction = errors.New("station hardware failure")
	// ErrInvalidState marks an AGV that cannot be charged from its current state.
	ErrInvalidState = errors.New("agv battery is depleted")
	// ErrInterrupted marks a charge aborted by shutdown.
	ErrInterrupted = errors.New("charge interrupted")
)

// FailureKind classifies a failed charging assignment.
type FailureKind string

const (
	FailureMalfunction  FailureKind = "malfunction"
	FailureInvalidState FailureKind = "invalid_state"
	FailureInterrupted  FailureKind = "interrupted"
	FailureUnexpected   FailureKind = "unexpected"
)

// ChargeError is returned by Worker.Run for every unsuccessful charge.
type ChargeError struct {
	Kind      FailureKind
	StationID string
	AGVID     string
	Err       error
}

func (e *ChargeError) Error() string {
	return fmt.Sprintf("charging %s at %s: %s: %v", e.AGVID, e.StationID, e.Kind, e.Err)
}

func (e *ChargeError) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err. Errors that are not a
// ChargeError are reported as unexpected.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var ce *ChargeError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return FailureUnexpected
}
