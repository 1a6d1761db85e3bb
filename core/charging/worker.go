package charging

import (
	"context"
	"time"

	"github.com/kilianp07/warehouse/core/logger"
	"github.com/kilianp07/warehouse/core/model"
)

// ChargeProfile describes how fast a bay refills a battery.
type ChargeProfile struct {
	// Step is the percentage added per tick.
	Step int
	// Interval is the delay between ticks. Zero charges without waiting.
	Interval time.Duration
}

// DefaultProfile charges 10% every 100ms.
var DefaultProfile = ChargeProfile{Step: 10, Interval: 100 * time.Millisecond}

// Worker charges one AGV at one station.
type Worker struct {
	StationID string
	AGV       *model.AGV
	Failure   FailurePolicy
	Profile   ChargeProfile
	Log       logger.Logger
}

// Run simulates the charge. Every unsuccessful outcome is a *ChargeError.
func (w *Worker) Run(ctx context.Context) error {
	w.Log.Infof("Starting charging for AGV-%s at %s (battery %d%%)", w.AGV.ID, w.StationID, w.AGV.Battery)
	if w.AGV.Depleted() {
		return w.fail(FailureInvalidState, ErrInvalidState)
	}
	if w.Failure != nil && w.Failure.Malfunction(w.StationID) {
		return w.fail(FailureMalfunction, ErrMalfunction)
	}

	step := w.Profile.Step
	if step <= 0 {
		step = model.MaxBattery
	}
	var tick <-chan time.Time
	if w.Profile.Interval > 0 {
		t := time.NewTicker(w.Profile.Interval)
		defer t.Stop()
		tick = t.C
	}
	for !w.AGV.Full() {
		if tick != nil {
			select {
			case <-ctx.Done():
				return w.fail(FailureInterrupted, ErrInterrupted)
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return w.fail(FailureInterrupted, ErrInterrupted)
		}
		w.AGV.ChargeStep(step)
	}
	w.Log.Infof("Finished charging AGV-%s at %s", w.AGV.ID, w.StationID)
	return nil
}

func (w *Worker) fail(kind FailureKind, err error) error {
	w.Log.Errorf("Charging error for AGV-%s at %s: %s", w.AGV.ID, w.StationID, kind)
	return &ChargeError{Kind: kind, StationID: w.StationID, AGVID: w.AGV.ID, Err: err}
}
