package charging

import (
	"fmt"
	"time"
)

// Config defines charging-related settings.
type Config struct {
	Stations             []string `json:"stations"`
	DropThresholdSeconds int      `json:"drop_threshold_seconds"`
	AcquireTimeoutMS     int      `json:"acquire_timeout_ms"`
	// FailureRate is the malfunction probability; nil selects DefaultFailureRate.
	FailureRate      *float64 `json:"failure_rate"`
	ChargeStep       int      `json:"charge_step"`
	ChargeIntervalMS int      `json:"charge_interval_ms"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.DropThresholdSeconds == 0 {
		c.DropThresholdSeconds = 15
	}
	if c.AcquireTimeoutMS == 0 {
		c.AcquireTimeoutMS = 300
	}
	if c.FailureRate == nil {
		r := DefaultFailureRate
		c.FailureRate = &r
	}
	if c.ChargeStep == 0 {
		c.ChargeStep = DefaultProfile.Step
	}
	if c.ChargeIntervalMS == 0 {
		c.ChargeIntervalMS = int(DefaultProfile.Interval / time.Millisecond)
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if err := validateStations(c.Stations); err != nil {
		return err
	}
	if c.DropThresholdSeconds <= 0 {
		return ErrInvalidThreshold
	}
	if c.AcquireTimeoutMS < 0 {
		return fmt.Errorf("charging: acquire_timeout_ms must not be negative")
	}
	if c.FailureRate != nil && (*c.FailureRate < 0 || *c.FailureRate > 1) {
		return fmt.Errorf("charging: failure_rate must be within [0,1]")
	}
	if c.ChargeStep < 0 || c.ChargeIntervalMS < 0 {
		return fmt.Errorf("charging: charge_step and charge_interval_ms must not be negative")
	}
	return nil
}

// DropThreshold returns the maximum queued wait.
func (c Config) DropThreshold() time.Duration {
	return time.Duration(c.DropThresholdSeconds) * time.Second
}

// Profile returns the charge profile described by the configuration.
func (c Config) Profile() ChargeProfile {
	return ChargeProfile{Step: c.ChargeStep, Interval: time.Duration(c.ChargeIntervalMS) * time.Millisecond}
}

func validateStations(ids []string) error {
	if len(ids) == 0 {
		return ErrNoStations
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return ErrEmptyStationID
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateStation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
