package task

import "fmt"

const (
	// DefaultWorkers is the number of tasks executed in parallel.
	DefaultWorkers = 3
	// DefaultDurationMS is the simulated execution time of one task.
	DefaultDurationMS = 1000
)

// Seed is a task created at startup.
type Seed struct {
	Type        string `json:"type"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Config defines task execution settings.
type Config struct {
	Workers    int    `json:"workers"`
	DurationMS int    `json:"duration_ms"`
	Seed       []Seed `json:"seed"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.DurationMS == 0 {
		c.DurationMS = DefaultDurationMS
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("task: workers must be positive")
	}
	if c.DurationMS < 0 {
		return fmt.Errorf("task: duration_ms must not be negative")
	}
	for _, s := range c.Seed {
		if s.Type == "" {
			return ErrEmptyType
		}
	}
	return nil
}
