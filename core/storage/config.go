package storage

import "fmt"

// DefaultPoolSize is the number of stock workers.
const DefaultPoolSize = 4

// LocationConfig seeds one storage location.
type LocationConfig struct {
	ID       string `json:"id"`
	Capacity int    `json:"capacity"`
	Initial  int    `json:"initial"`
}

// Config defines storage-related settings.
type Config struct {
	ArmID     string           `json:"arm_id"`
	PoolSize  int              `json:"pool_size"`
	Locations []LocationConfig `json:"locations"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ArmID == "" {
		c.ArmID = "ARM-1"
	}
	if c.PoolSize == 0 {
		c.PoolSize = DefaultPoolSize
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.PoolSize <= 0 {
		return fmt.Errorf("storage: pool_size must be positive")
	}
	seen := make(map[string]struct{}, len(c.Locations))
	for _, l := range c.Locations {
		if l.ID == "" {
			return ErrInvalidLocationID
		}
		if _, ok := seen[l.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateLocation, l.ID)
		}
		seen[l.ID] = struct{}{}
		if l.Capacity <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidCapacity, l.ID)
		}
		if l.Initial < 0 || l.Initial > l.Capacity {
			return fmt.Errorf("storage: initial stock of %s must be within [0,%d]", l.ID, l.Capacity)
		}
	}
	return nil
}
