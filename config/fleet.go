package config

import (
	"fmt"

	"github.com/kilianp07/warehouse/core/model"
	"github.com/kilianp07/warehouse/core/storage"
)

// AGVConfig seeds one simulated vehicle.
type AGVConfig struct {
	ID      string `json:"id"`
	Battery int    `json:"battery"`
	Urgent  bool   `json:"urgent"`
}

// FleetConfig drives the battery simulation loop.
type FleetConfig struct {
	AGVs []AGVConfig `json:"agvs"`
	// TickMS is the simulation step.
	TickMS int `json:"tick_ms"`
	// LowBattery is the level at or below which an AGV asks for a bay.
	LowBattery int `json:"low_battery"`
	DrainMin   int `json:"drain_min"`
	DrainMax   int `json:"drain_max"`
	// InventoryEvery logs an inventory report every n ticks; 0 disables it.
	InventoryEvery int `json:"inventory_every"`
}

// SetDefaults applies sane defaults.
func (c *FleetConfig) SetDefaults() {
	if c.TickMS == 0 {
		c.TickMS = 1000
	}
	if c.LowBattery == 0 {
		c.LowBattery = 20
	}
	if c.DrainMin == 0 {
		c.DrainMin = 1
	}
	if c.DrainMax == 0 {
		c.DrainMax = 3
	}
}

// Validate checks mandatory fields.
func (c FleetConfig) Validate() error {
	if c.TickMS <= 0 {
		return fmt.Errorf("tick_ms must be positive")
	}
	if c.LowBattery < model.MinBattery || c.LowBattery > model.MaxBattery {
		return fmt.Errorf("low_battery must be within [%d,%d]", model.MinBattery, model.MaxBattery)
	}
	if c.DrainMin < 0 || c.DrainMax < c.DrainMin {
		return fmt.Errorf("drain range [%d,%d] is invalid", c.DrainMin, c.DrainMax)
	}
	seen := make(map[string]struct{}, len(c.AGVs))
	for _, a := range c.AGVs {
		if err := (model.AGV{ID: a.ID, Battery: a.Battery}).Validate(); err != nil {
			return err
		}
		if _, ok := seen[a.ID]; ok {
			return fmt.Errorf("duplicate agv %s", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

// OrderSeed is an order created at startup.
type OrderSeed struct {
	Medicine   string `json:"medicine"`
	Quantity   int    `json:"quantity"`
	LocationID string `json:"location_id"`
	Emergency  bool   `json:"emergency"`
	// Complete picks the order right after creation.
	Complete bool `json:"complete"`
}

// OrdersConfig lists the startup orders.
type OrdersConfig struct {
	Seed []OrderSeed `json:"seed"`
}

// Validate checks that every order targets a configured location.
func (c OrdersConfig) Validate(locs []storage.LocationConfig) error {
	known := make(map[string]struct{}, len(locs))
	for _, l := range locs {
		known[l.ID] = struct{}{}
	}
	for _, o := range c.Seed {
		if o.Medicine == "" || o.Quantity <= 0 {
			return fmt.Errorf("order needs a medicine and a positive quantity")
		}
		if _, ok := known[o.LocationID]; !ok {
			return fmt.Errorf("order for %s references unknown location %q", o.Medicine, o.LocationID)
		}
	}
	return nil
}
